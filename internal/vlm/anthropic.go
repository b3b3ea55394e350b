package vlm

import (
	"context"
)

func init() {
	Register("anthropic", func(cfg Config) (Provider, error) {
		model := cfg.Model
		if model == "" {
			model = "claude-sonnet-4-5"
		}
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "https://api.anthropic.com/v1/messages"
		}
		return &anthropicProvider{cfg: cfg, model: model, baseURL: baseURL}, nil
	})
}

type anthropicProvider struct {
	cfg     Config
	model   string
	baseURL string
}

type anthropicMessage struct {
	Role    string                  `json:"role"`
	Content []anthropicContentBlock `json:"content"`
}

type anthropicContentBlock struct {
	Type   string               `json:"type"`
	Text   string               `json:"text,omitempty"`
	Source *anthropicImageSrc   `json:"source,omitempty"`
}

type anthropicImageSrc struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func (p *anthropicProvider) do(ctx context.Context, imageBytes []byte, instruction string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.cfg.timeout())
	defer cancel()

	req := anthropicRequest{
		Model:     p.model,
		MaxTokens: 1024,
		Messages: []anthropicMessage{{
			Role: "user",
			Content: []anthropicContentBlock{
				{Type: "image", Source: &anthropicImageSrc{Type: "base64", MediaType: "image/jpeg", Data: b64(imageBytes)}},
				{Type: "text", Text: instruction},
			},
		}},
	}

	var resp anthropicResponse
	headers := map[string]string{
		"x-api-key":         p.cfg.APIKey,
		"anthropic-version": "2023-06-01",
	}
	if err := postJSON(callCtx, p.baseURL, headers, req, &resp); err != nil {
		return "", err
	}
	if len(resp.Content) == 0 {
		return "", nil
	}
	return resp.Content[0].Text, nil
}

func (p *anthropicProvider) AnalyzeScene(ctx context.Context, imageBytes []byte, priorContext string, prompt PromptSpec) (SceneAnalysis, error) {
	text, err := p.do(ctx, imageBytes, buildSceneInstruction(priorContext, prompt))
	if err != nil {
		return SceneAnalysis{}, err
	}
	var out SceneAnalysis
	if err := ExtractJSON(text, &out); err != nil {
		return SceneAnalysis{}, err
	}
	return out, nil
}

func (p *anthropicProvider) EvaluateRules(ctx context.Context, imageBytes []byte, rules []RuleSpec, sceneContext string, prompt PromptSpec) ([]RuleEvaluation, error) {
	text, err := p.do(ctx, imageBytes, buildRulesInstruction(rules, sceneContext, prompt))
	if err != nil {
		return nil, err
	}
	var out []RuleEvaluation
	if err := ExtractJSON(text, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *anthropicProvider) ProviderName() string { return "anthropic" }
func (p *anthropicProvider) ModelName() string    { return p.model }
