package vlm

import (
	"context"
	"fmt"
)

func init() {
	Register("gemini", func(cfg Config) (Provider, error) {
		model := cfg.Model
		if model == "" {
			model = "gemini-2.0-flash"
		}
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "https://generativelanguage.googleapis.com/v1beta/models"
		}
		return &geminiProvider{cfg: cfg, model: model, baseURL: baseURL}, nil
	})
}

type geminiProvider struct {
	cfg     Config
	model   string
	baseURL string
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func (p *geminiProvider) do(ctx context.Context, imageBytes []byte, instruction string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.cfg.timeout())
	defer cancel()

	req := geminiRequest{
		Contents: []geminiContent{{
			Parts: []geminiPart{
				{Text: instruction},
				{InlineData: &geminiInlineData{MimeType: "image/jpeg", Data: b64(imageBytes)}},
			},
		}},
	}

	url := fmt.Sprintf("%s/%s:generateContent?key=%s", p.baseURL, p.model, p.cfg.APIKey)

	var resp geminiResponse
	if err := postJSON(callCtx, url, nil, req, &resp); err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", nil
	}
	return resp.Candidates[0].Content.Parts[0].Text, nil
}

func (p *geminiProvider) AnalyzeScene(ctx context.Context, imageBytes []byte, priorContext string, prompt PromptSpec) (SceneAnalysis, error) {
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

func (p *geminiProvider) EvaluateRules(ctx context.Context, imageBytes []byte, rules []RuleSpec, sceneContext string, prompt PromptSpec) ([]RuleEvaluation, error) {
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

func (p *geminiProvider) ProviderName() string { return "gemini" }
func (p *geminiProvider) ModelName() string    { return p.model }
