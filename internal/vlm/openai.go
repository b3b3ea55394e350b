package vlm

import "context"

func init() {
	Register("openai", func(cfg Config) (Provider, error) {
		model := cfg.Model
		if model == "" {
			model = "gpt-4o"
		}
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "https://api.openai.com/v1/chat/completions"
		}
		return newOpenAICompatible("openai", model, baseURL, cfg), nil
	})

	Register("openaicompat", func(cfg Config) (Provider, error) {
		model := cfg.Model
		if model == "" {
			model = "default"
		}
		return newOpenAICompatible("openaicompat", model, cfg.BaseURL, cfg), nil
	})
}

// openAICompatProvider implements the OpenAI chat-completions wire
// format, shared by the "openai" adapter and any "openai-compatible"
// self-hosted/third-party endpoint (spec §4.6 names both explicitly as
// provider variants).
type openAICompatProvider struct {
	name    string
	model   string
	baseURL string
	cfg     Config
}

func newOpenAICompatible(name, model, baseURL string, cfg Config) *openAICompatProvider {
	return &openAICompatProvider{name: name, model: model, baseURL: baseURL, cfg: cfg}
}

type oaiImageURL struct {
	URL string `json:"url"`
}

type oaiContentPart struct {
	Type     string       `json:"type"`
	Text     string       `json:"text,omitempty"`
	ImageURL *oaiImageURL `json:"image_url,omitempty"`
}

type oaiMessage struct {
	Role    string           `json:"role"`
	Content []oaiContentPart `json:"content"`
}

type oaiRequest struct {
	Model    string       `json:"model"`
	Messages []oaiMessage `json:"messages"`
}

type oaiResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (p *openAICompatProvider) do(ctx context.Context, imageBytes []byte, instruction string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.cfg.timeout())
	defer cancel()

	req := oaiRequest{
		Model: p.model,
		Messages: []oaiMessage{{
			Role: "user",
			Content: []oaiContentPart{
				{Type: "text", Text: instruction},
				{Type: "image_url", ImageURL: &oaiImageURL{URL: "data:image/jpeg;base64," + b64(imageBytes)}},
			},
		}},
	}

	var resp oaiResponse
	headers := map[string]string{"Authorization": "Bearer " + p.cfg.APIKey}
	if err := postJSON(callCtx, p.baseURL, headers, req, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

func (p *openAICompatProvider) AnalyzeScene(ctx context.Context, imageBytes []byte, priorContext string, prompt PromptSpec) (SceneAnalysis, error) {
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

func (p *openAICompatProvider) EvaluateRules(ctx context.Context, imageBytes []byte, rules []RuleSpec, sceneContext string, prompt PromptSpec) ([]RuleEvaluation, error) {
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

func (p *openAICompatProvider) ProviderName() string { return p.name }
func (p *openAICompatProvider) ModelName() string    { return p.model }
