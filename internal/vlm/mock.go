package vlm

import "context"

func init() {
	Register("mock", func(cfg Config) (Provider, error) {
		return NewMock(), nil
	})
}

// MockProvider is a deterministic, network-free Provider used in tests
// and to exercise the perception loop without a real API key. Grounded
// on the teacher's internal/vision/mock.go (NewMockClient), generalized
// from frame streaming to scene analysis/rule evaluation.
type MockProvider struct {
	// AnalyzeFunc and EvaluateFunc, when set, override the canned
	// responses below — useful for scripting specific test scenarios.
	AnalyzeFunc  func(ctx context.Context, imageBytes []byte, priorContext string, prompt PromptSpec) (SceneAnalysis, error)
	EvaluateFunc func(ctx context.Context, imageBytes []byte, rules []RuleSpec, sceneContext string, prompt PromptSpec) ([]RuleEvaluation, error)
}

// NewMock returns a MockProvider with canned, always-succeeding responses.
func NewMock() *MockProvider {
	return &MockProvider{}
}

func (m *MockProvider) AnalyzeScene(ctx context.Context, imageBytes []byte, priorContext string, prompt PromptSpec) (SceneAnalysis, error) {
	if m.AnalyzeFunc != nil {
		return m.AnalyzeFunc(ctx, imageBytes, priorContext, prompt)
	}
	people := 0
	return SceneAnalysis{
		Summary:     "a room with no notable activity",
		Objects:     []string{},
		PeopleCount: &people,
		Changes:     "no significant change",
	}, nil
}

func (m *MockProvider) EvaluateRules(ctx context.Context, imageBytes []byte, rules []RuleSpec, sceneContext string, prompt PromptSpec) ([]RuleEvaluation, error) {
	if m.EvaluateFunc != nil {
		return m.EvaluateFunc(ctx, imageBytes, rules, sceneContext, prompt)
	}
	out := make([]RuleEvaluation, 0, len(rules))
	for _, r := range rules {
		out = append(out, RuleEvaluation{RuleID: r.RuleID, Triggered: false, Confidence: 0, Reasoning: "mock provider: no evaluation performed"})
	}
	return out, nil
}

func (m *MockProvider) ProviderName() string { return "mock" }
func (m *MockProvider) ModelName() string    { return "mock-1" }
