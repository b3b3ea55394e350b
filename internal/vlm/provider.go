// Package vlm defines the vision-language-model provider interface (C6),
// a registry of concrete provider adapters, and the JSON extraction
// contract spec.md §4.6 requires of every adapter's raw model output.
//
// The registry/factory shape is grounded on
// _examples/tiUlisses-cam-bus/internal/drivers/base.go's
// RegisterDriver/GetDriver pattern, generalized from manufacturer:model
// camera drivers to named VLM providers. The factory-switch shape is
// also present in the teacher's internal/vision/client.go (NewClient),
// which this replaces since the teacher's client variants (mock/grpc)
// don't match spec.md's Anthropic/OpenAI/Gemini/OpenAI-compatible
// provider set.
package vlm

import (
	"context"
	"fmt"
	"time"
)

// SceneAnalysis is a provider's description of the current frame
// (spec §4.6).
type SceneAnalysis struct {
	Summary     string   `json:"summary"`
	Objects     []string `json:"objects"`
	PeopleCount *int     `json:"people_count"`
	Changes     string   `json:"changes"`
}

// RuleEvaluation is a provider's verdict for one watch rule (spec §4.6,
// §4.7).
type RuleEvaluation struct {
	RuleID     string  `json:"rule_id"`
	Triggered  bool    `json:"triggered"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// RuleSpec is the minimal shape a provider needs to evaluate a rule: its
// id and its natural-language condition.
type RuleSpec struct {
	RuleID    string
	Condition string
}

// PromptSpec carries the fixed instructions/system-prompt text a caller
// wants wrapped around every request; providers use it verbatim.
type PromptSpec struct {
	SystemPrompt string
}

// Provider is the polymorphic VLM integration surface (spec §4.6).
// Implementations are stateless: retries, timeouts-as-policy, and
// backoff belong to the caller (the perception loop), not the provider.
type Provider interface {
	// AnalyzeScene describes the current frame given prior scene
	// context as a free-form string.
	AnalyzeScene(ctx context.Context, imageBytes []byte, priorContext string, prompt PromptSpec) (SceneAnalysis, error)
	// EvaluateRules judges each rule against the current frame and
	// scene context, returning one RuleEvaluation per input rule.
	EvaluateRules(ctx context.Context, imageBytes []byte, rules []RuleSpec, sceneContext string, prompt PromptSpec) ([]RuleEvaluation, error)
	ProviderName() string
	ModelName() string
}

// Config is the provider-agnostic set of fields every adapter factory
// receives; individual adapters ignore what they don't need.
type Config struct {
	APIKey      string
	Model       string
	BaseURL     string
	CallTimeout time.Duration
}

func (c Config) timeout() time.Duration {
	if c.CallTimeout <= 0 {
		return 30 * time.Second
	}
	return c.CallTimeout
}

// Factory builds a Provider from a Config.
type Factory func(cfg Config) (Provider, error)

var registry = map[string]Factory{}

// Register adds a named provider factory. Called from each adapter's
// init(), mirroring the teacher pack's driver-registration idiom.
func Register(name string, f Factory) {
	registry[name] = f
}

// ErrProviderNotFound is returned by New for an unrecognized provider name.
type ErrProviderNotFound struct{ Name string }

func (e ErrProviderNotFound) Error() string {
	return fmt.Sprintf("vlm: no provider registered for %q", e.Name)
}

// New constructs the named provider. An empty name is never valid here;
// callers deciding between server-side and client-side (fallback) mode
// make that decision before calling New (spec §4.8/§9).
func New(name string, cfg Config) (Provider, error) {
	f, ok := registry[name]
	if !ok {
		return nil, ErrProviderNotFound{Name: name}
	}
	return f(cfg)
}

// Known reports the provider names currently registered.
func Known() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	return names
}
