package vlm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryKnowsBuiltinProviders(t *testing.T) {
	names := Known()
	for _, want := range []string{"anthropic", "openai", "openaicompat", "gemini", "mock"} {
		assert.Contains(t, names, want)
	}
}

func TestNewUnknownProvider(t *testing.T) {
	_, err := New("not-a-real-provider", Config{})
	require.Error(t, err)
	assert.Equal(t, `vlm: no provider registered for "not-a-real-provider"`, err.Error())
}

func TestMockProviderRoundTrip(t *testing.T) {
	p, err := New("mock", Config{})
	require.NoError(t, err)

	analysis, err := p.AnalyzeScene(context.Background(), []byte("data"), "prior", PromptSpec{})
	require.NoError(t, err)
	assert.NotEmpty(t, analysis.Summary)

	evals, err := p.EvaluateRules(context.Background(), []byte("data"), []RuleSpec{{RuleID: "r_1", Condition: "person at door"}}, "ctx", PromptSpec{})
	require.NoError(t, err)
	require.Len(t, evals, 1)
	assert.Equal(t, "r_1", evals[0].RuleID)

	assert.Equal(t, "mock", p.ProviderName())
}
