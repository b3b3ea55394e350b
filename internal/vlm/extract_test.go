package vlm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/physical-mcp/engine/internal/core"
)

func TestExtractJSONDirectParse(t *testing.T) {
	var out SceneAnalysis
	err := ExtractJSON(`{"summary":"empty room","objects":["chair"],"people_count":0,"changes":""}`, &out)
	require.NoError(t, err)
	assert.Equal(t, "empty room", out.Summary)
}

func TestExtractJSONStripsFences(t *testing.T) {
	var out SceneAnalysis
	raw := "```json\n{\"summary\":\"hallway\",\"objects\":[],\"people_count\":1,\"changes\":\"door opened\"}\n```"
	err := ExtractJSON(raw, &out)
	require.NoError(t, err)
	assert.Equal(t, "hallway", out.Summary)
	assert.Equal(t, "door opened", out.Changes)
}

func TestExtractJSONProseWrapped(t *testing.T) {
	var out SceneAnalysis
	raw := `Sure, here's the analysis: {"summary":"kitchen","objects":["stove"],"people_count":2,"changes":"person entered"} Let me know if you need more.`
	err := ExtractJSON(raw, &out)
	require.NoError(t, err)
	assert.Equal(t, "kitchen", out.Summary)
	assert.Equal(t, 2, *out.PeopleCount)
}

func TestExtractJSONTruncationRepair(t *testing.T) {
	var out SceneAnalysis
	raw := `{"summary":"garage","objects":["car","bike"],"people_count":0,"changes":"nothing`
	err := ExtractJSON(raw, &out)
	require.NoError(t, err)
	assert.Equal(t, "garage", out.Summary)
}

func TestExtractJSONArrayOfEvaluations(t *testing.T) {
	var out []RuleEvaluation
	raw := `[{"rule_id":"r_1","triggered":true,"confidence":0.9,"reasoning":"person at door"}]`
	err := ExtractJSON(raw, &out)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.True(t, out[0].Triggered)
}

func TestExtractJSONUnrecoverableFailure(t *testing.T) {
	var out SceneAnalysis
	err := ExtractJSON("this is not json at all, sorry", &out)
	require.Error(t, err)
	kind, ok := core.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, core.KindProviderBadJSON, kind)
}
