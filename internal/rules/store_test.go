package rules

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/physical-mcp/engine/internal/core"
)

func TestCreateAssignsIDAndCreatedAt(t *testing.T) {
	s := New()
	r := s.Create(Spec{Name: "front door", Condition: "person at door", Enabled: true})
	assert.True(t, len(r.ID) > 2 && r.ID[:2] == "r_")
	assert.False(t, r.CreatedAt.IsZero())
}

func TestActiveForFiltersDisabledAndCooldown(t *testing.T) {
	s := New()
	r1 := s.Create(Spec{Name: "a", CameraID: "cam1", Enabled: true, CooldownSecs: 30})
	s.Create(Spec{Name: "b", CameraID: "cam1", Enabled: false})
	s.Create(Spec{Name: "c", CameraID: "cam2", Enabled: true})

	now := time.Now()
	active := s.ActiveFor("cam1", now)
	require.Len(t, active, 1)
	assert.Equal(t, r1.ID, active[0].ID)

	// Trigger r1, then confirm it drops out of active_for while in
	// cooldown — the selection-time filter spec.md requires.
	events := s.Evaluate([]EvalInput{{Rule: r1, Triggered: true, Confidence: 0.9, Reasoning: "seen"}}, "cam1", "Front Door", "thumb", now)
	require.Len(t, events, 1)

	active = s.ActiveFor("cam1", now.Add(time.Second))
	assert.Empty(t, active, "just-triggered rule must not be re-evaluated in the same cooldown window")

	active = s.ActiveFor("cam1", now.Add(31*time.Second))
	require.Len(t, active, 1)
}

func TestEvaluateRespectsConfidenceFloor(t *testing.T) {
	s := New()
	r := s.Create(Spec{Name: "a", Enabled: true})
	events := s.Evaluate([]EvalInput{{Rule: r, Triggered: true, Confidence: 0.5, Reasoning: "low confidence"}}, "cam1", "Cam", "", time.Now())
	assert.Empty(t, events)

	got, err := s.Get(r.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.TriggerCount)
}

func TestToggleAndDelete(t *testing.T) {
	s := New()
	r := s.Create(Spec{Name: "a", Enabled: true})

	toggled, err := s.Toggle(r.ID)
	require.NoError(t, err)
	assert.False(t, toggled.Enabled)

	require.NoError(t, s.Delete(r.ID))
	_, err = s.Get(r.ID)
	assert.ErrorIs(t, err, core.ErrRuleNotFound)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")

	s, err := NewWithPath(path, 0.75)
	require.NoError(t, err)
	s.Create(Spec{Name: "a", Condition: "dog in yard", CameraID: "cam1", Enabled: true, CooldownSecs: 10})
	require.NoError(t, s.Save())

	reloaded, err := NewWithPath(path, 0.75)
	require.NoError(t, err)
	list := reloaded.List(Filter{})
	require.Len(t, list, 1)
	assert.Equal(t, "dog in yard", list[0].Condition)
}

func TestMaybeReloadPreservesLastTriggered(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")

	s, err := NewWithPath(path, 0.75)
	require.NoError(t, err)
	r := s.Create(Spec{Name: "a", Enabled: true, CooldownSecs: 60})
	require.NoError(t, s.Save())

	now := time.Now()
	s.Evaluate([]EvalInput{{Rule: r, Triggered: true, Confidence: 0.9, Reasoning: "x"}}, "cam1", "Cam", "", now)

	// Touch the file's mtime without changing content to force a reload.
	future := time.Now().Add(time.Second)
	require.NoError(t, os.Chtimes(path, future, future))

	changed, err := s.MaybeReload()
	require.NoError(t, err)
	assert.True(t, changed)

	got, err := s.Get(r.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.TriggerCount)
	require.NotNil(t, got.LastTriggered)
}

func TestMaybeReloadNoPathIsNoop(t *testing.T) {
	s := New()
	changed, err := s.MaybeReload()
	require.NoError(t, err)
	assert.False(t, changed)
}
