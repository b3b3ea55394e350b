package sampler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/physical-mcp/engine/internal/core"
)

func TestGateSkipsWhenBudgetExceeded(t *testing.T) {
	s := New(Options{CooldownSeconds: 10, DebounceSeconds: 3, HeartbeatSeconds: 120})
	d := s.Gate("cam1", core.ChangeResult{Level: core.ChangeMajor}, true, true, time.Now())
	assert.False(t, d.Analyze)
	assert.Equal(t, ReasonSkipBudget, d.Reason)
}

func TestGateSkipsWhenNoRuleAndNoHeartbeat(t *testing.T) {
	s := New(Options{CooldownSeconds: 10, DebounceSeconds: 3, HeartbeatSeconds: 0})
	d := s.Gate("cam1", core.ChangeResult{Level: core.ChangeMinor}, false, false, time.Now())
	assert.False(t, d.Analyze)
	assert.Equal(t, ReasonSkipNoRule, d.Reason)
}

func TestGateMajorAnalyzesImmediatelyThenRespectsCooldown(t *testing.T) {
	s := New(Options{CooldownSeconds: 10, DebounceSeconds: 3, HeartbeatSeconds: 0})
	now := time.Now()

	d := s.Gate("cam1", core.ChangeResult{Level: core.ChangeMajor}, true, false, now)
	assert.True(t, d.Analyze)
	assert.Equal(t, ReasonMajor, d.Reason)

	d = s.Gate("cam1", core.ChangeResult{Level: core.ChangeMajor}, true, false, now.Add(2*time.Second))
	assert.False(t, d.Analyze, "within cooldown window should skip")

	d = s.Gate("cam1", core.ChangeResult{Level: core.ChangeMajor}, true, false, now.Add(11*time.Second))
	assert.True(t, d.Analyze, "past cooldown should analyze again")
	assert.Equal(t, ReasonMajor, d.Reason)
}

func TestGateModerateCommitsAfterSustainedDebounceWindow(t *testing.T) {
	s := New(Options{CooldownSeconds: 10, DebounceSeconds: 3, HeartbeatSeconds: 0})
	now := time.Now()

	d := s.Gate("cam1", core.ChangeResult{Level: core.ChangeModerate}, true, false, now)
	assert.False(t, d.Analyze, "first moderate tick arms the timer but doesn't commit")

	d = s.Gate("cam1", core.ChangeResult{Level: core.ChangeModerate}, true, false, now.Add(1*time.Second))
	assert.False(t, d.Analyze, "still within the debounce window")

	d = s.Gate("cam1", core.ChangeResult{Level: core.ChangeModerate}, true, false, now.Add(3*time.Second))
	assert.True(t, d.Analyze)
	assert.Equal(t, ReasonModerateDebounced, d.Reason)
}

func TestGateModerateRunBrokenByDrop(t *testing.T) {
	s := New(Options{CooldownSeconds: 10, DebounceSeconds: 3, HeartbeatSeconds: 0})
	now := time.Now()

	s.Gate("cam1", core.ChangeResult{Level: core.ChangeModerate}, true, false, now)
	d := s.Gate("cam1", core.ChangeResult{Level: core.ChangeNone}, true, false, now.Add(1*time.Second))
	assert.False(t, d.Analyze)

	// Dropping the run resets the timer; a later moderate tick must wait
	// the full window again.
	d = s.Gate("cam1", core.ChangeResult{Level: core.ChangeModerate}, true, false, now.Add(2*time.Second))
	assert.False(t, d.Analyze)
	d = s.Gate("cam1", core.ChangeResult{Level: core.ChangeModerate}, true, false, now.Add(5*time.Second))
	assert.True(t, d.Analyze)
}

func TestGateHeartbeat(t *testing.T) {
	s := New(Options{CooldownSeconds: 10, DebounceSeconds: 3, HeartbeatSeconds: 120})
	now := time.Now()

	d := s.Gate("cam1", core.ChangeResult{Level: core.ChangeNone}, false, false, now)
	assert.True(t, d.Analyze, "first heartbeat tick analyzes immediately")
	assert.Equal(t, ReasonHeartbeat, d.Reason)

	d = s.Gate("cam1", core.ChangeResult{Level: core.ChangeNone}, false, false, now.Add(10*time.Second))
	assert.False(t, d.Analyze)

	d = s.Gate("cam1", core.ChangeResult{Level: core.ChangeNone}, false, false, now.Add(121*time.Second))
	assert.True(t, d.Analyze)
	assert.Equal(t, ReasonHeartbeat, d.Reason)
}

func TestGateHeartbeatDisabledZeroMeansNever(t *testing.T) {
	s := New(Options{CooldownSeconds: 10, DebounceSeconds: 3, HeartbeatSeconds: 0})
	d := s.Gate("cam1", core.ChangeResult{Level: core.ChangeNone}, true, false, time.Now())
	assert.False(t, d.Analyze)
	assert.Equal(t, ReasonSkipNoChange, d.Reason)
}
