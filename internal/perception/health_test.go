package perception

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHealthTrackerStartsRunning(t *testing.T) {
	h := newHealthTracker()
	snap := h.snapshot(time.Now())
	assert.Equal(t, StatusRunning, snap.Status)
	assert.Equal(t, 0, snap.ConsecutiveErrors)
}

func TestHealthTrackerErrorBackoffSequence(t *testing.T) {
	h := newHealthTracker()
	now := time.Now()

	// Spec §4.8 scenario 4: "approximately 5, 10, 20, 40, 80, 160, 300,
	// 300, ... s".
	want := []time.Duration{
		5 * time.Second, 10 * time.Second, 20 * time.Second, 40 * time.Second,
		80 * time.Second, 160 * time.Second, 300 * time.Second, 300 * time.Second,
	}
	for i, exp := range want {
		got := h.markError(now, backoffBase, backoffMax)
		assert.Equalf(t, exp, got, "backoff at error #%d", i+1)
	}

	snap := h.snapshot(now)
	assert.Equal(t, StatusBackoff, snap.Status)
	assert.Equal(t, len(want), snap.ConsecutiveErrors)
}

func TestHealthTrackerStatusReflectsBackoffWindow(t *testing.T) {
	h := newHealthTracker()
	now := time.Now()

	h.markError(now, backoffBase, backoffMax)
	assert.Equal(t, StatusBackoff, h.snapshot(now).Status)

	// Once backoff_until has passed, a fresh error is required to
	// re-enter backoff; absent that, the camera reads as degraded
	// (consecutive_errors still > 0) rather than running.
	later := now.Add(6 * time.Second)
	assert.Equal(t, StatusDegraded, h.snapshot(later).Status)
}

func TestHealthTrackerSuccessResetsState(t *testing.T) {
	h := newHealthTracker()
	now := time.Now()

	h.markError(now, backoffBase, backoffMax)
	h.markError(now.Add(1*time.Second), backoffBase, backoffMax)

	successAt := now.Add(20 * time.Second)
	h.markSuccess(successAt)

	snap := h.snapshot(successAt)
	assert.Equal(t, StatusRunning, snap.Status)
	assert.Equal(t, 0, snap.ConsecutiveErrors)
	assert.True(t, snap.BackoffUntil.IsZero())
	assert.Equal(t, successAt, snap.LastSuccessAt)
}

func TestHealthTrackerStaleMarksDegradedUntilFreshFrame(t *testing.T) {
	h := newHealthTracker()
	now := time.Now()

	h.markStale()
	assert.Equal(t, StatusDegraded, h.snapshot(now).Status)

	h.markFrame(now.Add(1 * time.Second))
	assert.Equal(t, StatusRunning, h.snapshot(now.Add(1*time.Second)).Status)
}

func TestHealthTrackerOfflineOverridesEverything(t *testing.T) {
	h := newHealthTracker()
	now := time.Now()

	h.markError(now, backoffBase, backoffMax)
	h.markOffline()
	assert.Equal(t, StatusOffline, h.snapshot(now).Status)
}

func TestHealthTrackerUnreachableFlag(t *testing.T) {
	h := newHealthTracker()
	assert.False(t, h.snapshot(time.Now()).Unreachable)
	h.setUnreachable(true)
	assert.True(t, h.snapshot(time.Now()).Unreachable)
}
