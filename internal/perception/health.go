// Package perception implements the per-camera control loop (C8)
// described in spec.md §4.8: it composes capture, change detection,
// sampling, VLM invocation, rule evaluation, alert generation, and
// health/backoff bookkeeping into one independent loop per camera.
package perception

import (
	"sync"
	"time"
)

// Status is a camera loop's coarse health state (spec §4.8).
type Status string

const (
	StatusRunning  Status = "running"
	StatusDegraded Status = "degraded"
	StatusBackoff  Status = "backoff"
	StatusOffline  Status = "offline"
)

// Health is one camera's health snapshot, exposed at /health.
type Health struct {
	Status            Status    `json:"status"`
	ConsecutiveErrors int       `json:"consecutive_errors"`
	BackoffUntil      time.Time `json:"backoff_until,omitempty"`
	LastSuccessAt     time.Time `json:"last_success_at,omitempty"`
	LastFrameAt       time.Time `json:"last_frame_at,omitempty"`
	Unreachable       bool      `json:"camera_unreachable,omitempty"`
}

// healthTracker guards one camera's health fields behind a mutex.
// Status is derived on read rather than stored, since spec §4.8's
// transitions (running->degraded->backoff->running, plus ->offline)
// are a pure function of consecutive_errors/backoff_until/capture
// staleness at the moment of observation.
type healthTracker struct {
	mu                sync.RWMutex
	consecutiveErrors int
	backoffUntil      time.Time
	lastSuccessAt     time.Time
	lastFrameAt       time.Time
	captureDegraded   bool
	offline           bool
	unreachable       bool
}

func newHealthTracker() *healthTracker {
	return &healthTracker{}
}

func (t *healthTracker) snapshot(now time.Time) Health {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return Health{
		Status:            t.statusLocked(now),
		ConsecutiveErrors: t.consecutiveErrors,
		BackoffUntil:      t.backoffUntil,
		LastSuccessAt:     t.lastSuccessAt,
		LastFrameAt:       t.lastFrameAt,
		Unreachable:       t.unreachable,
	}
}

func (t *healthTracker) statusLocked(now time.Time) Status {
	switch {
	case t.offline:
		return StatusOffline
	case !t.backoffUntil.IsZero() && now.Before(t.backoffUntil):
		return StatusBackoff
	case t.captureDegraded || t.consecutiveErrors > 0:
		return StatusDegraded
	default:
		return StatusRunning
	}
}

func (t *healthTracker) markFrame(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastFrameAt = now
	t.captureDegraded = false
}

// markStale marks the camera degraded on a frame-staleness read
// failure (spec §7: camera_disconnected -> health=degraded).
func (t *healthTracker) markStale() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.offline {
		t.captureDegraded = true
	}
}

func (t *healthTracker) markOffline() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.offline = true
}

// markError records a provider failure and computes the next backoff
// duration: base on the first error, doubling each subsequent error,
// capped at maxBackoff (spec §4.8/§7/§8 scenario 4: "approximately 5,
// 10, 20, 40, 80, 160, 300, 300, ... s").
func (t *healthTracker) markError(now time.Time, base, maxBackoff time.Duration) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.consecutiveErrors++
	backoff := base
	for i := 1; i < t.consecutiveErrors; i++ {
		backoff *= 2
		if backoff >= maxBackoff {
			backoff = maxBackoff
			break
		}
	}
	t.backoffUntil = now.Add(backoff)
	return backoff
}

func (t *healthTracker) markSuccess(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.consecutiveErrors = 0
	t.backoffUntil = time.Time{}
	t.captureDegraded = false
	t.offline = false
	t.lastSuccessAt = now
}

func (t *healthTracker) inBackoff(now time.Time) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return !t.backoffUntil.IsZero() && now.Before(t.backoffUntil)
}

func (t *healthTracker) setUnreachable(v bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.unreachable = v
}
