// Package sampler implements the frame sampler (C4) described in
// spec.md §4.4: the gating decision for whether a frame is worth sending
// to the VLM, balancing change signal, per-camera cooldown/debounce
// timers, rule presence, heartbeat, and budget state.
package sampler

import (
	"time"

	"github.com/physical-mcp/engine/internal/core"
)

// Decision reason strings (spec §4.4, "exposes the chosen reason").
const (
	ReasonMajor             = "major"
	ReasonModerateDebounced = "moderate_debounced"
	ReasonHeartbeat         = "heartbeat"
	ReasonSkipBudget        = "skip:budget"
	ReasonSkipNoRule        = "skip:no_rule"
	ReasonSkipNoChange      = "skip:no_change"
)

// Options holds the sampler's configured timings (spec.md's perception
// section defaults).
type Options struct {
	CooldownSeconds  int
	DebounceSeconds  int
	HeartbeatSeconds int // 0 disables heartbeat analysis
}

// Decision is the sampler's verdict for one tick.
type Decision struct {
	Analyze bool
	Reason  string
}

// cameraState tracks per-camera gating timers.
type cameraState struct {
	lastAnalysis  time.Time
	moderateSince time.Time // zero when not currently tracking a sustained run
}

// Sampler makes per-camera gating decisions. It is not safe for
// concurrent use on the same camera from multiple goroutines; the
// perception loop owns one Sampler invocation at a time per camera.
type Sampler struct {
	opts   Options
	states map[string]*cameraState
}

// New creates a Sampler with the given options.
func New(opts Options) *Sampler {
	return &Sampler{opts: opts, states: make(map[string]*cameraState)}
}

func (s *Sampler) stateFor(cameraID string) *cameraState {
	st, ok := s.states[cameraID]
	if !ok {
		st = &cameraState{}
		s.states[cameraID] = st
	}
	return st
}

// Gate applies spec.md §4.4's ordered rules for one camera at time now.
// hasRelevantRule reports whether any enabled rule targets this camera.
// budgetExceeded reports current cost/rate-cap state (C12).
//
// The MODERATE branch implements "delay commit; on next tick re-check
// level": a MODERATE reading arms a per-camera timer the first time it's
// seen, and only commits once that timer has held continuously (no drop
// below MODERATE in between) for debounce_seconds. Each call re-checks
// the current level and elapsed time rather than trusting the level that
// first armed the timer.
func (s *Sampler) Gate(cameraID string, change core.ChangeResult, hasRelevantRule bool, budgetExceeded bool, now time.Time) Decision {
	st := s.stateFor(cameraID)

	if budgetExceeded {
		return Decision{Analyze: false, Reason: ReasonSkipBudget}
	}

	heartbeatEnabled := s.opts.HeartbeatSeconds > 0
	if !hasRelevantRule && !heartbeatEnabled {
		return Decision{Analyze: false, Reason: ReasonSkipNoRule}
	}

	cooldown := time.Duration(s.opts.CooldownSeconds) * time.Second
	sinceLast := now.Sub(st.lastAnalysis)

	if change.Level == core.ChangeMajor && (st.lastAnalysis.IsZero() || sinceLast > cooldown) {
		st.lastAnalysis = now
		st.moderateSince = time.Time{}
		return Decision{Analyze: true, Reason: ReasonMajor}
	}

	if change.Level == core.ChangeModerate || change.Level == core.ChangeMajor {
		if st.moderateSince.IsZero() {
			st.moderateSince = now
		}
		debounceWindow := time.Duration(s.opts.DebounceSeconds) * time.Second
		if debounceWindow <= 0 {
			debounceWindow = 3 * time.Second
		}
		if now.Sub(st.moderateSince) >= debounceWindow {
			st.lastAnalysis = now
			st.moderateSince = time.Time{}
			return Decision{Analyze: true, Reason: ReasonModerateDebounced}
		}
		return Decision{Analyze: false, Reason: ReasonSkipNoChange}
	}

	// Level dropped below MODERATE: the sustained run is broken.
	st.moderateSince = time.Time{}

	if heartbeatEnabled {
		heartbeat := time.Duration(s.opts.HeartbeatSeconds) * time.Second
		if st.lastAnalysis.IsZero() || now.Sub(st.lastAnalysis) >= heartbeat {
			st.lastAnalysis = now
			return Decision{Analyze: true, Reason: ReasonHeartbeat}
		}
	}

	return Decision{Analyze: false, Reason: ReasonSkipNoChange}
}

// Reset clears per-camera timers, e.g. after a camera reconnects.
func (s *Sampler) Reset(cameraID string) {
	delete(s.states, cameraID)
}
