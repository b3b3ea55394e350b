// Package stats implements the cost/budget counters and small persisted
// memory store (C12) described in spec.md §3 ("Stats") and §4.12: a
// rolling per-hour VLM call-rate cap, a per-day call count and cost
// estimate against a daily budget, and a bounded key/value store used
// for the system's only cross-restart state beyond rules (spec §1).
package stats

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Budget configures the cost-control caps (spec §4.12, config
// cost_control.daily_budget_usd / hourly_rate_cap).
type Budget struct {
	DailyBudgetUSD float64
	HourlyRateCap  int
	// CostPerCall estimates USD cost attributed to each VLM call for the
	// daily budget check; spec.md treats per-provider pricing as the
	// provider's own concern, so the engine uses one configured
	// estimate rather than parsing vendor billing responses.
	CostPerCall float64
}

// Tracker enforces the hourly rate cap with a token-bucket limiter
// (grounded on _examples/gtfodev-camsRelay's pkg/nest/queue.go, which
// paces Nest API calls the same way: rate.NewLimiter sized from a
// calls-per-period budget) and tracks daily call count/cost with plain
// time-bucketed counters, since the daily cap is an explicitly-soft
// cap (spec §5: "one overshoot tolerated") rather than a hard token
// bucket.
type Tracker struct {
	mu      sync.Mutex
	budget  Budget
	limiter *rate.Limiter

	dayBucket   string
	dayCalls    int
	dayCostUSD  float64
	hourBucket  string
	hourCalls   int
	model       string
	provider    string
}

// NewTracker creates a Tracker for budget. An HourlyRateCap <= 0 means
// unlimited.
func NewTracker(budget Budget) *Tracker {
	t := &Tracker{budget: budget}
	t.limiter = newHourlyLimiter(budget.HourlyRateCap)
	return t
}

func newHourlyLimiter(cap int) *rate.Limiter {
	if cap <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(float64(cap)/time.Hour.Seconds()), cap)
}

// SetProvider records the active provider/model tag surfaced in stats
// (spec §3).
func (t *Tracker) SetProvider(provider, model string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.provider, t.model = provider, model
}

// Exceeded reports whether a VLM call right now would exceed either
// cap, without consuming any budget (spec §4.4 step 1: the sampler
// checks this before gating, not during the call). The daily check is
// soft: it compares the cost already recorded against the daily budget,
// so one in-flight call that pushes the cost past it is tolerated, matching
// spec §5/§8's "soft cap tolerance: <= cap + 1".
func (t *Tracker) Exceeded(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollBuckets(now)

	if t.budget.DailyBudgetUSD > 0 && t.dayCostUSD >= t.budget.DailyBudgetUSD {
		return true
	}

	// Reserve-then-cancel peeks at the limiter's availability without
	// spending a token: a reservation that would require any wait means
	// the hourly bucket is currently empty.
	r := t.limiter.ReserveN(now, 1)
	wouldWait := !r.OK() || r.DelayFrom(now) > 0
	r.CancelAt(now)
	return wouldWait
}

// RecordCall consumes one unit of hourly rate budget and accumulates
// the daily call count/cost estimate. Call once per actual VLM call
// (analyze_scene and evaluate_rules each count), after Exceeded has
// already gated the call.
func (t *Tracker) RecordCall(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollBuckets(now)

	t.limiter.ReserveN(now, 1)
	t.hourCalls++
	t.dayCalls++
	t.dayCostUSD += t.budget.CostPerCall
}

func (t *Tracker) rollBuckets(now time.Time) {
	day := now.UTC().Format("2006-01-02")
	if day != t.dayBucket {
		t.dayBucket = day
		t.dayCalls = 0
		t.dayCostUSD = 0
	}
	hour := now.UTC().Format("2006-01-02T15")
	if hour != t.hourBucket {
		t.hourBucket = hour
		t.hourCalls = 0
	}
}

// Snapshot is the stats payload surfaced at /health and /stats.
type Snapshot struct {
	Provider      string  `json:"provider"`
	Model         string  `json:"model"`
	HourlyCalls   int     `json:"hourly_calls"`
	DailyCalls    int     `json:"daily_calls"`
	DailyCostUSD  float64 `json:"daily_cost_usd"`
	DailyBudgetUSD float64 `json:"daily_budget_usd"`
	HourlyRateCap int     `json:"hourly_rate_cap"`
}

// Snapshot returns a consistent read of the current counters.
func (t *Tracker) Snapshot(now time.Time) Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollBuckets(now)
	return Snapshot{
		Provider:       t.provider,
		Model:          t.model,
		HourlyCalls:    t.hourCalls,
		DailyCalls:     t.dayCalls,
		DailyCostUSD:   t.dayCostUSD,
		DailyBudgetUSD: t.budget.DailyBudgetUSD,
		HourlyRateCap:  t.budget.HourlyRateCap,
	}
}
