package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTrackerExceededRespectsDailyBudget(t *testing.T) {
	tr := NewTracker(Budget{DailyBudgetUSD: 0.02, HourlyRateCap: 1000, CostPerCall: 0.01})
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	assert.False(t, tr.Exceeded(now))
	tr.RecordCall(now)
	assert.False(t, tr.Exceeded(now))
	tr.RecordCall(now)
	assert.True(t, tr.Exceeded(now), "two calls at $0.01 reach the $0.02 cap")
}

func TestTrackerDailyBudgetResetsOnDayRollover(t *testing.T) {
	tr := NewTracker(Budget{DailyBudgetUSD: 0.01, HourlyRateCap: 1000, CostPerCall: 0.01})
	day1 := time.Date(2026, 1, 1, 23, 59, 0, 0, time.UTC)
	tr.RecordCall(day1)
	assert.True(t, tr.Exceeded(day1))

	day2 := day1.Add(2 * time.Hour)
	assert.False(t, tr.Exceeded(day2), "next day's window should reset the counter")
}

func TestTrackerHourlyRateCap(t *testing.T) {
	tr := NewTracker(Budget{DailyBudgetUSD: 0, HourlyRateCap: 2, CostPerCall: 0})
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	assert.False(t, tr.Exceeded(now))
	tr.RecordCall(now)
	assert.False(t, tr.Exceeded(now))
	tr.RecordCall(now)
	assert.True(t, tr.Exceeded(now), "third call within the same hour should exceed the rate cap")
}

func TestTrackerUnlimitedWhenCapsAreZero(t *testing.T) {
	tr := NewTracker(Budget{})
	now := time.Now()
	for i := 0; i < 50; i++ {
		assert.False(t, tr.Exceeded(now))
		tr.RecordCall(now)
	}
}
