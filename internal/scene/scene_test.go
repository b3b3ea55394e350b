package scene

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func intPtr(n int) *int { return &n }

func TestApplyMissingFieldsLeavePrevious(t *testing.T) {
	s := NewStore()
	now := time.Now()

	s.Apply("cam1", Analysis{Summary: "empty room", Objects: []string{"chair"}, PeopleCount: intPtr(0)}, "initial", now)
	st := s.Apply("cam1", Analysis{Changes: "door opened"}, "fallback", now.Add(time.Second))

	assert.Equal(t, "empty room", st.Summary)
	assert.Equal(t, []string{"chair"}, st.Objects)
	assert.Equal(t, 0, *st.PeopleCount)
	assert.Equal(t, "door opened", st.LastChangeDesc)
	assert.Equal(t, uint64(2), st.UpdateCount)
}

func TestApplyFallsBackToDetectorDescription(t *testing.T) {
	s := NewStore()
	st := s.Apply("cam1", Analysis{Summary: "room"}, "motion detected", time.Now())
	assert.Equal(t, "motion detected", st.LastChangeDesc)
}

func TestChangeLogBounded(t *testing.T) {
	s := NewStore()
	now := time.Now()
	for i := 0; i < 250; i++ {
		s.Apply("cam1", Analysis{}, "tick", now.Add(time.Duration(i)*time.Second))
	}
	st := s.Get("cam1")
	assert.LessOrEqual(t, len(st.ChangeLog), 200)
	assert.Equal(t, uint64(250), st.UpdateCount)
}

func TestContextStringNoPriorData(t *testing.T) {
	s := NewStore()
	assert.Equal(t, "no prior scene data for this camera", s.ContextString("unknown"))
}

func TestContextStringIncludesRecentOnly(t *testing.T) {
	s := NewStore()
	now := time.Now()
	for i := 0; i < 8; i++ {
		s.Apply("cam1", Analysis{Summary: "s", Changes: "change"}, "", now.Add(time.Duration(i)*time.Second))
	}
	ctx := s.ContextString("cam1")
	assert.Contains(t, ctx, "summary: s")
	assert.Contains(t, ctx, "recent changes:")
}
