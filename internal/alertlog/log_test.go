package alertlog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/physical-mcp/engine/internal/core"
)

func TestAppendAssignsIDAndTimestamp(t *testing.T) {
	l := New(10, "")
	e := l.Append(core.AlertEvent{EventType: core.EventStartupWarning, Message: "hi"})
	assert.NotEmpty(t, e.EventID)
	assert.False(t, e.Timestamp.IsZero())
}

func TestAppendEvictsOldest(t *testing.T) {
	l := New(3, "")
	for i := 0; i < 5; i++ {
		l.Append(core.AlertEvent{EventType: core.EventMCPLog, Message: "x"})
	}
	assert.Equal(t, 3, l.Len())
}

func TestQuerySinceExclusive(t *testing.T) {
	l := New(100, "")
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	e1 := l.Append(core.AlertEvent{EventType: core.EventMCPLog, Timestamp: base})
	l.Append(core.AlertEvent{EventType: core.EventMCPLog, Timestamp: base.Add(time.Second)})

	results := l.Query(Filter{Since: e1.Timestamp.Format(time.RFC3339)})
	require.Len(t, results, 1)
	assert.NotEqual(t, e1.EventID, results[0].EventID)
}

func TestQueryUnparseableSinceIsIgnored(t *testing.T) {
	l := New(100, "")
	l.Append(core.AlertEvent{EventType: core.EventMCPLog})
	results := l.Query(Filter{Since: "not-a-timestamp"})
	assert.Len(t, results, 1)
}

func TestQueryFiltersCameraIDAndEventType(t *testing.T) {
	l := New(100, "")
	l.Append(core.AlertEvent{EventType: core.EventWatchRuleTriggered, CameraID: "cam1"})
	l.Append(core.AlertEvent{EventType: core.EventProviderError, CameraID: "cam2"})

	results := l.Query(Filter{CameraID: "cam1"})
	require.Len(t, results, 1)
	assert.Equal(t, "cam1", results[0].CameraID)

	results = l.Query(Filter{EventType: "PROVIDER_ERROR"})
	require.Len(t, results, 1)
	assert.Equal(t, core.EventProviderError, results[0].EventType)
}

func TestQueryLimitClamped(t *testing.T) {
	l := New(2000, "")
	for i := 0; i < 1500; i++ {
		l.Append(core.AlertEvent{EventType: core.EventMCPLog})
	}
	results := l.Query(Filter{Limit: 5000})
	assert.Len(t, results, 1000)
}

func TestQueryDeterministicOrdering(t *testing.T) {
	l := New(100, "")
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.Append(core.AlertEvent{EventID: "evt_b", EventType: core.EventMCPLog, Timestamp: ts})
	l.Append(core.AlertEvent{EventID: "evt_a", EventType: core.EventMCPLog, Timestamp: ts})

	results := l.Query(Filter{})
	require.Len(t, results, 2)
	assert.Equal(t, "evt_a", results[0].EventID)
	assert.Equal(t, "evt_b", results[1].EventID)
}

func TestAppendMirrorsToFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "alerts.jsonl")
	l := New(10, path)
	l.Append(core.AlertEvent{EventType: core.EventStartupWarning, Message: "fallback mode"})

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "fallback mode")
}
