// Package alertlog implements the bounded alert event log (C9) described
// in spec.md §4.9: a fixed-size ring of AlertEvents, optional durable
// line-delimited append, deterministic replay ordering, and
// cursor-based querying.
package alertlog

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/physical-mcp/engine/internal/core"
	"github.com/physical-mcp/engine/internal/mcplog"
)

// DefaultCapacity is the ring size spec.md names as the default.
const DefaultCapacity = 1000

var alertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "physical_mcp_alerts_total",
	Help: "Alert events appended to the log, by event type.",
}, []string{"event_type"})

// Broadcaster pushes a stored event to any live dashboard clients.
// Satisfied by *wshub.Hub; kept as a local interface so this package
// doesn't need to import wshub.
type Broadcaster interface {
	BroadcastAlert(data interface{})
}

// Log is a bounded, thread-safe ring of AlertEvents with an optional
// durable file mirror.
type Log struct {
	mu       sync.RWMutex
	entries  []core.AlertEvent
	capacity int
	filePath string

	broadcaster Broadcaster
}

// New creates a Log with the given ring capacity (DefaultCapacity if
// capacity <= 0) and an optional line-delimited JSON mirror file.
func New(capacity int, filePath string) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{capacity: capacity, filePath: filePath}
}

// SetBroadcaster wires a dashboard fan-out hub; every Append pushes the
// stored event through it in addition to the ring/file/metric.
func (l *Log) SetBroadcaster(b Broadcaster) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.broadcaster = b
}

// Append assigns event_id/timestamp if absent, stores the event
// (evicting the oldest if the ring is full), mirrors it to the durable
// file if configured, and increments the per-event-type counter.
func (l *Log) Append(event core.AlertEvent) core.AlertEvent {
	if event.EventID == "" {
		event.EventID = "evt_" + randomSuffix()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	} else {
		event.Timestamp = event.Timestamp.UTC()
	}

	l.mu.Lock()
	l.entries = append(l.entries, event)
	if len(l.entries) > l.capacity {
		l.entries = l.entries[len(l.entries)-l.capacity:]
	}
	l.mu.Unlock()

	alertsTotal.WithLabelValues(string(event.EventType)).Inc()

	if l.filePath != "" {
		l.appendToFile(event)
	}

	l.mu.RLock()
	b := l.broadcaster
	l.mu.RUnlock()
	if b != nil {
		b.BroadcastAlert(event)
	}

	return event
}

// AppendCorrelated appends event and, for the event types spec §4.9
// names (watch_rule_triggered, provider_error, startup_warning,
// camera_alert_pending_eval), also emits the "PMCP[...]" correlation
// line through log and appends a second mcp_log AlertEvent carrying the
// same line as its Message — the three places (alert log row, log line,
// mcp_log fanout row) spec §4.9/§8 requires to share one event_id.
func (l *Log) AppendCorrelated(event core.AlertEvent, log zerolog.Logger) core.AlertEvent {
	stored := l.Append(event)
	if !mcplog.Correlated(stored.EventType) {
		return stored
	}
	line := mcplog.Line(stored)
	log.Info().Msg(line)
	l.Append(mcplog.Fanout(stored, time.Now()))
	return stored
}

func (l *Log) appendToFile(event core.AlertEvent) {
	f, err := os.OpenFile(l.filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()

	line, err := json.Marshal(event)
	if err != nil {
		return
	}
	f.Write(line)
	f.Write([]byte("\n"))
}

func randomSuffix() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return fmt.Sprintf("%x", b)
}

// Filter narrows Query results (spec §4.9).
type Filter struct {
	Since     string
	Until     string
	CameraID  string
	EventType string
	Limit     int
}

// Query returns events matching filter in deterministic replay order:
// parsed timestamp ascending, ties broken by lexicographic event_id.
func (l *Log) Query(f Filter) []core.AlertEvent {
	l.mu.RLock()
	snapshot := append([]core.AlertEvent(nil), l.entries...)
	l.mu.RUnlock()

	since, sinceOK := ParseTimestamp(f.Since)
	until, untilOK := ParseTimestamp(f.Until)
	cameraID := strings.TrimSpace(f.CameraID)
	eventType := core.NormalizeEventType(f.EventType)

	out := make([]core.AlertEvent, 0, len(snapshot))
	for _, e := range snapshot {
		ts, tsOK := parsedTimestamp(e)

		if sinceOK {
			// Events that fail to parse are excluded from since-bounded
			// queries to keep pagination deterministic (spec §4.9).
			if !tsOK || !ts.After(since) {
				continue
			}
		}
		if untilOK && tsOK && ts.After(until) {
			continue
		}
		if cameraID != "" && e.CameraID != cameraID {
			continue
		}
		if eventType != "" && core.NormalizeEventType(string(e.EventType)) != eventType {
			continue
		}
		out = append(out, e)
	}

	sort.SliceStable(out, func(i, j int) bool {
		ti, _ := parsedTimestamp(out[i])
		tj, _ := parsedTimestamp(out[j])
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return out[i].EventID < out[j].EventID
	})

	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// parsedTimestamp re-parses an already-stored event's Timestamp field
// for sort/filter purposes; since Append always stamps a valid
// time.Time, this only returns !ok for entries loaded from an external
// source (e.g. a restored file mirror) whose timestamp serialized oddly.
func parsedTimestamp(e core.AlertEvent) (time.Time, bool) {
	if !e.Timestamp.IsZero() {
		return e.Timestamp.UTC(), true
	}
	return time.Time{}, false
}

// Len reports how many events are currently held.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
