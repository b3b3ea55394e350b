// Package mcplog builds the correlated log line and mcp_log fanout event
// spec.md §4.9/§8 requires for every provider_error, watch_rule_triggered,
// camera_alert_pending_eval, and startup_warning AlertEvent: a
// "PMCP[EVENT_TYPE] | event_id=<id> | ..." line that also reaches the
// alert log as a second, mcp_log-typed entry carrying the same event_id
// as a prefix of its message. There is no MCP transport in this repo's
// scope (spec.md §1 treats MCP tool calls and HTTP handlers as two views
// onto the same operations) — this package only produces the
// correlation artifact, not the transport.
package mcplog

import (
	"fmt"
	"strings"
	"time"

	"github.com/physical-mcp/engine/internal/core"
)

// correlated is the closed set of event types that get a PMCP line and
// an mcp_log fanout entry (spec §4.9).
var correlated = map[core.EventType]bool{
	core.EventWatchRuleTriggered:     true,
	core.EventProviderError:          true,
	core.EventStartupWarning:         true,
	core.EventCameraAlertPendingEval: true,
}

// Correlated reports whether et gets a PMCP line + mcp_log fanout.
func Correlated(et core.EventType) bool {
	return correlated[et]
}

// Line builds the "PMCP[EVENT_TYPE] | event_id=<id> | camera_id=<id> |
// rule_id=<id> | ..." correlation line for event (spec §4.9).
func Line(event core.AlertEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "PMCP[%s] | event_id=%s | camera_id=%s | rule_id=%s",
		strings.ToUpper(string(event.EventType)), event.EventID, event.CameraID, event.RuleID)
	if event.Message != "" {
		fmt.Fprintf(&b, " | message=%s", event.Message)
	}
	return b.String()
}

// Fanout builds the mcp_log AlertEvent that mirrors event, per spec §4.9:
// its Message begins with the same "PMCP[...] | event_id=<id>" prefix
// that was emitted to the log line, so event's own id is carried in the
// Message text, and it copies event's camera and rule id/name fields for
// correlation. Its own EventID is left empty.
func Fanout(event core.AlertEvent, now time.Time) core.AlertEvent {
	return core.AlertEvent{
		EventType:  core.EventMCPLog,
		CameraID:   event.CameraID,
		CameraName: event.CameraName,
		RuleID:     event.RuleID,
		RuleName:   event.RuleName,
		Message:    Line(event),
		Timestamp:  now.UTC(),
	}
}
