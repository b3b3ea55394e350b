// Package core holds the domain types shared by every component of the
// perception engine: frames, cameras, scene state, watch rules, and alert
// events. No component keeps its own copy of these shapes.
package core

import (
	"strings"
	"time"
)

// Frame is a single capture from one camera. Immutable after creation.
type Frame struct {
	CameraID  string    `json:"camera_id"`
	Data      []byte    `json:"-"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Sequence  uint64    `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`
}

// CameraKind is the transport a camera is reached over.
type CameraKind string

const (
	CameraKindUSB  CameraKind = "usb"
	CameraKindRTSP CameraKind = "rtsp"
	CameraKindHTTP CameraKind = "http"
)

// Camera is a configured video source.
type Camera struct {
	ID         string     `json:"id" yaml:"id"`
	Name       string     `json:"name" yaml:"name"`
	Kind       CameraKind `json:"kind" yaml:"kind"`
	URL        string     `json:"url" yaml:"url"`
	Width      int        `json:"width" yaml:"width"`
	Height     int        `json:"height" yaml:"height"`
	FPS        int        `json:"fps" yaml:"fps"`
	Enabled    bool       `json:"enabled" yaml:"enabled"`
	CreatedAt  time.Time  `json:"created_at" yaml:"created_at"`
	// unreachable flags a placeholder Camera carrying an id that a rule
	// references but that has no configuration; it is set only by
	// MarkUnreachable (spec §9 Open Questions).
	unreachable bool
}

// Unreachable reports whether this camera id could not be resolved to a
// configured camera (referenced by a rule, never registered).
func (c *Camera) Unreachable() bool {
	if c == nil {
		return true
	}
	return c.unreachable
}

// MarkUnreachable flags a placeholder Camera created only to carry an id
// that a rule references but that has no backing configuration.
func (c *Camera) MarkUnreachable() { c.unreachable = true }

// ChangeLevel buckets a perceptual-hash distance into a coarse severity.
type ChangeLevel string

const (
	ChangeNone     ChangeLevel = "NONE"
	ChangeMinor    ChangeLevel = "MINOR"
	ChangeModerate ChangeLevel = "MODERATE"
	ChangeMajor    ChangeLevel = "MAJOR"
)

// ChangeResult is the ephemeral output of the change detector for one frame.
type ChangeResult struct {
	Distance    int         `json:"distance"`
	Level       ChangeLevel `json:"level"`
	Description string      `json:"description"`
}

// ChangeLogEntry is one row of a SceneState's bounded history.
type ChangeLogEntry struct {
	Timestamp   time.Time `json:"timestamp"`
	Description string    `json:"description"`
}

// MaxChangeLogEntries bounds SceneState.ChangeLog (spec §3, §9).
const MaxChangeLogEntries = 200

// SceneState is the rolling, per-camera understanding of what a VLM has
// most recently reported, plus a short bounded history of changes.
type SceneState struct {
	CameraID          string           `json:"camera_id"`
	Summary           string           `json:"summary"`
	Objects           []string         `json:"objects"`
	PeopleCount       *int             `json:"people_count,omitempty"`
	LastChangeDesc     string           `json:"last_change_description"`
	LastUpdated       time.Time        `json:"last_updated"`
	UpdateCount       uint64           `json:"update_count"`
	ChangeLog         []ChangeLogEntry `json:"change_log"`
}

// Priority is a watch rule's notification urgency.
type Priority string

const (
	PriorityLow      Priority = "LOW"
	PriorityMedium   Priority = "MEDIUM"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

// ChannelKind enumerates notification channel variants (spec §4.10).
type ChannelKind string

const (
	ChannelAuto     ChannelKind = "auto"
	ChannelTelegram ChannelKind = "telegram"
	ChannelDiscord  ChannelKind = "discord"
	ChannelSlack    ChannelKind = "slack"
	ChannelNtfy     ChannelKind = "ntfy"
	ChannelWebhook  ChannelKind = "webhook"
	ChannelDesktop  ChannelKind = "desktop"
	ChannelNone     ChannelKind = "none"
)

// NotificationTarget describes how a triggered rule should be delivered.
type NotificationTarget struct {
	Channel       ChannelKind       `json:"channel" yaml:"channel"`
	Routing       map[string]string `json:"routing,omitempty" yaml:"routing,omitempty"`
	CustomMessage string            `json:"custom_message,omitempty" yaml:"custom_message,omitempty"`
}

// WatchRule is a user-defined natural-language condition evaluated against
// VLM output for one camera (or any camera, if CameraID is empty).
type WatchRule struct {
	ID             string             `json:"id" yaml:"id"`
	Name           string             `json:"name" yaml:"name"`
	Condition      string             `json:"condition" yaml:"condition"`
	CameraID       string             `json:"camera_id" yaml:"camera_id"`
	Priority       Priority           `json:"priority" yaml:"priority"`
	Enabled        bool               `json:"enabled" yaml:"enabled"`
	CooldownSecs   int                `json:"cooldown_seconds" yaml:"cooldown_seconds"`
	Notification   NotificationTarget `json:"notification" yaml:"notification"`
	OwnerID        string             `json:"owner_id,omitempty" yaml:"owner_id,omitempty"`
	CreatedAt      time.Time          `json:"created_at" yaml:"created_at"`
	LastTriggered  *time.Time         `json:"last_triggered" yaml:"last_triggered"`
	TriggerCount   int                `json:"trigger_count" yaml:"trigger_count"`
}

// InCooldown reports whether this rule is still within its cooldown
// window at time now. A rule that has never triggered is never in
// cooldown.
func (r *WatchRule) InCooldown(now time.Time) bool {
	if r.LastTriggered == nil || r.CooldownSecs <= 0 {
		return false
	}
	return now.Sub(*r.LastTriggered) < time.Duration(r.CooldownSecs)*time.Second
}

// MatchesCamera reports whether this rule applies to cameraID: an empty
// CameraID on the rule means "any camera".
func (r *WatchRule) MatchesCamera(cameraID string) bool {
	return r.CameraID == "" || r.CameraID == cameraID
}

// RuleEvaluation is one VLM judgment about whether a rule's condition held.
type RuleEvaluation struct {
	RuleID     string  `json:"rule_id"`
	Triggered  bool    `json:"triggered"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// EventType is the closed set of alert event kinds (spec §3).
type EventType string

const (
	EventWatchRuleTriggered     EventType = "watch_rule_triggered"
	EventProviderError          EventType = "provider_error"
	EventStartupWarning         EventType = "startup_warning"
	EventCameraAlertPendingEval EventType = "camera_alert_pending_eval"
	EventMCPLog                 EventType = "mcp_log"
)

// NormalizeEventType trims whitespace and lowercases, per spec §3 matching
// rules ("case-insensitive; leading/trailing whitespace tolerated").
func NormalizeEventType(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// AlertEvent is an immutable record the engine wants to surface to a user
// or another system. Timestamp and EventID are stamped on append if absent.
type AlertEvent struct {
	EventID    string    `json:"event_id"`
	EventType  EventType `json:"event_type"`
	CameraID   string    `json:"camera_id,omitempty"`
	CameraName string    `json:"camera_name,omitempty"`
	RuleID     string    `json:"rule_id,omitempty"`
	RuleName   string    `json:"rule_name,omitempty"`
	Priority   Priority  `json:"priority,omitempty"`
	Message    string    `json:"message"`
	Reasoning  string    `json:"reasoning,omitempty"`
	Confidence float64   `json:"confidence,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Thumbnail  string    `json:"thumbnail,omitempty"`
}

// PendingAlert is a deferred evaluation request created in client-side
// (no-VLM) mode; an external MCP client later reports back via
// ReportRuleEvaluation.
type PendingAlert struct {
	ID         string       `json:"id"`
	CameraID   string       `json:"camera_id"`
	Thumbnail  string       `json:"thumbnail"`
	Candidates []WatchRule  `json:"candidate_rules"`
	CreatedAt  time.Time    `json:"created_at"`
}

// MaxPendingAlertsPerCamera bounds the per-camera pending queue (spec §9).
const MaxPendingAlertsPerCamera = 100
