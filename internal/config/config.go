// Package config loads the engine's YAML configuration file, applies
// ${ENV_VAR} interpolation and the recognized environment overrides, and
// validates the result. Generalizes the teacher's internal/core/config.go
// (env-override pattern, getDefaultConfig/validateConfig split) from a
// flat struct to the nested cameras/reasoning/notifications/perception
// shape spec.md §6 requires.
package config

import (
	"fmt"
	"time"

	"github.com/physical-mcp/engine/internal/core"
)

// Config is the whole engine configuration (spec §6 top-level keys).
type Config struct {
	RulesPath     string              `yaml:"rules_path"`
	MemoryPath    string              `yaml:"memory_path"`
	AlertLogPath  string              `yaml:"alert_log_path"`
	Cameras       []core.Camera       `yaml:"cameras"`
	Reasoning     ReasoningConfig     `yaml:"reasoning"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Perception    PerceptionConfig    `yaml:"perception"`
	CostControl   CostControlConfig  `yaml:"cost_control"`
	VisionAPI     VisionAPIConfig     `yaml:"vision_api"`
	Server        ServerConfig        `yaml:"server"`
}

// ReasoningConfig configures the VLM provider (empty Provider => client-side
// fallback mode, per spec §4.8).
type ReasoningConfig struct {
	Provider             string  `yaml:"provider"`
	APIKey               string  `yaml:"api_key"`
	Model                string  `yaml:"model"`
	BaseURL              string  `yaml:"base_url"`
	ConfidenceThreshold  float64 `yaml:"confidence_threshold"`
	CallTimeoutSeconds   int     `yaml:"call_timeout_seconds"`
}

// PerceptionConfig holds the change-detector/sampler thresholds (spec §4.3,
// §4.4).
type PerceptionConfig struct {
	MinorThreshold       int `yaml:"minor_threshold"`
	ModerateThreshold    int `yaml:"moderate_threshold"`
	MajorThreshold       int `yaml:"major_threshold"`
	CooldownSeconds      int `yaml:"cooldown_seconds"`
	DebounceSeconds      int `yaml:"debounce_seconds"`
	HeartbeatSeconds     int `yaml:"heartbeat_seconds"`
	FrameBufferCapacity  int `yaml:"frame_buffer_capacity"`
	StalenessSeconds     int `yaml:"staleness_seconds"`
	OpenTimeoutSeconds   int `yaml:"open_timeout_seconds"`
	DefaultFPS           int `yaml:"default_fps"`
}

// CostControlConfig is the budget cap (spec §3 Stats, §4.12).
type CostControlConfig struct {
	DailyBudgetUSD float64 `yaml:"daily_budget_usd"`
	HourlyRateCap  int     `yaml:"hourly_rate_cap"`
}

// VisionAPIConfig is the secondary HTTP surface's bind address + auth.
type VisionAPIConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	AuthToken string `yaml:"auth_token"`
}

// ServerConfig is the MCP-facing transport (outside this spec's scope
// beyond naming the bind address it shares with VisionAPI by default).
type ServerConfig struct {
	Transport string `yaml:"transport"`
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Headless  bool   `yaml:"headless"`
}

// TelegramConfig is the Telegram Bot API channel's routing data.
type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
}

// DiscordConfig is the Discord webhook channel's routing data.
type DiscordConfig struct {
	WebhookURL string `yaml:"webhook_url"`
}

// SlackConfig is the Slack webhook channel's routing data.
type SlackConfig struct {
	WebhookURL string `yaml:"webhook_url"`
}

// NtfyConfig is the ntfy topic channel's routing data.
type NtfyConfig struct {
	Server string `yaml:"server"`
	Topic  string `yaml:"topic"`
}

// WebhookConfig is the generic JSON webhook channel's routing data.
type WebhookConfig struct {
	URL string `yaml:"url"`
}

// DesktopConfig enables OS-native notifications.
type DesktopConfig struct {
	Enabled bool `yaml:"enabled"`
}

// NotificationsConfig bundles every channel's configuration plus the
// default channel used for system events (spec §4.10).
type NotificationsConfig struct {
	DefaultChannel core.ChannelKind `yaml:"default_channel"`
	Telegram       TelegramConfig   `yaml:"telegram"`
	Discord        DiscordConfig    `yaml:"discord"`
	Slack          SlackConfig      `yaml:"slack"`
	Ntfy           NtfyConfig       `yaml:"ntfy"`
	Webhook        WebhookConfig    `yaml:"webhook"`
	Desktop        DesktopConfig    `yaml:"desktop"`
}

// Default returns the configuration defaults named throughout spec.md.
func Default() *Config {
	return &Config{
		RulesPath:    "rules.yaml",
		MemoryPath:   "memory.json",
		AlertLogPath: "",
		Reasoning: ReasoningConfig{
			ConfidenceThreshold: 0.75,
			CallTimeoutSeconds:  30,
		},
		Perception: PerceptionConfig{
			MinorThreshold:      5,
			ModerateThreshold:   12,
			MajorThreshold:      25,
			CooldownSeconds:     10,
			DebounceSeconds:     3,
			HeartbeatSeconds:    120,
			FrameBufferCapacity: 300,
			StalenessSeconds:    10,
			OpenTimeoutSeconds:  20,
			DefaultFPS:          2,
		},
		CostControl: CostControlConfig{
			DailyBudgetUSD: 5.0,
			HourlyRateCap:  60,
		},
		VisionAPI: VisionAPIConfig{
			Host: "0.0.0.0",
			Port: 8787,
		},
		Server: ServerConfig{
			Transport: "stdio",
			Host:      "0.0.0.0",
			Port:      8787,
		},
		Notifications: NotificationsConfig{
			DefaultChannel: core.ChannelNone,
		},
	}
}

// Validate enforces the invariants Load must reject at startup
// (spec §7: config_invalid is fatal).
func (c *Config) Validate() error {
	if c.Perception.MinorThreshold < 0 || c.Perception.ModerateThreshold < c.Perception.MinorThreshold ||
		c.Perception.MajorThreshold < c.Perception.ModerateThreshold {
		return core.New(core.KindConfigInvalid, "change thresholds must be nondecreasing: minor <= moderate <= major")
	}
	if c.Reasoning.ConfidenceThreshold < 0 || c.Reasoning.ConfidenceThreshold > 1 {
		return core.New(core.KindConfigInvalid, "reasoning.confidence_threshold must be within [0,1]")
	}
	if c.Perception.FrameBufferCapacity <= 0 {
		return core.New(core.KindConfigInvalid, "perception.frame_buffer_capacity must be positive")
	}
	if c.CostControl.DailyBudgetUSD < 0 {
		return core.New(core.KindConfigInvalid, "cost_control.daily_budget_usd must not be negative")
	}
	if c.VisionAPI.Port <= 0 || c.VisionAPI.Port > 65535 {
		return core.New(core.KindConfigInvalid, "vision_api.port must be a valid TCP port")
	}
	for _, cam := range c.Cameras {
		if cam.ID == "" {
			return core.New(core.KindConfigInvalid, "every camera requires an id")
		}
	}
	return nil
}

// CallTimeout is the VLM call deadline as a time.Duration.
func (c *ReasoningConfig) CallTimeout() time.Duration {
	if c.CallTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.CallTimeoutSeconds) * time.Second
}

// ServerSideEnabled reports whether a VLM provider is configured (spec
// §9 glossary: Server-side mode vs. Client-side/fallback mode).
func (c *ReasoningConfig) ServerSideEnabled() bool {
	return c.Provider != ""
}

// Address formats host:port for the vision API bind address.
func (v VisionAPIConfig) Address() string {
	return fmt.Sprintf("%s:%d", v.Host, v.Port)
}
