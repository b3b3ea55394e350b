package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/physical-mcp/engine/internal/core"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// interpolateEnv replaces ${VAR} occurrences in raw YAML text with the
// corresponding environment variable's value (empty string if unset),
// before the YAML parser ever sees the bytes (spec §6).
func interpolateEnv(raw []byte) []byte {
	return envVarPattern.ReplaceAllFunc(raw, func(match []byte) []byte {
		name := envVarPattern.FindSubmatch(match)[1]
		return []byte(os.Getenv(string(name)))
	})
}

// Load reads the YAML file at path, interpolates ${ENV_VAR} references,
// decodes it over the defaults (keys the file omits keep their default
// value; a key set explicitly to zero stays zero), layers the recognized
// environment overrides on top, and validates. A missing file is not an
// error: defaults plus environment are used, matching teacher's
// getDefaultConfig()+loadFromEnv() fallback behavior.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, core.Wrap(core.KindConfigInvalid, "reading config file", err)
			}
		} else {
			interpolated := interpolateEnv(raw)
			loaded := Default()
			if err := yaml.Unmarshal(interpolated, loaded); err != nil {
				return nil, core.Wrap(core.KindConfigInvalid, "parsing config YAML", err)
			}
			cfg = loaded
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides layers the recognized environment variable set from
// spec.md §6 on top of whatever the file (or defaults) produced. An empty
// string value means "unset" and leaves the existing value untouched.
func applyEnvOverrides(cfg *Config) {
	setString(&cfg.Server.Host, "PHYSICAL_MCP_HOST")
	setInt(&cfg.Server.Port, "PHYSICAL_MCP_PORT")
	setString(&cfg.VisionAPI.Host, "VISION_API_HOST")
	setInt(&cfg.VisionAPI.Port, "VISION_API_PORT")
	setString(&cfg.Reasoning.Provider, "REASONING_PROVIDER")
	setString(&cfg.Reasoning.APIKey, "REASONING_API_KEY")
	setString(&cfg.Reasoning.Model, "REASONING_MODEL")
	setString(&cfg.Reasoning.BaseURL, "REASONING_BASE_URL")
	setBool(&cfg.Server.Headless, "PHYSICAL_MCP_HEADLESS")
	setString(&cfg.Notifications.Telegram.BotToken, "TELEGRAM_BOT_TOKEN")
	setString(&cfg.Notifications.Telegram.ChatID, "TELEGRAM_CHAT_ID")

	// CLOUD_MODE has no direct config field in spec.md's data model; it is
	// recognized (accepted, never an error) but otherwise inert here —
	// cloud-hosted deployment mode is setup-wizard territory (out of
	// scope per spec.md §1).
	_ = os.Getenv("CLOUD_MODE")
}

func setString(dst *string, envVar string) {
	if v := os.Getenv(envVar); v != "" {
		*dst = v
	}
}

func setInt(dst *int, envVar string) {
	if v := os.Getenv(envVar); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, envVar string) {
	if v := os.Getenv(envVar); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

// String renders a secret-redacted summary, the way teacher's
// Config.String() redacts JWTSecret.
func (c *Config) String() string {
	redactedKey := c.Reasoning.APIKey
	if redactedKey != "" {
		redactedKey = "[REDACTED]"
	}
	redactedToken := c.Notifications.Telegram.BotToken
	if redactedToken != "" {
		redactedToken = "[REDACTED]"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Config{vision_api=%s, reasoning_provider=%q, reasoning_api_key=%s, telegram_bot_token=%s, cameras=%d}",
		c.VisionAPI.Address(), c.Reasoning.Provider, redactedKey, redactedToken, len(c.Cameras))
	return b.String()
}
