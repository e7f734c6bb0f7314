package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultStatePath       = "data/state/alerts_state.json"
	DefaultMaxQueue        = 200
	DefaultCooldownSeconds = 900
	DefaultDedupeSeconds   = 300
	DefaultTimeoutSeconds  = 8
	DefaultParseMode       = "HTML"
	DefaultNATSSubject     = "watchdog.alerts"

	DefaultTelegramTokenEnv  = "RUST_WD_TELEGRAM_TOKEN"
	DefaultDiscordWebhookEnv = "RUST_WD_DISCORD_WEBHOOK"
	DefaultAppriseURLEnv     = "RUST_WD_APPRISE_URL"
	DefaultNATSURLEnv        = "RUST_WD_NATS_URL"
)

// LoadConfig loads configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML, applies defaults and validates the result
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	ApplyDefaults(cfg)

	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Default returns a configuration with every default applied
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills unset values
func ApplyDefaults(cfg *Config) {
	a := &cfg.Alerts
	if a.StatePath == "" {
		a.StatePath = DefaultStatePath
	}
	if a.MaxQueue == 0 {
		a.MaxQueue = DefaultMaxQueue
	}
	if a.CooldownSecondsDefault == nil {
		a.CooldownSecondsDefault = intPtr(DefaultCooldownSeconds)
	}
	if a.DedupeSeconds == nil {
		a.DedupeSeconds = intPtr(DefaultDedupeSeconds)
	}
	for i, b := range a.Backends {
		a.Backends[i] = strings.ToLower(strings.TrimSpace(b))
	}

	if a.Telegram.TokenEnv == "" {
		a.Telegram.TokenEnv = DefaultTelegramTokenEnv
	}
	if a.Telegram.ParseMode == "" {
		a.Telegram.ParseMode = DefaultParseMode
	}
	if a.Discord.WebhookEnv == "" {
		a.Discord.WebhookEnv = DefaultDiscordWebhookEnv
	}
	if a.Apprise.URLEnv == "" {
		a.Apprise.URLEnv = DefaultAppriseURLEnv
	}
	if a.NATS.URLEnv == "" {
		a.NATS.URLEnv = DefaultNATSURLEnv
	}
	if a.NATS.Subject == "" {
		a.NATS.Subject = DefaultNATSSubject
	}

	if cfg.Server.Listen == "" {
		cfg.Server.Listen = ":8088"
	}

	l := &cfg.Logging
	if l.Level == "" {
		l.Level = "info"
	}
	if l.MaxSizeMB == 0 {
		l.MaxSizeMB = 10
	}
	if l.MaxBackups == 0 {
		l.MaxBackups = 3
	}
	if l.MaxAgeDays == 0 {
		l.MaxAgeDays = 7
	}
}

func intPtr(v int) *int { return &v }

// ValidateConfig validates the configuration. Credentials are not checked
// here since the environment may only be complete at runtime.
func ValidateConfig(cfg *Config) error {
	a := cfg.Alerts
	if a.MaxQueue < 0 {
		return fmt.Errorf("alerts.max_queue must be >= 0, got %d", a.MaxQueue)
	}
	if v := a.CooldownSecondsDefault; v != nil && *v < 0 {
		return fmt.Errorf("alerts.cooldown_seconds_default must be >= 0, got %d", *v)
	}
	if v := a.DedupeSeconds; v != nil && *v < 0 {
		return fmt.Errorf("alerts.dedupe_seconds must be >= 0, got %d", *v)
	}
	for event, secs := range a.Cooldowns {
		if secs < 0 {
			return fmt.Errorf("alerts.cooldowns.%s must be >= 0, got %d", event, secs)
		}
	}
	if a.Telegram.RatePerSecond < 0 {
		return fmt.Errorf("alerts.telegram.rate_per_second must be >= 0, got %v", a.Telegram.RatePerSecond)
	}

	for _, timeout := range []struct {
		name string
		secs int
	}{
		{"telegram", a.Telegram.TimeoutSeconds},
		{"discord", a.Discord.TimeoutSeconds},
		{"apprise", a.Apprise.TimeoutSeconds},
		{"nats", a.NATS.TimeoutSeconds},
	} {
		if timeout.secs < 0 {
			return fmt.Errorf("alerts.%s.timeout_s must be >= 0, got %d", timeout.name, timeout.secs)
		}
	}
	return nil
}
