package config

import "time"

// Config represents the complete alertd configuration
type Config struct {
	Alerts  AlertsConfig  `yaml:"alerts"`
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
}

// AlertsConfig configures the dispatch engine and its channels
type AlertsConfig struct {
	Enabled                bool           `yaml:"enabled"`
	StatePath              string         `yaml:"state_path"`
	MaxQueue               int            `yaml:"max_queue"`
	Tag                    string         `yaml:"tag"`
	CooldownSecondsDefault *int           `yaml:"cooldown_seconds_default"`
	Cooldowns              map[string]int `yaml:"cooldowns,omitempty"`
	DedupeSeconds          *int           `yaml:"dedupe_seconds"`
	IncludeHost            *bool          `yaml:"include_host,omitempty"`
	IncludeIdentity        *bool          `yaml:"include_identity,omitempty"`
	Backends               []string       `yaml:"backends"`

	Telegram TelegramConfig `yaml:"telegram"`
	Discord  DiscordConfig  `yaml:"discord"`
	Apprise  AppriseConfig  `yaml:"apprise"`
	NATS     NATSConfig     `yaml:"nats"`
}

// TelegramConfig configures the chat-bot channel
type TelegramConfig struct {
	TokenEnv          string     `yaml:"token_env"`
	ChatIDs           Recipients `yaml:"chat_ids"`
	ChatID            Recipients `yaml:"chat_id,omitempty"`
	ParseMode         string     `yaml:"parse_mode"`
	DisableWebPreview *bool      `yaml:"disable_web_preview,omitempty"`
	TimeoutSeconds    int        `yaml:"timeout_s"`
	RatePerSecond     float64    `yaml:"rate_per_second,omitempty"`
	APIBase           string     `yaml:"api_base,omitempty"`
}

// DiscordConfig configures the discord webhook channel
type DiscordConfig struct {
	WebhookEnv     string `yaml:"webhook_env"`
	TimeoutSeconds int    `yaml:"timeout_s"`
}

// AppriseConfig configures delivery through an Apprise API server
type AppriseConfig struct {
	URLEnv         string `yaml:"url_env"`
	Title          string `yaml:"title,omitempty"`
	TimeoutSeconds int    `yaml:"timeout_s"`
}

// NATSConfig configures publishing alerts to a NATS subject
type NATSConfig struct {
	URLEnv         string `yaml:"url_env"`
	Subject        string `yaml:"subject"`
	TimeoutSeconds int    `yaml:"timeout_s"`
}

// ServerConfig configures the HTTP and gRPC listeners of the daemon
type ServerConfig struct {
	Listen     string `yaml:"listen"`
	GRPCListen string `yaml:"grpc_listen,omitempty"`
}

// LoggingConfig configures zerolog output
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file,omitempty"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// DefaultCooldown returns the cooldown applied to events without an
// override. An explicit 0 disables it.
func (a AlertsConfig) DefaultCooldown() time.Duration {
	return seconds(a.CooldownSecondsDefault, DefaultCooldownSeconds)
}

// CooldownTable returns per-event cooldown overrides
func (a AlertsConfig) CooldownTable() map[string]time.Duration {
	out := make(map[string]time.Duration, len(a.Cooldowns))
	for event, secs := range a.Cooldowns {
		out[event] = time.Duration(secs) * time.Second
	}
	return out
}

// DedupeWindow returns the identical-content suppression window. An
// explicit 0 disables it.
func (a AlertsConfig) DedupeWindow() time.Duration {
	return seconds(a.DedupeSeconds, DefaultDedupeSeconds)
}

func seconds(v *int, def int) time.Duration {
	if v == nil {
		return time.Duration(def) * time.Second
	}
	return time.Duration(*v) * time.Second
}

// HostIncluded reports whether the host name goes into rendered headers
func (a AlertsConfig) HostIncluded() bool {
	return a.IncludeHost == nil || *a.IncludeHost
}

// IdentityIncluded reports whether the identity field goes into rendered headers
func (a AlertsConfig) IdentityIncluded() bool {
	return a.IncludeIdentity == nil || *a.IncludeIdentity
}

// Recipients returns the configured chat ids, accepting either key
func (t TelegramConfig) Recipients() []string {
	if len(t.ChatIDs) > 0 {
		return t.ChatIDs
	}
	return t.ChatID
}

// WebPreviewDisabled defaults to true
func (t TelegramConfig) WebPreviewDisabled() bool {
	return t.DisableWebPreview == nil || *t.DisableWebPreview
}

// Timeout converts a seconds setting to a duration
func Timeout(seconds int) time.Duration {
	if seconds <= 0 {
		return DefaultTimeoutSeconds * time.Second
	}
	return time.Duration(seconds) * time.Second
}
