package notifier

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/wdalert/alertd/internal/config"
)

// Constructor builds a channel from the alerts configuration
type Constructor func(cfg config.AlertsConfig, logger zerolog.Logger) (Channel, error)

// Registry maps backend names to constructors
type Registry struct {
	ctors map[string]Constructor
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{ctors: make(map[string]Constructor)}
}

// DefaultRegistry returns a registry with every built-in backend
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("telegram", newTelegramFromConfig)
	r.Register("discord", newDiscordFromConfig)
	r.Register("apprise", newAppriseFromConfig)
	r.Register("nats", newNATSFromConfig)
	return r
}

// Register adds or replaces a constructor
func (r *Registry) Register(name string, ctor Constructor) {
	r.ctors[name] = ctor
}

// Names returns registered backend names, sorted
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.ctors))
	for name := range r.ctors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build constructs the configured backends in order. Backends that cannot be
// built are skipped and reported in errs; duplicates are built once.
func (r *Registry) Build(cfg config.AlertsConfig, logger zerolog.Logger) (channels []Channel, errs []error) {
	seen := make(map[string]bool, len(cfg.Backends))
	for _, name := range cfg.Backends {
		if seen[name] {
			continue
		}
		seen[name] = true

		ctor, ok := r.ctors[name]
		if !ok {
			errs = append(errs, fmt.Errorf("backend %q: %w", name, ErrUnknownBackend))
			continue
		}
		ch, err := ctor(cfg, logger)
		if err != nil {
			errs = append(errs, fmt.Errorf("backend %q: %w", name, err))
			continue
		}
		channels = append(channels, ch)
	}
	return channels, errs
}

func newTelegramFromConfig(cfg config.AlertsConfig, logger zerolog.Logger) (Channel, error) {
	tc := cfg.Telegram
	token := lookupEnv(tc.TokenEnv)
	if token == "" {
		return nil, fmt.Errorf("env %s: %w", tc.TokenEnv, ErrMissingCredential)
	}
	return NewTelegram(TelegramOptions{
		Token:             token,
		ChatIDs:           tc.Recipients(),
		ParseMode:         tc.ParseMode,
		DisableWebPreview: tc.WebPreviewDisabled(),
		Timeout:           config.Timeout(tc.TimeoutSeconds),
		RatePerSecond:     tc.RatePerSecond,
		APIBase:           tc.APIBase,
	}, logger)
}

func newDiscordFromConfig(cfg config.AlertsConfig, logger zerolog.Logger) (Channel, error) {
	dc := cfg.Discord
	webhook := lookupEnv(dc.WebhookEnv)
	if webhook == "" {
		return nil, fmt.Errorf("env %s: %w", dc.WebhookEnv, ErrMissingCredential)
	}
	return NewDiscord(webhook, config.Timeout(dc.TimeoutSeconds), logger)
}

func newAppriseFromConfig(cfg config.AlertsConfig, logger zerolog.Logger) (Channel, error) {
	ac := cfg.Apprise
	notifyURL := lookupEnv(ac.URLEnv)
	if notifyURL == "" {
		return nil, fmt.Errorf("env %s: %w", ac.URLEnv, ErrMissingCredential)
	}
	return NewApprise(notifyURL, ac.Title, config.Timeout(ac.TimeoutSeconds), logger)
}

func newNATSFromConfig(cfg config.AlertsConfig, logger zerolog.Logger) (Channel, error) {
	nc := cfg.NATS
	url := lookupEnv(nc.URLEnv)
	if url == "" {
		return nil, fmt.Errorf("env %s: %w", nc.URLEnv, ErrMissingCredential)
	}
	return DialNATS(url, nc.Subject, config.Timeout(nc.TimeoutSeconds), logger)
}
