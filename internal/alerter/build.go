package alerter

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/wdalert/alertd/internal/config"
	"github.com/wdalert/alertd/internal/notifier"
	"github.com/wdalert/alertd/internal/render"
	"github.com/wdalert/alertd/internal/state"
)

// PolicyFromConfig builds the suppression policy from the alerts section
func PolicyFromConfig(cfg config.AlertsConfig) Policy {
	return Policy{
		DefaultCooldown: cfg.DefaultCooldown(),
		Cooldowns:       cfg.CooldownTable(),
		DedupeWindow:    cfg.DedupeWindow(),
	}
}

// New wires a dispatcher from configuration. Channel and state file problems
// are logged and never fatal: unusable channels are skipped, and an
// unreadable state file starts empty. A nil registry uses the built-in
// backends.
func New(cfg config.AlertsConfig, reg *notifier.Registry, logger zerolog.Logger, logFn LogFunc) *Dispatcher {
	log := logger.With().Str("component", "alerter").Logger()

	if !cfg.Enabled {
		log.Info().Msg("Alerts disabled by configuration")
		return NewDispatcher(Options{Disabled: true, Log: logFn}, logger)
	}

	if reg == nil {
		reg = notifier.DefaultRegistry()
	}
	channels, errs := reg.Build(cfg, logger)
	for _, err := range errs {
		log.Warn().Err(err).Msg("Skipping alert channel")
	}

	store, err := state.Open(cfg.StatePath)
	if err != nil {
		log.Error().Err(err).Msg("Alert state unreadable, starting empty")
		safeLog(logFn, "WARN", fmt.Sprintf("ALERTS: state file %s unreadable; starting with empty state", cfg.StatePath))
	}

	renderer := render.New(render.Options{
		Tag:             cfg.Tag,
		IncludeHost:     cfg.HostIncluded(),
		IncludeIdentity: cfg.IdentityIncluded(),
	})

	return NewDispatcher(Options{
		QueueSize: cfg.MaxQueue,
		Policy:    PolicyFromConfig(cfg),
		Renderer:  renderer,
		Channels:  channels,
		Store:     store,
		Log:       logFn,
	}, logger)
}

// safeLog calls fn, swallowing any panic from it
func safeLog(fn LogFunc, level, msg string) {
	if fn == nil {
		return
	}
	defer func() {
		_ = recover()
	}()
	fn(level, msg)
}
