package main

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/wdalert/alertd/internal/notifier"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration and show usable channels",
		Long: `Loads the configuration, resolves channel credentials from the environment
and prints which channels would be active. Secrets are never printed.
Exits non-zero when alerts are enabled but no channel is usable.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
}

func runCheck(out, errOut io.Writer) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	fmt.Fprintf(out, "config:     %s\n", configPath)
	fmt.Fprintf(out, "enabled:    %t\n", cfg.Alerts.Enabled)
	fmt.Fprintf(out, "state file: %s\n", cfg.Alerts.StatePath)
	fmt.Fprintf(out, "queue:      %d\n", cfg.Alerts.MaxQueue)
	fmt.Fprintf(out, "cooldown:   %s (dedupe %s, %d overrides)\n",
		cfg.Alerts.DefaultCooldown(), cfg.Alerts.DedupeWindow(), len(cfg.Alerts.Cooldowns))

	channels, errs := notifier.DefaultRegistry().Build(cfg.Alerts, zerolog.Nop())
	defer func() {
		for _, ch := range channels {
			if c, ok := ch.(io.Closer); ok {
				_ = c.Close()
			}
		}
	}()

	fmt.Fprintln(out, "channels:")
	for _, ch := range channels {
		fmt.Fprintf(out, "  ok    %s\n", ch.Name())
	}
	for _, err := range errs {
		fmt.Fprintf(out, "  skip  %v\n", err)
	}

	if cfg.Alerts.Enabled && len(channels) == 0 {
		fmt.Fprintln(errOut, "alerts are enabled but no channel is usable")
		return fmt.Errorf("no usable channels")
	}
	return nil
}
