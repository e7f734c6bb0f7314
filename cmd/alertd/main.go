package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/wdalert/alertd/internal/config"
	"github.com/wdalert/alertd/internal/version"
)

var (
	configPath string
	logLevel   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "alertd",
		Short: "Asynchronous alert dispatcher for watchdog processes",
		Long: `alertd accepts alert events, suppresses repeats with per-event cooldowns and
content dedupe, and delivers the rest to Telegram, Discord, Apprise or NATS.

  alertd serve    Run the dispatcher with its HTTP and gRPC endpoints
  alertd check    Show which configured channels are usable
  alertd state    Print the persisted suppression state`,
		Version:      version.String(),
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "/config/alertd.yaml", "path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error); overrides the config file")

	rootCmd.AddCommand(
		newServeCmd(),
		newCheckCmd(),
		newStateCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file and applies command-line overrides
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}
