package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wdalert/alertd/internal/alerter"
	"github.com/wdalert/alertd/internal/api"
	"github.com/wdalert/alertd/internal/logging"
	"github.com/wdalert/alertd/internal/version"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the alert dispatcher",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logs := logging.New(cfg.Logging, os.Stdout, 1000)
	defer logs.Close()
	logger := logs.Logger

	logger.Info().
		Str("config_path", configPath).
		Bool("alerts_enabled", cfg.Alerts.Enabled).
		Strs("backends", cfg.Alerts.Backends).
		Msg("Starting alertd")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dispatcher := alerter.New(cfg.Alerts, nil, logger, logging.Callback(logger))
	dispatcher.Start(ctx)

	apiServer := api.NewServer(dispatcher, logger, cfg.Server.Listen)
	apiServer.SetLogBuffer(logs.Buffer)
	apiServer.SetVersion(version.Version, version.Commit, version.BuildDate)

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error().
				Err(err).
				Msg("API server error")
		}
	}()

	var grpcServer *api.GRPCServer
	if cfg.Server.GRPCListen != "" {
		grpcServer = api.NewGRPCServer(cfg.Server.GRPCListen, dispatcher, logger)
		go func() {
			if err := grpcServer.Start(); err != nil {
				logger.Error().
					Err(err).
					Msg("gRPC server error")
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info().Msg("alertd running, press Ctrl+C to stop")

	<-sigChan
	logger.Info().Msg("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Error stopping API server")
	}
	if grpcServer != nil {
		grpcServer.Stop()
	}

	dispatcher.Stop()
	cancel()

	logger.Info().Msg("alertd stopped")
	return nil
}
