package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"patientsync/internal/app"
	"patientsync/internal/config"
	"patientsync/internal/logging"
)

const shutdownTimeout = 30 * time.Second

type serveOptions struct {
	ConfigPath string
	Port       int
	LogLevel   string
}

func newServeCommand() *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the patient hub and the alarm mutator",
		Long: `Run the PatientSync server until SIGINT or SIGTERM.

Settings come from defaults, then PATIENTSYNC_* environment variables, then
the --config file. --port and --log-level override all of them.

Example:
  patientsync serve --config ./patientsync.yaml
  patientsync serve --port 9000 --log-level debug`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			return runServer(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to a YAML or JSON config file")
	cmd.Flags().IntVarP(&opts.Port, "port", "p", 0, "HTTP port (overrides config)")
	cmd.Flags().StringVar(&opts.LogLevel, "log-level", "", "log level: debug, info, warn or error (overrides config)")

	return cmd
}

// loadConfig applies flags that were set on top of the loaded configuration.
func loadConfig(cmd *cobra.Command, opts *serveOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("port") {
		cfg.HTTP.Port = opts.Port
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = opts.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func runServer(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}

	logger, err := logging.NewLogger(cfg.Log.Level, cfg.Log.Format, "patientsync")
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	application, err := app.NewApplication(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case runErr = <-application.Fatal():
		logger.Error("fatal error, shutting down", zap.Error(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := application.Stop(shutdownCtx); err != nil {
		logger.Warn("shutdown completed with errors", zap.Error(err))
	}
	return runErr
}
