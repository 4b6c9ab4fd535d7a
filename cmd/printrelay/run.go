package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/printrelay"
	"github.com/jpalmerr/printrelay/config"
	"github.com/jpalmerr/printrelay/internal/logging"
)

const (
	// shutdownTimeout covers the in-flight cycle, which is bounded by the
	// request timeouts of both endpoints.
	shutdownTimeout = 30 * time.Second

	bannerWidth = 60
)

var errShutdownTimeout = errors.New("shutdown timed out")

// runCmd starts the relay.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start relaying print jobs",
	Long: `Start polling the job API and forwarding print jobs to the printer.

The relay will:
  - Load configuration from the config file, .env and the environment
  - Check that the job API answers (and warn if the printer does not)
  - Poll the job API, backing off while idle
  - Serve the status API when status_port is set

The relay runs until interrupted (Ctrl+C) or receives SIGTERM. The poll
in progress is allowed to finish.

Example:
  printrelay run
  printrelay run -c /etc/printrelay/printrelay.yaml`,
	RunE: runRelay,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

// loadConfig reads the config and env-file flags shared by all commands.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configFile, _ := cmd.Flags().GetString("config")
	envFile, _ := cmd.Flags().GetString("env-file")
	return config.Load(configFile, envFile)
}

// newLogger builds the CLI logger from the config. The returned closer
// flushes the log file, if any.
func newLogger(cfg *config.Config, out io.Writer) (*slog.Logger, io.Closer, error) {
	return logging.New(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
		Output: out,
	})
}

func runRelay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger, closer, err := newLogger(cfg, os.Stdout)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer func() { _ = closer.Close() }()

	banner(logger, "print relay starting")
	defer banner(logger, "print relay terminated")

	logger.Info("config loaded",
		"api_url", cfg.APIURL,
		"api_token", cfg.MaskedToken(),
		"printer_url", cfg.PrinterURL,
		"poll_interval", cfg.PollInterval.Duration().String(),
		"max_poll_interval", cfg.MaxPollInterval.Duration().String(),
		"backoff_multiplier", cfg.BackoffMultiplier,
	)

	relay, err := printrelay.New(config.BuildOptions(cfg, logger)...)
	if err != nil {
		return fmt.Errorf("failed to create relay: %w", err)
	}

	// set up context with signal handling - cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		errChan <- relay.Start(ctx)
	}()

	logger.Info("press Ctrl+C to stop")

	select {
	case err := <-errChan:
		if err != nil {
			logger.Error("relay failed", "error", err.Error())
			return fmt.Errorf("relay error: %w", err)
		}
		return nil

	case <-ctx.Done():
		logger.Info("interrupt received, finishing current poll")
		return awaitShutdown(logger, errChan, shutdownTimeout)
	}
}

// awaitShutdown waits for the relay to return after an interrupt. A relay
// that outlives the timeout is abandoned and reported as an error, so the
// process exits non-zero.
func awaitShutdown(logger *slog.Logger, errChan <-chan error, timeout time.Duration) error {
	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("relay error: %w", err)
		}
		logger.Info("shutdown complete")
		return nil
	case <-time.After(timeout):
		logger.Warn("shutdown timed out",
			"timeout", timeout.String(),
			"action", "forcing exit",
		)
		return fmt.Errorf("%w after %s", errShutdownTimeout, timeout)
	}
}

func banner(logger *slog.Logger, msg string) {
	line := strings.Repeat("=", bannerWidth)
	logger.Info(line)
	logger.Info(msg, "version", version)
	logger.Info(line)
}
