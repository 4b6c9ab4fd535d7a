package config

import (
	"log/slog"

	"github.com/jpalmerr/printrelay"
)

// BuildOptions converts a validated configuration into relay options.
//
// The logger is passed through unchanged; callers build it from the
// LogLevel, LogFormat and LogFile fields.
func BuildOptions(cfg *Config, logger *slog.Logger) []printrelay.Option {
	opts := []printrelay.Option{
		printrelay.WithJobSource(cfg.APIURL, cfg.APIToken),
		printrelay.WithPrinter(cfg.PrinterURL),
		printrelay.WithTimeout(cfg.APITimeout.Duration()),
		printrelay.WithPollInterval(
			cfg.PollInterval.Duration(),
			cfg.MaxPollInterval.Duration(),
			cfg.BackoffMultiplier,
		),
		printrelay.WithStatusPort(cfg.StatusPort),
		printrelay.WithPreflight(cfg.Preflight),
	}

	if logger != nil {
		opts = append(opts, printrelay.WithLogger(logger))
	}

	return opts
}
