package printrelay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jpalmerr/printrelay/internal/jobsource"
	"github.com/jpalmerr/printrelay/internal/poller"
	"github.com/jpalmerr/printrelay/internal/printer"
	"github.com/jpalmerr/printrelay/internal/server"
	"github.com/jpalmerr/printrelay/internal/store"
)

const (
	defaultAPIURL            = "http://localhost:8000/api/printData"
	defaultPrinterURL        = "http://192.168.1.100:9100"
	defaultTimeout           = 10 * time.Second
	defaultPollInterval      = 5 * time.Second
	defaultMaxPollInterval   = 30 * time.Second
	defaultBackoffMultiplier = 1.5
)

// Relay moves print jobs from the remote job API to a network printer.
//
// Relay is created using [New] with functional options and run with
// [Relay.Start]. The typical lifecycle is:
//
//	r, err := printrelay.New(
//	    printrelay.WithJobSource("https://shop.example.com/api/printData", token),
//	    printrelay.WithPrinter("https://192.168.1.50:9100"),
//	)
//	if err != nil {
//	    slog.Error("failed to create relay", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	r.Start(ctx) // blocks until context cancelled
//
// Cancelling the context stops polling after the in-flight cycle.
type Relay struct {
	cfg    relayConfig
	logger *slog.Logger
}

// New creates a [Relay] with the given options.
//
// Defaults:
//   - Job API: http://localhost:8000/api/printData, empty token
//   - Printer: http://192.168.1.100:9100
//   - Timeout: 10 seconds for both endpoints
//   - Polling: 5 seconds, backing off by 1.5x up to 30 seconds
//   - Status server: disabled
//   - Preflight: disabled
//
// Returns an error if any option is invalid.
func New(opts ...Option) (*Relay, error) {
	cfg := relayConfig{
		apiURL:       defaultAPIURL,
		printerURL:   defaultPrinterURL,
		apiTimeout:   defaultTimeout,
		printTimeout: defaultTimeout,
		pollInterval: defaultPollInterval,
		maxInterval:  defaultMaxPollInterval,
		multiplier:   defaultBackoffMultiplier,
		historySize:  store.DefaultCapacity,
		intervalUnit: time.Second,
	}

	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Relay{cfg: cfg, logger: logger}, nil
}

// Start polls the job API and forwards payloads to the printer.
//
// Start is a blocking call that runs until ctx is cancelled. During execution:
//
//   - The job API is polled immediately, then at the adaptive interval
//   - Each decoded payload is posted to the printer once
//   - Every cycle is delivered to registered [WithCycleCallback] functions
//   - The status server is served when [WithStatusPort] is set
//
// With [WithPreflight], an unreachable job API fails Start before polling
// begins; an unreachable printer is only logged.
//
// Returns nil on graceful shutdown.
func (r *Relay) Start(ctx context.Context) error {
	if ctx.Err() != nil {
		return nil
	}

	source := jobsource.New(jobsource.Config{
		URL:     r.cfg.apiURL,
		Token:   r.cfg.token,
		Timeout: r.cfg.apiTimeout,
	}, r.logger)
	defer source.Close()

	prn := printer.New(printer.Config{
		URL:     r.cfg.printerURL,
		Timeout: r.cfg.printTimeout,
	}, r.logger)
	defer prn.Close()

	if r.cfg.preflight {
		res := probe(ctx, source, prn)
		if res.API != nil {
			return fmt.Errorf("preflight: %w", res.API)
		}
		if res.Printer != nil {
			r.logger.Warn("printer preflight failed, continuing", "error", res.Printer.Error())
		}
	}

	cycles := store.NewMemoryStore(r.cfg.historySize)

	p, err := poller.New(source, prn, poller.Config{
		BaseInterval: r.cfg.seconds(r.cfg.pollInterval),
		MaxInterval:  r.cfg.seconds(r.cfg.maxInterval),
		Multiplier:   r.cfg.multiplier,
		Unit:         r.cfg.intervalUnit,
	}, r.logger, poller.WithObserver(func(res poller.CycleResult) {
		// store first so callbacks observe a consistent history
		cycles.Record(toCycleRecord(res))
		if len(r.cfg.callbacks) == 0 {
			return
		}
		public := toPublicResult(res, r.cfg.intervalUnit)
		for _, cb := range r.cfg.callbacks {
			invokeCallbackSafe(cb, public, r.logger)
		}
	}))
	if err != nil {
		return fmt.Errorf("create poller: %w", err)
	}

	if r.cfg.statusPort > 0 {
		srv := server.NewServer(cycles, p, r.cfg.statusPort, r.logger)
		if err := srv.Start(ctx); err != nil {
			return fmt.Errorf("failed to start status server: %w", err)
		}
	}

	r.logger.Info("print relay started",
		"api_url", r.cfg.apiURL,
		"printer_url", r.cfg.printerURL,
		"poll_interval", r.cfg.pollInterval.String(),
		"max_poll_interval", r.cfg.maxInterval.String(),
	)

	if err := p.Run(ctx); err != nil && !errors.Is(err, poller.ErrAlreadyStarted) {
		return err
	}

	r.logger.Info("print relay stopped")
	return nil
}

// Probe checks both endpoints once without polling.
func (r *Relay) Probe(ctx context.Context) ProbeResult {
	source := jobsource.New(jobsource.Config{
		URL:     r.cfg.apiURL,
		Token:   r.cfg.token,
		Timeout: r.cfg.apiTimeout,
	}, r.logger)
	defer source.Close()

	prn := printer.New(printer.Config{URL: r.cfg.printerURL, Timeout: r.cfg.printTimeout}, r.logger)
	defer prn.Close()

	return probe(ctx, source, prn)
}

// APIURL returns the configured job API URL.
func (r *Relay) APIURL() string {
	return r.cfg.apiURL
}

// PrinterURL returns the configured printer URL.
func (r *Relay) PrinterURL() string {
	return r.cfg.printerURL
}

// PollInterval returns the base interval between polls.
func (r *Relay) PollInterval() time.Duration {
	return r.cfg.pollInterval
}

// MaxPollInterval returns the ceiling the interval backs off to.
func (r *Relay) MaxPollInterval() time.Duration {
	return r.cfg.maxInterval
}

// BackoffMultiplier returns the factor applied to the interval on idle cycles.
func (r *Relay) BackoffMultiplier() float64 {
	return r.cfg.multiplier
}

// StatusPort returns the status server port, zero when disabled.
func (r *Relay) StatusPort() int {
	return r.cfg.statusPort
}

// invokeCallbackSafe calls a cycle callback with panic recovery.
// Panics are logged but do not propagate.
func invokeCallbackSafe(cb func(CycleResult), result CycleResult, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("cycle callback panicked",
				"panic", r,
				"cycle_id", result.ID,
			)
		}
	}()
	cb(result)
}
