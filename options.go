package printrelay

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"
)

// relayConfig holds mutable state during Relay construction.
type relayConfig struct {
	apiURL       string
	token        string
	printerURL   string
	apiTimeout   time.Duration
	printTimeout time.Duration
	pollInterval time.Duration
	maxInterval  time.Duration
	multiplier   float64
	statusPort   int
	historySize  int
	preflight    bool
	logger       *slog.Logger
	callbacks    []func(CycleResult)

	// intervalUnit is the real duration of one interval second.
	intervalUnit time.Duration
}

// seconds converts d to whole seconds.
func (c relayConfig) seconds(d time.Duration) int {
	return int(d / time.Second)
}

// Option is a function that configures a [Relay] instance during construction.
//
// Options return an error if validation fails.
type Option func(*relayConfig) error

// WithJobSource sets the job API URL and the shared-secret token posted to it.
//
// Returns an error if the URL is empty or not http(s).
func WithJobSource(apiURL, token string) Option {
	return func(cfg *relayConfig) error {
		if err := checkHTTPURL("job api url", apiURL); err != nil {
			return err
		}
		cfg.apiURL = apiURL
		cfg.token = token
		return nil
	}
}

// WithPrinter sets the URL the XML documents are posted to.
//
// Returns an error if the URL is empty or not http(s).
func WithPrinter(printerURL string) Option {
	return func(cfg *relayConfig) error {
		if err := checkHTTPURL("printer url", printerURL); err != nil {
			return err
		}
		cfg.printerURL = printerURL
		return nil
	}
}

// WithTimeout sets the per-request timeout for both the job API and the
// printer. Defaults to 10 seconds.
//
// Returns an error if the duration is zero or negative.
func WithTimeout(d time.Duration) Option {
	return func(cfg *relayConfig) error {
		if d <= 0 {
			return errors.New("timeout must be positive")
		}
		cfg.apiTimeout = d
		cfg.printTimeout = d
		return nil
	}
}

// WithPollInterval sets the adaptive polling parameters.
//
// Polling starts at base. Every cycle that finds no job multiplies the
// interval by multiplier, rounding down to whole seconds, up to max. A
// cycle that finds a job resets the interval to base.
//
// Example:
//
//	r, err := printrelay.New(
//	    printrelay.WithPollInterval(5*time.Second, 30*time.Second, 1.5),
//	)
//
// Returns an error if base is below one second, either interval is not a
// whole number of seconds, max is below base, or multiplier is below 1.
func WithPollInterval(base, max time.Duration, multiplier float64) Option {
	return func(cfg *relayConfig) error {
		if base < time.Second {
			return fmt.Errorf("poll interval must be at least 1s, got %s", base)
		}
		if base%time.Second != 0 || max%time.Second != 0 {
			return errors.New("poll intervals must be whole seconds")
		}
		if max < base {
			return fmt.Errorf("max poll interval (%s) must not be below poll interval (%s)", max, base)
		}
		if multiplier < 1 {
			return fmt.Errorf("backoff multiplier must be >= 1, got %v", multiplier)
		}
		cfg.pollInterval = base
		cfg.maxInterval = max
		cfg.multiplier = multiplier
		return nil
	}
}

// WithStatusPort enables the read-only status server on the given port.
// Zero disables it, which is the default.
//
// Returns an error if the port is outside 0-65535.
func WithStatusPort(port int) Option {
	return func(cfg *relayConfig) error {
		if port < 0 || port > 65535 {
			return fmt.Errorf("status port must be between 0 and 65535, got %d", port)
		}
		cfg.statusPort = port
		return nil
	}
}

// WithHistorySize sets how many recent cycles the status server retains.
//
// Returns an error if n is zero or negative.
func WithHistorySize(n int) Option {
	return func(cfg *relayConfig) error {
		if n <= 0 {
			return errors.New("history size must be positive")
		}
		cfg.historySize = n
		return nil
	}
}

// WithPreflight makes [Relay.Start] probe both endpoints before polling.
func WithPreflight(enabled bool) Option {
	return func(cfg *relayConfig) error {
		cfg.preflight = enabled
		return nil
	}
}

// WithLogger sets a custom [slog.Logger]. If not specified, [slog.Default]
// is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *relayConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithCycleCallback registers a function called after every poll cycle.
//
// Multiple callbacks run in registration order. Callbacks run on the poll
// goroutine, so a blocking callback delays the next poll. Panics within
// callbacks are recovered and logged.
//
// Example:
//
//	r, err := printrelay.New(
//	    printrelay.WithCycleCallback(func(c printrelay.CycleResult) {
//	        if c.Outcome == printrelay.OutcomePrintFailed {
//	            log.Printf("print failed: %v", c.Err)
//	        }
//	    }),
//	)
//
// Nil callbacks are silently ignored.
func WithCycleCallback(cb func(CycleResult)) Option {
	return func(cfg *relayConfig) error {
		if cb == nil {
			return nil
		}
		cfg.callbacks = append(cfg.callbacks, cb)
		return nil
	}
}

// withIntervalUnit scales every sleep so tests run fast.
func withIntervalUnit(d time.Duration) Option {
	return func(cfg *relayConfig) error {
		cfg.intervalUnit = d
		return nil
	}
}

func checkHTTPURL(name, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", name)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https, got %q", name, raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%s has no host: %q", name, raw)
	}
	return nil
}
