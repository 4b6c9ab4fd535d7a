package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jpalmerr/printrelay/internal/job"
	"github.com/jpalmerr/printrelay/internal/jobsource"
)

// ErrAlreadyStarted is returned when [Poller.Run] is called more than once.
var ErrAlreadyStarted = errors.New("poller already started")

// Source fetches the next pending payload. Implementations must report every
// outcome through the result rather than panicking.
type Source interface {
	Fetch(ctx context.Context) jobsource.FetchResult
}

// Dispatcher delivers a job to the printer. A nil error means the printer
// accepted the document.
type Dispatcher interface {
	Print(ctx context.Context, j *job.PrintJob) error
}

// State is the lifecycle state of a [Poller].
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// MarshalText implements encoding.TextMarshaler so State renders as a word in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Outcome classifies a completed poll cycle.
type Outcome string

const (
	OutcomePrinted     Outcome = "printed"
	OutcomePrintFailed Outcome = "print_failed"
	OutcomeEmpty       Outcome = "empty"
	OutcomeFetchFailed Outcome = "fetch_failed"
	OutcomePanic       Outcome = "panic"
)

// CycleResult describes one poll cycle.
type CycleResult struct {
	// ID identifies the cycle in logs. Panics are logged under this ID.
	ID string

	StartedAt time.Time
	Duration  time.Duration
	Outcome   Outcome

	// Interval is the sleep, in interval units, that follows this cycle.
	Interval int

	// PayloadBytes is the size of the fetched document, zero without one.
	PayloadBytes int

	// Err holds the fetch, dispatch or panic error, if any.
	Err error
}

// Status is a point-in-time view of a [Poller], safe to read while it runs.
type Status struct {
	State        State     `json:"state"`
	Interval     int       `json:"interval_s"`
	BaseInterval int       `json:"base_interval_s"`
	MaxInterval  int       `json:"max_interval_s"`
	Multiplier   float64   `json:"backoff_multiplier"`
	Cycles       int64     `json:"cycles"`
	LastCycleAt  time.Time `json:"last_cycle_at,omitempty"`
	LastOutcome  Outcome   `json:"last_outcome,omitempty"`
}

// Option configures a [Poller].
type Option func(*Poller)

// WithObserver registers a function called after every cycle. Observers run
// on the poll goroutine and must not block; panics are recovered and logged.
func WithObserver(fn func(CycleResult)) Option {
	return func(p *Poller) {
		if fn != nil {
			p.observers = append(p.observers, fn)
		}
	}
}

// Poller runs the fetch, dispatch and sleep loop with adaptive backoff.
//
// Exactly one goroutine runs the loop; the interval and state are only written
// by that goroutine and are stored atomically so [Poller.Status] can be read
// concurrently. A stop request takes effect after the in-flight cycle: network
// calls are bounded by their own timeouts, not by the stop signal.
type Poller struct {
	source    Source
	printer   Dispatcher
	cfg       Config
	logger    *slog.Logger
	observers []func(CycleResult)

	state    atomic.Int32
	interval atomic.Int64
	cycles   atomic.Int64

	mu   sync.Mutex
	last CycleResult

	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// New creates a [Poller]. The configuration is validated and defaults are
// applied for an unset Unit.
func New(source Source, printer Dispatcher, cfg Config, logger *slog.Logger, opts ...Option) (*Poller, error) {
	if source == nil {
		return nil, errors.New("poller: source is required")
	}
	if printer == nil {
		return nil, errors.New("poller: printer is required")
	}
	if cfg.Unit == 0 {
		cfg.Unit = time.Second
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &Poller{
		source:  source,
		printer: printer,
		cfg:     cfg,
		logger:  logger.With("component", "poller"),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	p.interval.Store(int64(cfg.BaseInterval))
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Run executes poll cycles until [Poller.Stop] is called or ctx is done.
//
// Run blocks and returns nil on a clean stop. A single cycle's failure never
// ends the loop. Calling Run twice returns [ErrAlreadyStarted].
func (p *Poller) Run(ctx context.Context) error {
	if !p.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return ErrAlreadyStarted
	}
	defer close(p.done)

	p.interval.Store(int64(p.cfg.BaseInterval))
	p.logger.Info("poller started",
		"interval", p.cfg.duration(p.cfg.BaseInterval).String(),
		"max_interval", p.cfg.duration(p.cfg.MaxInterval).String(),
		"backoff_multiplier", p.cfg.Multiplier,
	)

	// cycles must not be cut short by a stop request
	cycleCtx := context.WithoutCancel(ctx)

	for !p.stopRequested(ctx) {
		p.runCycle(cycleCtx)
		if !p.sleep(ctx) {
			break
		}
	}

	p.state.Store(int32(StateStopping))
	p.logger.Info("poller stopping", "cycles", p.cycles.Load())
	p.state.Store(int32(StateStopped))
	p.logger.Info("poller stopped")
	return nil
}

// Stop requests a graceful stop. It does not wait; use [Poller.Done].
// Safe to call multiple times and before Run.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		p.state.CompareAndSwap(int32(StateRunning), int32(StateStopping))
		p.logger.Info("stop requested")
		close(p.stopCh)
	})
}

// Done returns a channel closed when Run returns.
func (p *Poller) Done() <-chan struct{} {
	return p.done
}

// State returns the current lifecycle state.
func (p *Poller) State() State {
	return State(p.state.Load())
}

// Interval returns the current sleep interval in interval units.
func (p *Poller) Interval() int {
	return int(p.interval.Load())
}

// Status returns a snapshot of the poller.
func (p *Poller) Status() Status {
	p.mu.Lock()
	last := p.last
	p.mu.Unlock()

	return Status{
		State:        p.State(),
		Interval:     p.Interval(),
		BaseInterval: p.cfg.BaseInterval,
		MaxInterval:  p.cfg.MaxInterval,
		Multiplier:   p.cfg.Multiplier,
		Cycles:       p.cycles.Load(),
		LastCycleAt:  last.StartedAt,
		LastOutcome:  last.Outcome,
	}
}

func (p *Poller) stopRequested(ctx context.Context) bool {
	select {
	case <-p.stopCh:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// sleep waits for the current interval and reports whether polling should
// continue.
func (p *Poller) sleep(ctx context.Context) bool {
	timer := time.NewTimer(p.cfg.duration(p.Interval()))
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-p.stopCh:
		return false
	case <-ctx.Done():
		return false
	}
}

// runCycle executes one cycle inside a panic boundary and notifies observers.
// A panicking cycle leaves the interval unchanged.
func (p *Poller) runCycle(ctx context.Context) {
	result := CycleResult{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("poll cycle panic",
					"correlation_id", result.ID,
					"panic", fmt.Sprintf("%v", r),
					"stack", string(debug.Stack()),
				)
				result.Outcome = OutcomePanic
				result.Err = fmt.Errorf("poll cycle panic (correlation_id: %s)", result.ID)
			}
		}()
		p.cycle(ctx, &result)
	}()

	result.Duration = time.Since(result.StartedAt)
	result.Interval = p.Interval()

	p.cycles.Add(1)
	p.mu.Lock()
	p.last = result
	p.mu.Unlock()

	for _, fn := range p.observers {
		p.notifySafe(fn, result)
	}
}

// cycle fetches, optionally dispatches, and adjusts the interval. The new
// interval is stored only once the cycle has finished.
func (p *Poller) cycle(ctx context.Context, result *CycleResult) {
	fetched := p.source.Fetch(ctx)

	if !fetched.HasData() {
		result.Outcome = OutcomeEmpty
		if fetched.Outcome == jobsource.OutcomeFailure {
			result.Outcome = OutcomeFetchFailed
			result.Err = fetched.Err
		}

		current := p.Interval()
		next := NextInterval(current, p.cfg.MaxInterval, p.cfg.Multiplier)
		if next != current {
			p.logger.Debug("poll interval increased",
				"from", p.cfg.duration(current).String(),
				"to", p.cfg.duration(next).String(),
				"at_max", next == p.cfg.MaxInterval,
			)
		}
		p.interval.Store(int64(next))
		return
	}

	p.logger.Info("print data received", "bytes", len(fetched.XML))

	// data arrived, so the next poll uses the base interval whatever the
	// printer does
	p.interval.Store(int64(p.cfg.BaseInterval))

	j := job.New(fetched.XML)
	result.PayloadBytes = j.Size()

	if err := p.printer.Print(ctx, j); err != nil {
		result.Outcome = OutcomePrintFailed
		result.Err = err
		p.logger.Warn("print failed, job dropped",
			"job", j.String(),
			"error", err.Error(),
		)
		return
	}

	result.Outcome = OutcomePrinted
	p.logger.Info("print completed", "job", j.String())
}

// notifySafe calls an observer with panic recovery.
func (p *Poller) notifySafe(fn func(CycleResult), result CycleResult) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("cycle observer panicked",
				"panic", r,
				"cycle_id", result.ID,
			)
		}
	}()
	fn(result)
}
