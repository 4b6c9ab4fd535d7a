package printrelay

import (
	"time"

	"github.com/jpalmerr/printrelay/internal/poller"
	"github.com/jpalmerr/printrelay/internal/store"
)

// Outcome classifies a completed poll cycle.
type Outcome string

const (
	// OutcomePrinted means a job was fetched and the printer accepted it.
	OutcomePrinted Outcome = "printed"

	// OutcomePrintFailed means a job was fetched but the printer rejected it
	// or could not be reached. The job is not retried.
	OutcomePrintFailed Outcome = "print_failed"

	// OutcomeEmpty means the job API had nothing pending.
	OutcomeEmpty Outcome = "empty"

	// OutcomeFetchFailed means the job API could not be reached or its
	// answer could not be decoded. Scheduling treats it like OutcomeEmpty.
	OutcomeFetchFailed Outcome = "fetch_failed"

	// OutcomePanic means the cycle panicked. The panic was recovered and
	// logged under the cycle ID.
	OutcomePanic Outcome = "panic"
)

// String returns the string representation of the outcome.
func (o Outcome) String() string {
	return string(o)
}

// CycleResult holds the outcome of a single poll cycle.
type CycleResult struct {
	// ID is the cycle's correlation ID, as logged.
	ID string

	// StartedAt is when the cycle began.
	StartedAt time.Time

	// Duration is how long the fetch and dispatch took.
	Duration time.Duration

	// Outcome classifies the cycle.
	Outcome Outcome

	// NextPoll is the sleep that follows this cycle.
	NextPoll time.Duration

	// PayloadBytes is the size of the fetched XML, zero without a job.
	PayloadBytes int

	// Err describes the fetch, print or panic failure. nil for
	// OutcomePrinted and OutcomeEmpty.
	Err error
}

func toPublicResult(res poller.CycleResult, unit time.Duration) CycleResult {
	return CycleResult{
		ID:           res.ID,
		StartedAt:    res.StartedAt,
		Duration:     res.Duration,
		Outcome:      Outcome(res.Outcome),
		NextPoll:     time.Duration(res.Interval) * unit,
		PayloadBytes: res.PayloadBytes,
		Err:          res.Err,
	}
}

func toCycleRecord(res poller.CycleResult) store.CycleRecord {
	var errStr *string
	if res.Err != nil {
		s := res.Err.Error()
		errStr = &s
	}

	return store.CycleRecord{
		ID:           res.ID,
		Outcome:      string(res.Outcome),
		StartedAt:    res.StartedAt,
		DurationMs:   res.Duration.Milliseconds(),
		IntervalS:    res.Interval,
		PayloadBytes: res.PayloadBytes,
		Error:        errStr,
	}
}
