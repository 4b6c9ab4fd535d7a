package store

import "time"

// CycleRecord is the stored form of a poll cycle, shaped for the status API.
type CycleRecord struct {
	// ID is the cycle's correlation ID.
	ID string `json:"id"`

	// Outcome is one of printed, print_failed, empty, fetch_failed, panic.
	Outcome string `json:"outcome"`

	// StartedAt is when the cycle began.
	StartedAt time.Time `json:"started_at"`

	// DurationMs is how long the cycle took, excluding the sleep.
	DurationMs int64 `json:"duration_ms"`

	// IntervalS is the sleep that followed the cycle, in seconds.
	IntervalS int `json:"interval_s"`

	// PayloadBytes is the size of the fetched document, zero without one.
	PayloadBytes int `json:"payload_bytes,omitempty"`

	// Error contains the failure message, nil when the cycle had none.
	Error *string `json:"error"`
}

// Store defines recording of and subscription to poll cycles.
//
// Store implementations must be safe for concurrent access.
type Store interface {
	// Record appends a cycle and notifies all subscribers.
	Record(rec CycleRecord)

	// Recent returns up to limit records, newest first. limit <= 0 returns all.
	Recent(limit int) []CycleRecord

	// Counts returns the number of recorded cycles per outcome since start.
	Counts() map[string]int64

	// Subscribe returns a buffered channel receiving new records.
	// Caller must call Unsubscribe when done to prevent resource leaks.
	Subscribe() <-chan CycleRecord

	// Unsubscribe removes a subscription and closes the channel.
	// Safe to call with a channel that was already unsubscribed.
	Unsubscribe(ch <-chan CycleRecord)
}
