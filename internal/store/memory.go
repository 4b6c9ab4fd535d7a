package store

import (
	"sync"
)

// DefaultCapacity is the number of cycles a [MemoryStore] retains.
const DefaultCapacity = 100

const subscriberBuffer = 100

// MemoryStore is an in-memory implementation of [Store].
//
// Records are kept in a fixed-size ring; once full, the oldest record is
// overwritten. Counters are never evicted.
type MemoryStore struct {
	mu     sync.RWMutex
	ring   []CycleRecord
	next   int
	full   bool
	counts map[string]int64

	subscribers map[chan CycleRecord]struct{}
	subMu       sync.RWMutex
}

// NewMemoryStore creates a [MemoryStore] retaining capacity records.
// A non-positive capacity uses [DefaultCapacity].
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MemoryStore{
		ring:        make([]CycleRecord, capacity),
		counts:      make(map[string]int64),
		subscribers: make(map[chan CycleRecord]struct{}),
	}
}

// Record stores a [CycleRecord] and notifies all subscribers.
func (m *MemoryStore) Record(rec CycleRecord) {
	m.mu.Lock()
	m.ring[m.next] = rec
	m.next = (m.next + 1) % len(m.ring)
	if m.next == 0 {
		m.full = true
	}
	m.counts[rec.Outcome]++
	m.mu.Unlock()

	m.notifySubscribers(rec)
}

// Recent returns up to limit records, newest first.
//
// The returned slice is a copy; modifications do not affect the store.
func (m *MemoryStore) Recent(limit int) []CycleRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	size := m.next
	if m.full {
		size = len(m.ring)
	}
	if limit <= 0 || limit > size {
		limit = size
	}

	out := make([]CycleRecord, 0, limit)
	idx := m.next
	for i := 0; i < limit; i++ {
		idx = (idx - 1 + len(m.ring)) % len(m.ring)
		out = append(out, m.ring[idx])
	}
	return out
}

// Counts returns a copy of the per-outcome counters.
func (m *MemoryStore) Counts() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]int64, len(m.counts))
	for k, v := range m.counts {
		out[k] = v
	}
	return out
}

// Subscribe creates a new subscription and returns a channel for receiving
// records. If the buffer fills, new records are dropped for this subscriber.
func (m *MemoryStore) Subscribe() <-chan CycleRecord {
	ch := make(chan CycleRecord, subscriberBuffer)

	m.subMu.Lock()
	m.subscribers[ch] = struct{}{}
	m.subMu.Unlock()

	return ch
}

// Unsubscribe removes a subscription and closes its channel.
func (m *MemoryStore) Unsubscribe(ch <-chan CycleRecord) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	for subCh := range m.subscribers {
		if subCh == ch {
			delete(m.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

// notifySubscribers sends the record to all subscribers without blocking.
func (m *MemoryStore) notifySubscribers(rec CycleRecord) {
	m.subMu.RLock()
	defer m.subMu.RUnlock()

	for ch := range m.subscribers {
		select {
		case ch <- rec:
		default:
			// subscriber is slow, drop the record
		}
	}
}
