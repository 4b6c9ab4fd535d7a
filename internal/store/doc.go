// Package store keeps a short in-memory history of poll cycles.
//
// The main components are:
//
//   - [Store]: Interface defining recording and subscription operations
//   - [MemoryStore]: Bounded ring of recent cycles with per-outcome counters
//   - [CycleRecord]: JSON representation of one poll cycle
//
// Nothing is persisted; the history is lost on restart. Subscribers receive
// records via channels with non-blocking sends, so slow subscribers miss
// records rather than stall the poll loop.
package store
