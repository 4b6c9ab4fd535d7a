// Package server provides the optional read-only status API of the relay.
//
// It reports the poll loop's state, the current backoff interval, recent
// cycles and per-outcome counters, and streams new cycles over Server-Sent
// Events. Routing uses gorilla/mux. The server shuts down when its context is
// cancelled, with a 5-second timeout for in-flight requests.
package server
