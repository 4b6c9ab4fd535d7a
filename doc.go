// Package printrelay relays print jobs from a remote job API to a
// network-attached printer.
//
// The relay polls the job API with a shared-secret token. When the API
// returns a base64-encoded XML document, the relay decodes it and posts it to
// the printer. Idle polls back off exponentially up to a ceiling; a poll that
// finds a job resets the interval.
//
// # Quick Start
//
//	r, _ := printrelay.New(
//	    printrelay.WithJobSource("https://shop.example.com/api/printData", os.Getenv("API_TOKEN")),
//	    printrelay.WithPrinter("https://192.168.1.50:9100"),
//	)
//
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	r.Start(ctx) // blocks until context is cancelled
//
// # Polling
//
// With the defaults (5s base, 30s ceiling, multiplier 1.5) consecutive idle
// polls sleep 5, 7, 10, 15, 22, 30, 30 seconds. Failed polls of the job API
// are scheduled like idle ones. Failed prints are logged and dropped; the job
// API is responsible for serving the job again.
//
// # Observing cycles
//
// [WithCycleCallback] receives a [CycleResult] for every poll. [WithStatusPort]
// serves the same history over HTTP:
//
//   - GET /healthz: 200 while polling, 503 otherwise
//   - GET /api/status: current interval, state and per-outcome counters
//   - GET /api/cycles?limit=N: recent cycles, newest first
//   - GET /api/sse: Server-Sent Events stream of new cycles
//
// # Architecture
//
//   - internal/transport: pooled HTTP client with timeouts and body limits
//   - internal/jobsource: job API fetch and base64 decode
//   - internal/printer: XML dispatch to the printer
//   - internal/poller: poll loop, backoff and lifecycle
//   - internal/store: in-memory cycle history with pub/sub
//   - internal/server: status API
//   - internal/logging: slog setup with optional log file
//
// The internal packages are not part of the public API.
package printrelay
