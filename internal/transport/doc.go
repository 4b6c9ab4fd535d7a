// Package transport provides the pooled HTTP client shared by the job source
// and printer adapters.
//
// The main components are:
//
//   - [Client]: HTTP client wrapper with per-request timeouts and size limits
//   - [Request]: Method, URL, body and headers of a single call
//   - [Response]: Structured outcome of a call, including transport errors
//
// Each remote endpoint gets its own [Client] so keep-alive connections are
// reused across poll cycles without any cross-endpoint coupling.
package transport
