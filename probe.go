package printrelay

import "context"

// ProbeResult holds the outcome of [Relay.Probe]. A nil field means the
// endpoint answered.
type ProbeResult struct {
	// API is set when the job API is unreachable or rejects the token POST.
	API error

	// Printer is set when the printer does not answer a GET. Many printers
	// reject GET on their print endpoint, so this is advisory.
	Printer error
}

// OK reports whether the job API is usable. Printer failures do not count.
func (p ProbeResult) OK() bool {
	return p.API == nil
}

type pinger interface {
	Ping(ctx context.Context) error
}

func probe(ctx context.Context, api, prn pinger) ProbeResult {
	return ProbeResult{
		API:     api.Ping(ctx),
		Printer: prn.Ping(ctx),
	}
}
