// Package printer delivers XML print documents to an HTTP-attached printer.
package printer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jpalmerr/printrelay/internal/job"
	"github.com/jpalmerr/printrelay/internal/transport"
)

const (
	successBodyLogLimit = 200
	failureBodyLogLimit = 500
	pingTimeout         = 5 * time.Second
)

// StatusError is returned by [Printer.Print] when the printer answers with a
// non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("printer returned status %d", e.StatusCode)
}

// Config holds the printer connection settings.
type Config struct {
	URL     string
	Timeout time.Duration
}

// Printer posts XML documents to a network printer.
//
// Certificate verification is disabled: printers on local networks usually
// serve self-signed certificates or none at all.
type Printer struct {
	client  *transport.Client
	url     string
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a [Printer] with its own pooled HTTP client.
func New(cfg Config, logger *slog.Logger) *Printer {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Printer{
		client:  transport.NewClient(transport.WithInsecureSkipVerify()),
		url:     cfg.URL,
		timeout: cfg.Timeout,
		logger:  logger.With("component", "printer"),
	}
	p.logger.Info("printer configured", "url", p.url)
	return p
}

// URL returns the configured printer URL.
func (p *Printer) URL() string {
	return p.url
}

// Print sends the job's XML to the printer. It returns nil only on a 2xx
// response, and marks the job as printed. A reply body larger than the
// client limit is logged truncated and does not affect the result. Print
// never retries.
func (p *Printer) Print(ctx context.Context, j *job.PrintJob) error {
	p.logger.Info("sending document to printer", "bytes", j.Size())

	resp := p.client.Do(ctx, transport.Request{
		Method: http.MethodPost,
		URL:    p.url,
		Body:   []byte(j.XML),
		Headers: map[string]string{
			"Content-Type": "application/xml",
		},
	}, p.timeout)

	// an oversized reply still carries a status; only the status decides
	oversized := errors.Is(resp.Error, transport.ErrBodyTooLarge)

	if resp.Error != nil && !oversized {
		p.logger.Error("printer request failed",
			"url", p.url,
			"error", resp.Error.Error(),
			"latency_ms", resp.Latency.Milliseconds(),
		)
		return fmt.Errorf("send to printer %s: %w", p.url, resp.Error)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body := transport.Truncate(resp.Body, failureBodyLogLimit)
		p.logger.Error("printer rejected document",
			"status", resp.StatusCode,
			"response", body,
			"latency_ms", resp.Latency.Milliseconds(),
		)
		return &StatusError{StatusCode: resp.StatusCode, Body: body}
	}

	j.Printed = true
	p.logger.Info("printer accepted document",
		"status", resp.StatusCode,
		"response", transport.Truncate(resp.Body, successBodyLogLimit),
		"response_truncated", oversized,
		"latency_ms", resp.Latency.Milliseconds(),
	)
	return nil
}

// Ping checks whether the printer answers a GET. Many printers reject GET on
// their print endpoint, so callers should treat an error as advisory.
func (p *Printer) Ping(ctx context.Context) error {
	resp := p.client.Do(ctx, transport.Request{Method: http.MethodGet, URL: p.url}, pingTimeout)
	if resp.Error != nil {
		return fmt.Errorf("printer unreachable: %w", resp.Error)
	}
	p.logger.Info("printer reachable", "url", p.url, "status", resp.StatusCode)
	return nil
}

// Close releases idle connections.
func (p *Printer) Close() {
	p.client.Close()
}
