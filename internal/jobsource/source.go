// Package jobsource fetches pending print payloads from the remote job API.
//
// The API is polled with a form-encoded POST carrying a shared-secret token
// and answers with JSON of the form {"success": bool, "data": "<base64 XML>"}.
// [Source.Fetch] never returns an error: every outcome is reported as a
// tagged [FetchResult] so the poll loop can schedule on it directly.
package jobsource

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/jpalmerr/printrelay/internal/transport"
)

// maxResponseSize allows for large base64 payloads (labels with embedded images).
const maxResponseSize = 16 << 20

var (
	// ErrDecode wraps base64 and UTF-8 decoding failures of the data field.
	ErrDecode = errors.New("decode payload")

	// ErrMalformed wraps JSON parsing failures of the API response.
	ErrMalformed = errors.New("malformed response")
)

// Outcome classifies a fetch.
type Outcome int

const (
	// OutcomeEmpty means the API confirmed nothing is pending.
	OutcomeEmpty Outcome = iota

	// OutcomeJob means a payload was fetched and decoded.
	OutcomeJob

	// OutcomeFailure means the API could not be reached or its answer could
	// not be used. Scheduling treats it like OutcomeEmpty.
	OutcomeFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeEmpty:
		return "empty"
	case OutcomeJob:
		return "job"
	case OutcomeFailure:
		return "failure"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// FetchResult is the tagged result of [Source.Fetch].
type FetchResult struct {
	Outcome Outcome

	// XML is the decoded payload. Set only for OutcomeJob.
	XML string

	// Err describes why the fetch failed. Set only for OutcomeFailure.
	Err error

	// Latency is the round-trip time of the API call.
	Latency time.Duration
}

// HasData reports whether the result carries a payload to print.
func (r FetchResult) HasData() bool {
	return r.Outcome == OutcomeJob
}

// apiResponse mirrors the job API body. Data stays raw so that null, absent
// and non-string values can be told apart.
type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

// Config holds the job API connection settings.
type Config struct {
	URL     string
	Token   string
	Timeout time.Duration
}

// Source polls the remote job API.
type Source struct {
	client  *transport.Client
	url     string
	token   string
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a [Source] with its own pooled HTTP client.
func New(cfg Config, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{
		client:  transport.NewClient(transport.WithMaxBodySize(maxResponseSize)),
		url:     cfg.URL,
		token:   cfg.Token,
		timeout: cfg.Timeout,
		logger:  logger.With("component", "jobsource"),
	}
}

// URL returns the configured API URL.
func (s *Source) URL() string {
	return s.url
}

// Fetch asks the API for a pending payload and decodes it.
func (s *Source) Fetch(ctx context.Context) FetchResult {
	resp := s.post(ctx)

	if resp.Error != nil {
		return s.failure(resp.Latency, resp.Error, "job api request failed")
	}
	if !resp.OK() {
		err := fmt.Errorf("unexpected status %d: %s", resp.StatusCode, transport.Truncate(resp.Body, 200))
		return s.failure(resp.Latency, err, "job api returned an error status")
	}

	var body apiResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return s.failure(resp.Latency, fmt.Errorf("%w: %v", ErrMalformed, err), "failed to parse job api response")
	}

	if !body.Success || isNull(body.Data) {
		s.logger.Debug("no data available", "success", body.Success)
		return FetchResult{Outcome: OutcomeEmpty, Latency: resp.Latency}
	}

	var encoded string
	if err := json.Unmarshal(body.Data, &encoded); err != nil {
		return s.failureLevel(slog.LevelError, resp.Latency,
			fmt.Errorf("%w: data is not a string", ErrDecode), "failed to decode payload")
	}
	if encoded == "" {
		s.logger.Debug("no data available", "success", body.Success)
		return FetchResult{Outcome: OutcomeEmpty, Latency: resp.Latency}
	}

	xml, err := Decode(encoded)
	if err != nil {
		return s.failureLevel(slog.LevelError, resp.Latency, err, "failed to decode payload")
	}

	s.logger.Info("received print payload",
		"bytes", len(xml),
		"latency_ms", resp.Latency.Milliseconds(),
	)
	return FetchResult{Outcome: OutcomeJob, XML: xml, Latency: resp.Latency}
}

// Ping checks that the API answers the token POST with a 2xx status.
func (s *Source) Ping(ctx context.Context) error {
	resp := s.post(ctx)
	if resp.Error != nil {
		return fmt.Errorf("job api unreachable: %w", resp.Error)
	}
	if !resp.OK() {
		return fmt.Errorf("job api returned status %d", resp.StatusCode)
	}
	s.logger.Info("job api reachable", "url", s.url, "latency_ms", resp.Latency.Milliseconds())
	return nil
}

// Close releases idle connections.
func (s *Source) Close() {
	s.client.Close()
}

func (s *Source) post(ctx context.Context) transport.Response {
	form := url.Values{"token": {s.token}}
	return s.client.Do(ctx, transport.Request{
		Method: http.MethodPost,
		URL:    s.url,
		Body:   []byte(form.Encode()),
		Headers: map[string]string{
			"Content-Type": "application/x-www-form-urlencoded",
			"Accept":       "application/json",
		},
	}, s.timeout)
}

// failure logs a job API failure at WARN; the API being unreachable is
// scheduled like an empty answer but must stay visible in the logs.
func (s *Source) failure(latency time.Duration, err error, msg string) FetchResult {
	return s.failureLevel(slog.LevelWarn, latency, err, msg)
}

func (s *Source) failureLevel(level slog.Level, latency time.Duration, err error, msg string) FetchResult {
	s.logger.Log(context.Background(), level, msg,
		"url", s.url,
		"error", err.Error(),
		"latency_ms", latency.Milliseconds(),
	)
	return FetchResult{Outcome: OutcomeFailure, Err: err, Latency: latency}
}

// Decode turns a base64 payload into UTF-8 text. Embedded whitespace, as
// produced by line-wrapping encoders, is ignored.
func Decode(encoded string) (string, error) {
	compact := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, encoded)

	raw, err := base64.StdEncoding.DecodeString(compact)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("%w: payload is not valid UTF-8", ErrDecode)
	}
	return string(raw), nil
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
