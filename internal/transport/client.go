package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultMaxBodySize caps response bodies read by a [Client].
const DefaultMaxBodySize = 1 << 20 // 1MB

// a single poller talks to a single host, so the pool stays small
const (
	defaultMaxIdleConns        = 4
	defaultMaxIdleConnsPerHost = 2
	defaultMaxConnsPerHost     = 2
	defaultIdleConnTimeout     = 90 * time.Second
)

// ErrBodyTooLarge is reported when a response body exceeds the client limit.
var ErrBodyTooLarge = errors.New("response body exceeds size limit")

// Request describes a single HTTP call made through [Client.Do].
type Request struct {
	// Method is the HTTP method. Empty defaults to GET.
	Method string

	// URL is the target URL.
	URL string

	// Body is sent as the request body. nil sends no body.
	Body []byte

	// Headers are set on the outgoing request.
	Headers map[string]string
}

// Response holds the result of an HTTP request made by [Client].
type Response struct {
	// Body contains the HTTP response body, limited by the client's max size.
	Body []byte

	// StatusCode is the HTTP status code (e.g., 200, 404, 500).
	// Zero if the request failed before receiving a response.
	StatusCode int

	// Latency is the total time taken for the request.
	Latency time.Duration

	// Error contains any transport error that occurred during the request.
	// nil indicates a response was received; check StatusCode for HTTP errors.
	Error error
}

// OK reports whether the request completed with a 2xx status.
func (r Response) OK() bool {
	return r.Error == nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Option configures a [Client].
type Option func(*Client)

// WithInsecureSkipVerify disables TLS certificate verification.
//
// Network printers commonly present self-signed certificates.
func WithInsecureSkipVerify() Option {
	return func(c *Client) {
		c.insecure = true
	}
}

// WithMaxBodySize overrides [DefaultMaxBodySize].
func WithMaxBodySize(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxBodySize = n
		}
	}
}

// Client is an HTTP client wrapper for the relay's two remote endpoints.
//
// Client uses per-request timeouts via context rather than a global timeout.
// Response bodies are limited to prevent memory issues.
type Client struct {
	httpClient  *http.Client
	insecure    bool
	maxBodySize int64
}

// NewClient creates a new [Client] with keep-alive connection pooling.
func NewClient(opts ...Option) *Client {
	c := &Client{maxBodySize: DefaultMaxBodySize}
	for _, opt := range opts {
		opt(c)
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        defaultMaxIdleConns,
		MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
		MaxConnsPerHost:     defaultMaxConnsPerHost,
		IdleConnTimeout:     defaultIdleConnTimeout,
		DisableKeepAlives:   false,
	}
	if c.insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // printers on local networks
	}

	// no default timeout - we use per-request timeouts via context
	c.httpClient = &http.Client{Transport: transport}
	return c
}

// Do performs an HTTP request and returns a structured [Response].
//
// The timeout is applied via context cancellation. Do always returns a
// Response; errors are captured in the Error field rather than returned
// separately, so callers can log status and body uniformly.
func (c *Client) Do(ctx context.Context, r Request, timeout time.Duration) Response {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()

	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if r.Body != nil {
		body = bytes.NewReader(r.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.URL, body)
	if err != nil {
		return Response{
			Latency: time.Since(start),
			Error:   fmt.Errorf("failed to create request: %w", err),
		}
	}

	for key, value := range r.Headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Response{
			Latency: time.Since(start),
			Error:   fmt.Errorf("request failed: %w", err),
		}
	}
	defer func() { _ = resp.Body.Close() }()

	// read one byte past the limit so oversized bodies are detected
	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize+1))
	if err != nil {
		return Response{
			StatusCode: resp.StatusCode,
			Latency:    time.Since(start),
			Error:      fmt.Errorf("failed to read response body: %w", err),
		}
	}
	if int64(len(data)) > c.maxBodySize {
		return Response{
			Body:       data[:c.maxBodySize],
			StatusCode: resp.StatusCode,
			Latency:    time.Since(start),
			Error:      fmt.Errorf("%w (%d bytes)", ErrBodyTooLarge, c.maxBodySize),
		}
	}

	return Response{
		Body:       data,
		StatusCode: resp.StatusCode,
		Latency:    time.Since(start),
	}
}

// Close closes all idle connections in the client's connection pool.
//
// Safe to call multiple times and on a nil client. The client remains
// usable afterwards; new connections are established as needed.
func (c *Client) Close() {
	if c == nil || c.httpClient == nil {
		return
	}
	if transport, ok := c.httpClient.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}

// Truncate returns at most n bytes of body as a string, for log output.
func Truncate(body []byte, n int) string {
	if len(body) <= n {
		return string(body)
	}
	return string(body[:n]) + "..."
}
