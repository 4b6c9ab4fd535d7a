package printrelay

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

const testXML = `<?xml version="1.0" encoding="UTF-8"?><label><line>Order 42</line></label>`

// testLogger returns a logger that discards all output for clean test output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// jobAPI serves queued payloads once each, then reports nothing pending.
type jobAPI struct {
	mu     sync.Mutex
	queue  []string
	tokens []string
}

func (a *jobAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()

	a.mu.Lock()
	a.tokens = append(a.tokens, r.PostForm.Get("token"))
	var payload string
	if len(a.queue) > 0 {
		payload, a.queue = a.queue[0], a.queue[1:]
	}
	a.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if payload == "" {
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"data":    base64.StdEncoding.EncodeToString([]byte(payload)),
	})
}

// printerStub records every document posted to it.
type printerStub struct {
	mu     sync.Mutex
	docs   []string
	ctypes []string
	status int
}

func (p *printerStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	p.mu.Lock()
	p.docs = append(p.docs, string(body))
	p.ctypes = append(p.ctypes, r.Header.Get("Content-Type"))
	status := p.status
	p.mu.Unlock()

	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write([]byte("<ok/>"))
}

func (p *printerStub) received() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.docs...)
}

// newTestRelay starts stub endpoints and returns a relay polling them with
// millisecond sleeps.
func newTestRelay(t *testing.T, api *jobAPI, prn *printerStub, opts ...Option) *Relay {
	t.Helper()

	apiSrv := httptest.NewServer(api)
	t.Cleanup(apiSrv.Close)
	prnSrv := httptest.NewTLSServer(prn)
	t.Cleanup(prnSrv.Close)

	base := []Option{
		WithJobSource(apiSrv.URL, "s3cret"),
		WithPrinter(prnSrv.URL),
		WithTimeout(2 * time.Second),
		WithPollInterval(1*time.Second, 4*time.Second, 2),
		WithLogger(testLogger()),
		withIntervalUnit(time.Millisecond),
	}
	r, err := New(append(base, opts...)...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return r
}

// TestStart_RelaysJobToPrinter verifies the end-to-end path: fetch, decode,
// and post to a self-signed TLS printer.
func TestStart_RelaysJobToPrinter(t *testing.T) {
	api := &jobAPI{queue: []string{testXML}}
	prn := &printerStub{}

	printed := make(chan CycleResult, 1)
	r := newTestRelay(t, api, prn, WithCycleCallback(func(c CycleResult) {
		if c.Outcome == OutcomePrinted {
			select {
			case printed <- c:
			default:
			}
		}
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Start(ctx) }()

	var result CycleResult
	select {
	case result = <-printed:
	case <-time.After(5 * time.Second):
		t.Fatal("no printed cycle observed")
	}
	cancel()

	if err := <-done; err != nil {
		t.Errorf("Start() error = %v", err)
	}

	docs := prn.received()
	if len(docs) != 1 || docs[0] != testXML {
		t.Fatalf("printer received %q, want exactly the decoded XML", docs)
	}
	prn.mu.Lock()
	ctype := prn.ctypes[0]
	prn.mu.Unlock()
	if ctype != "application/xml" {
		t.Errorf("Content-Type = %q, want application/xml", ctype)
	}
	if result.PayloadBytes != len(testXML) {
		t.Errorf("PayloadBytes = %d, want %d", result.PayloadBytes, len(testXML))
	}
	if result.NextPoll != time.Millisecond {
		t.Errorf("NextPoll = %v, want base interval", result.NextPoll)
	}

	api.mu.Lock()
	defer api.mu.Unlock()
	for _, tok := range api.tokens {
		if tok != "s3cret" {
			t.Errorf("token = %q, want %q", tok, "s3cret")
		}
	}
}

// TestStart_BacksOffWhenIdle verifies the interval doubles up to the ceiling.
func TestStart_BacksOffWhenIdle(t *testing.T) {
	var mu sync.Mutex
	var intervals []time.Duration
	enough := make(chan struct{})

	r := newTestRelay(t, &jobAPI{}, &printerStub{}, WithCycleCallback(func(c CycleResult) {
		mu.Lock()
		defer mu.Unlock()
		intervals = append(intervals, c.NextPoll)
		if len(intervals) == 4 {
			close(enough)
		}
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Start(ctx) }()

	select {
	case <-enough:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for idle cycles")
	}
	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	want := []time.Duration{2 * time.Millisecond, 4 * time.Millisecond, 4 * time.Millisecond, 4 * time.Millisecond}
	for i, w := range want {
		if intervals[i] != w {
			t.Errorf("cycle %d NextPoll = %v, want %v", i, intervals[i], w)
		}
	}
}

// TestStart_PrintFailureDoesNotStop verifies a rejected job is dropped and
// polling continues at the base interval.
func TestStart_PrintFailureDoesNotStop(t *testing.T) {
	api := &jobAPI{queue: []string{testXML}}
	prn := &printerStub{status: http.StatusInternalServerError}

	var mu sync.Mutex
	var outcomes []Outcome
	enough := make(chan struct{})

	r := newTestRelay(t, api, prn, WithCycleCallback(func(c CycleResult) {
		mu.Lock()
		defer mu.Unlock()
		outcomes = append(outcomes, c.Outcome)
		if len(outcomes) == 3 {
			close(enough)
		}
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Start(ctx) }()

	select {
	case <-enough:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for cycles")
	}
	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	if outcomes[0] != OutcomePrintFailed {
		t.Errorf("first outcome = %q, want %q", outcomes[0], OutcomePrintFailed)
	}
	if outcomes[1] != OutcomeEmpty || outcomes[2] != OutcomeEmpty {
		t.Errorf("later outcomes = %v, want empty", outcomes[1:3])
	}
	if got := len(prn.received()); got != 1 {
		t.Errorf("printer received %d documents, want 1 (no retry)", got)
	}
}

// TestStart_ReturnsImmediatelyIfContextAlreadyCancelled verifies that Start
// returns without polling if the context is already cancelled.
func TestStart_ReturnsImmediatelyIfContextAlreadyCancelled(t *testing.T) {
	api := &jobAPI{}
	r := newTestRelay(t, api, &printerStub{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() { done <- r.Start(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start() did not return with already-cancelled context")
	}

	api.mu.Lock()
	defer api.mu.Unlock()
	if len(api.tokens) != 0 {
		t.Errorf("job API polled %d times, want 0", len(api.tokens))
	}
}

// TestStart_PreflightFailsOnUnreachableAPI verifies Start refuses to poll
// when the job API is down.
func TestStart_PreflightFailsOnUnreachableAPI(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen error = %v", err)
	}
	deadURL := "http://" + ln.Addr().String()
	_ = ln.Close()

	r, err := New(
		WithJobSource(deadURL, "tok"),
		WithPrinter(deadURL),
		WithTimeout(500*time.Millisecond),
		WithPreflight(true),
		WithLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	err = r.Start(context.Background())
	if err == nil {
		t.Fatal("Start() expected preflight error, got nil")
	}
	if !strings.Contains(err.Error(), "preflight") {
		t.Errorf("Start() error = %v, want preflight error", err)
	}
}

// TestStart_PreflightToleratesPrinterGETRejection verifies that a printer
// which rejects GET does not block startup.
func TestStart_PreflightToleratesPrinterGETRejection(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen error = %v", err)
	}
	deadPrinter := "http://" + ln.Addr().String()
	_ = ln.Close()

	apiSrv := httptest.NewServer(&jobAPI{})
	defer apiSrv.Close()

	cycled := make(chan struct{}, 1)
	r, err := New(
		WithJobSource(apiSrv.URL, "tok"),
		WithPrinter(deadPrinter),
		WithTimeout(500*time.Millisecond),
		WithPollInterval(1*time.Second, 1*time.Second, 1),
		WithPreflight(true),
		WithLogger(testLogger()),
		withIntervalUnit(time.Millisecond),
		WithCycleCallback(func(CycleResult) {
			select {
			case cycled <- struct{}{}:
			default:
			}
		}),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Start(ctx) }()

	select {
	case <-cycled:
	case <-time.After(5 * time.Second):
		t.Fatal("polling did not start after printer preflight failure")
	}
	cancel()

	if err := <-done; err != nil {
		t.Errorf("Start() error = %v", err)
	}
}

// TestStart_ServesStatus verifies the status server reflects the running poller.
func TestStart_ServesStatus(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen error = %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()

	r := newTestRelay(t, &jobAPI{}, &printerStub{}, WithStatusPort(port))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Start(ctx) }()

	url := "http://127.0.0.1:" + strconv.Itoa(port) + "/healthz"
	deadline := time.Now().Add(5 * time.Second)
	var code int
	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err == nil {
			code = resp.StatusCode
			_ = resp.Body.Close()
			if code == http.StatusOK {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	cancel()
	<-done

	if code != http.StatusOK {
		t.Errorf("GET /healthz = %d, want 200 while running", code)
	}
}

// TestStart_MultipleSequentialRuns verifies that a Relay can be started again
// after the previous run shut down.
func TestStart_MultipleSequentialRuns(t *testing.T) {
	r := newTestRelay(t, &jobAPI{}, &printerStub{})

	for i := 0; i < 3; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- r.Start(ctx) }()

		time.Sleep(20 * time.Millisecond)
		cancel()

		select {
		case err := <-done:
			if err != nil {
				t.Errorf("iteration %d: Start() error = %v", i, err)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("iteration %d: Start() did not return", i)
		}
	}
}

func TestProbe(t *testing.T) {
	r := newTestRelay(t, &jobAPI{}, &printerStub{})

	res := r.Probe(context.Background())
	if !res.OK() {
		t.Errorf("Probe().OK() = false, API error = %v", res.API)
	}
	if res.Printer != nil {
		t.Errorf("Probe().Printer = %v, want nil", res.Printer)
	}
}

func TestProbe_APIRejectsToken(t *testing.T) {
	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer apiSrv.Close()

	r, err := New(WithJobSource(apiSrv.URL, "wrong"), WithPrinter(apiSrv.URL), WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if res := r.Probe(context.Background()); res.OK() {
		t.Error("Probe().OK() = true, want false for 401")
	}
}
