package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/http/httptrace"
	"strings"
	"testing"
	"time"
)

// TestClient_ConnectionReuse verifies that sequential requests to the same
// host reuse pooled connections.
func TestClient_ConnectionReuse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	client := NewClient()

	var reusedCount int
	trace := &httptrace.ClientTrace{
		GotConn: func(info httptrace.GotConnInfo) {
			if info.Reused {
				reusedCount++
			}
		},
	}

	const numRequests = 5

	for i := 0; i < numRequests; i++ {
		ctx := httptrace.WithClientTrace(context.Background(), trace)
		resp := client.Do(ctx, Request{URL: server.URL}, 5*time.Second)
		if resp.Error != nil {
			t.Fatalf("request %d failed: %v", i, resp.Error)
		}
	}

	expectedMinReuse := numRequests - 2 // allow some tolerance
	if reusedCount < expectedMinReuse {
		t.Errorf("expected at least %d reused connections, got %d out of %d requests",
			expectedMinReuse, reusedCount, numRequests)
	}
}

func TestClient_Do_SendsMethodBodyAndHeaders(t *testing.T) {
	var gotMethod, gotBody, gotContentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotContentType = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("created"))
	}))
	defer server.Close()

	client := NewClient()
	resp := client.Do(context.Background(), Request{
		Method:  http.MethodPost,
		URL:     server.URL,
		Body:    []byte("<doc/>"),
		Headers: map[string]string{"Content-Type": "application/xml"},
	}, time.Second)

	if resp.Error != nil {
		t.Fatalf("Do() error = %v", resp.Error)
	}
	if !resp.OK() {
		t.Errorf("OK() = false, want true for status %d", resp.StatusCode)
	}
	if gotMethod != http.MethodPost {
		t.Errorf("method = %q, want POST", gotMethod)
	}
	if gotBody != "<doc/>" {
		t.Errorf("body = %q, want %q", gotBody, "<doc/>")
	}
	if gotContentType != "application/xml" {
		t.Errorf("Content-Type = %q, want application/xml", gotContentType)
	}
	if string(resp.Body) != "created" {
		t.Errorf("response body = %q, want %q", resp.Body, "created")
	}
}

func TestClient_Do_Non2xxIsNotTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	resp := NewClient().Do(context.Background(), Request{URL: server.URL}, time.Second)
	if resp.Error != nil {
		t.Fatalf("Do() error = %v, want nil", resp.Error)
	}
	if resp.OK() {
		t.Error("OK() = true, want false for 500")
	}
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("StatusCode = %d, want 500", resp.StatusCode)
	}
}

func TestClient_Do_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer server.Close()

	start := time.Now()
	resp := NewClient().Do(context.Background(), Request{URL: server.URL}, 50*time.Millisecond)
	if resp.Error == nil {
		t.Fatal("Do() error = nil, want timeout error")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Do() took %v, want it bounded by the timeout", elapsed)
	}
}

func TestClient_Do_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	resp := NewClient().Do(context.Background(), Request{URL: url}, time.Second)
	if resp.Error == nil {
		t.Fatal("Do() error = nil, want connection error")
	}
	if resp.StatusCode != 0 {
		t.Errorf("StatusCode = %d, want 0", resp.StatusCode)
	}
}

func TestClient_Do_BodyLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 64)))
	}))
	defer server.Close()

	resp := NewClient(WithMaxBodySize(16)).Do(context.Background(), Request{URL: server.URL}, time.Second)
	if !errors.Is(resp.Error, ErrBodyTooLarge) {
		t.Fatalf("Do() error = %v, want ErrBodyTooLarge", resp.Error)
	}
	if len(resp.Body) != 16 {
		t.Errorf("len(Body) = %d, want 16", len(resp.Body))
	}
}

func TestClient_InsecureSkipVerify(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	strict := NewClient().Do(context.Background(), Request{URL: server.URL}, time.Second)
	if strict.Error == nil {
		t.Error("verifying client accepted a self-signed certificate")
	}

	insecure := NewClient(WithInsecureSkipVerify()).Do(context.Background(), Request{URL: server.URL}, time.Second)
	if insecure.Error != nil {
		t.Fatalf("insecure client error = %v", insecure.Error)
	}
	if !insecure.OK() {
		t.Errorf("StatusCode = %d, want 200", insecure.StatusCode)
	}
}

// TestClient_Close verifies that Close() is safe to call and idempotent.
func TestClient_Close(t *testing.T) {
	client := NewClient()

	client.Close()
	client.Close()
}

// TestClient_Close_NilClient verifies that Close() handles nil receiver safely.
func TestClient_Close_NilClient(t *testing.T) {
	var client *Client

	client.Close()
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		body string
		n    int
		want string
	}{
		{"shorter than limit", "abc", 5, "abc"},
		{"equal to limit", "abcde", 5, "abcde"},
		{"longer than limit", "abcdef", 3, "abc..."},
		{"empty", "", 3, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Truncate([]byte(tt.body), tt.n); got != tt.want {
				t.Errorf("Truncate() = %q, want %q", got, tt.want)
			}
		})
	}
}
