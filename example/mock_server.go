package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"
)

// mockToken is the shared secret the mock job API accepts.
const mockToken = "demo-token"

// StartMockServer runs a mock job API on /api/printData and a mock printer
// on /print. A new label becomes pending every 10-40 seconds; the printer
// rejects roughly one document in five.
// Call this in a goroutine before starting the relay.
func StartMockServer(addr string) {
	var (
		mu      sync.Mutex
		orderNo = 1000
		nextJob = time.Now().Add(3 * time.Second)
	)

	mux := http.NewServeMux()

	mux.HandleFunc("/api/printData", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.FormValue("token") != mockToken {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		// simulate small latency variance
		time.Sleep(time.Duration(20+rand.Intn(80)) * time.Millisecond)

		mu.Lock()
		resp := map[string]any{"success": false}
		if time.Now().After(nextJob) {
			orderNo++
			xml := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?><label><order>%d</order></label>`, orderNo)
			resp = map[string]any{
				"success": true,
				"data":    base64.StdEncoding.EncodeToString([]byte(xml)),
			}
			nextJob = time.Now().Add(time.Duration(10+rand.Intn(31)) * time.Second)
			slog.Info("mock job issued", "order", orderNo)
		}
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			slog.Error("failed to write response", "error", err)
		}
	})

	mux.HandleFunc("/print", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		body, _ := io.ReadAll(r.Body)

		if rand.Intn(5) == 0 {
			slog.Info("mock printer jammed", "bytes", len(body))
			http.Error(w, "<error>paper jam</error>", http.StatusServiceUnavailable)
			return
		}
		slog.Info("mock printer printed", "bytes", len(body))
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte("<response success=\"true\"/>"))
	})

	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("mock server error", "error", err)
	}
}
