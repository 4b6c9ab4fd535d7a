package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/printrelay"
)

func main() {
	// start mock job API and printer (see mock_server.go)
	go StartMockServer(":9999")
	time.Sleep(100 * time.Millisecond)

	r, err := printrelay.New(
		printrelay.WithJobSource("http://localhost:9999/api/printData", mockToken),
		printrelay.WithPrinter("http://localhost:9999/print"),
		printrelay.WithPollInterval(2*time.Second, 16*time.Second, 2),
		printrelay.WithStatusPort(8080),
		printrelay.WithCycleCallback(func(c printrelay.CycleResult) {
			if c.Outcome == printrelay.OutcomePrintFailed {
				slog.Warn("label not printed", "cycle", c.ID, "error", c.Err)
			}
		}),
	)
	if err != nil {
		slog.Error("failed to create relay", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  printrelay demo")
	fmt.Println()
	fmt.Println("  Mock job API and printer on :9999")
	fmt.Println("  Status:  http://localhost:8080/api/status")
	fmt.Println("  Cycles:  http://localhost:8080/api/cycles")
	fmt.Println("  Stream:  curl -N http://localhost:8080/api/sse")
	fmt.Println()
	fmt.Println("  Press Ctrl+C to stop")
	fmt.Println()

	// set up context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := r.Start(ctx); err != nil {
		slog.Error("relay error", "error", err)
		os.Exit(1)
	}
}
