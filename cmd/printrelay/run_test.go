package main

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func TestAwaitShutdown(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	relayErr := errors.New("listener closed")

	tests := []struct {
		name    string
		send    bool
		result  error
		wantErr error
	}{
		{"clean stop", true, nil, nil},
		{"relay error", true, relayErr, relayErr},
		{"relay never returns", false, nil, errShutdownTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errChan := make(chan error, 1)
			if tt.send {
				errChan <- tt.result
			}

			err := awaitShutdown(logger, errChan, 20*time.Millisecond)

			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("awaitShutdown() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("awaitShutdown() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
