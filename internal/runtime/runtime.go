// Package runtime holds the process-level plumbing shared by the booking
// service binary: logger construction, shutdown signalling, and the health
// endpoints.
package runtime

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// NewLogger builds the process logger: JSON to stdout, tagged with the
// service name so booking and availability lines are filterable in aggregate.
// LOG_LEVEL accepts debug/info/warn/error; anything else means info.
func NewLogger(service string) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(os.Getenv("LOG_LEVEL"))); err != nil {
		level = slog.LevelInfo
	}
	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(h).With("service", service)
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM. Shutdown
// order matters here: the HTTP server drains in-flight bookings before the
// outbox publisher loop (also bound to this context) stops.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
