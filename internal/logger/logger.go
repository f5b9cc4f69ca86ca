// Package logger provides structured logging for ScoreForge: JSON records
// carrying a service attribute, run/request correlation lifted from the
// context, and an optional asynchronous handler so long-running scoring
// pipelines never block on log I/O.
package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/Strob0t/ScoreForge/internal/config"
)

// New builds the service logger from the Logging config. Every record gets a
// "service" attribute plus run_id/request_id attributes when the logging call
// passes a correlated context (slog.InfoContext and friends). The returned
// shutdown func drains buffered records when async logging is enabled and is
// a no-op otherwise.
func New(cfg config.Logging) (*slog.Logger, func()) {
	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: ParseLevel(cfg.Level),
	})

	shutdown := func() {}
	if cfg.Async {
		async := NewAsyncHandler(handler, defaultQueueSize)
		handler = async
		shutdown = async.Close
	}

	return slog.New(&correlationHandler{inner: handler}).With("service", cfg.Service), shutdown
}

// ParseLevel converts a string log level to slog.Level, defaulting to Info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// correlationHandler stamps records with the run and request IDs carried by
// the logging call's context. Pipelines detach from their originating HTTP
// request, so correlation travels in the context rather than in per-call
// attributes.
type correlationHandler struct {
	inner slog.Handler
}

func (h *correlationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *correlationHandler) Handle(ctx context.Context, rec slog.Record) error {
	if id := RunID(ctx); id != "" {
		rec.AddAttrs(slog.String("run_id", id))
	}
	if id := RequestID(ctx); id != "" {
		rec.AddAttrs(slog.String("request_id", id))
	}
	return h.inner.Handle(ctx, rec)
}

func (h *correlationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &correlationHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *correlationHandler) WithGroup(name string) slog.Handler {
	return &correlationHandler{inner: h.inner.WithGroup(name)}
}
