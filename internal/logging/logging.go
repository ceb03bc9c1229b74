// Package logging builds the process logger and carries it through contexts.
package logging

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

type ctxKey struct{}

// New constructs the process logger. Level is one of debug, info, warn,
// error (case-insensitive); format "json" selects the JSON handler, anything
// else the text handler.
func New(level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// ParseLevel maps a config string to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// IntoContext attaches logger to ctx.
func IntoContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext returns the logger attached to ctx, or slog.Default.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// WithItemID returns a logger correlated to a work item.
func WithItemID(logger *slog.Logger, id string) *slog.Logger {
	return logger.With("item_id", id)
}

// WithScheduleID returns a logger correlated to a schedule definition.
func WithScheduleID(logger *slog.Logger, id string) *slog.Logger {
	return logger.With("schedule_id", id)
}

// WithRunID returns a logger correlated to a run.
func WithRunID(logger *slog.Logger, id string) *slog.Logger {
	return logger.With("run_id", id)
}
