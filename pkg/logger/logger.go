// Package logger configures the process-wide slog logger and carries the
// run id through contexts.
package logger

import (
	"context"
	"io"
	"log/slog"
)

type runIDKey struct{}

// Setup installs the default logger writing to w. Callers pass stderr so
// ranked output and metric tables on stdout stay machine-readable. Debug
// level adds source locations.
func Setup(w io.Writer, level, format string) {
	lvl := parseLevel(level)
	opts := &slog.HandlerOptions{Level: lvl, AddSource: lvl <= slog.LevelDebug}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// WithRunID tags every log line emitted for one batch or evaluation run.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

func RunID(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

// FromContext returns the default logger, tagged with the run id when ctx
// carries one.
func FromContext(ctx context.Context) *slog.Logger {
	if id := RunID(ctx); id != "" {
		return slog.Default().With("run_id", id)
	}
	return slog.Default()
}

func parseLevel(level string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
