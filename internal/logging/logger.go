// Package logging provides the process-wide structured logger.
package logging

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

type ctxKey string

const (
	runIDKey   ctxKey = "run_id"
	traceIDKey ctxKey = "trace_id"
	callIDKey  ctxKey = "call_id"
)

// Config controls how the root logger is constructed.
type Config struct {
	// Level is one of "debug", "info", "warn", "error". Defaults to "info".
	Level string

	// Console writes a human-readable stream to stderr in addition to the
	// structured JSON stream, intended for interactive REPL sessions.
	Console bool

	// Output receives the structured JSON stream. Defaults to os.Stderr.
	Output io.Writer

	// DisableRedaction turns off the default secret-scrubbing writer. Tests
	// that assert on exact log output set this; production callers don't.
	DisableRedaction bool
}

// New builds the process-wide zerolog.Logger per Config.
func New(cfg Config) zerolog.Logger {
	level := parseLevel(cfg.Level)
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	var writer io.Writer = out
	if cfg.Console {
		writer = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}
	if !cfg.DisableRedaction {
		writer = NewRedactingOutput(writer)
	}

	return zerolog.New(writer).Level(level).With().Timestamp().Logger()
}

func parseLevel(raw string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "":
		return zerolog.InfoLevel
	default:
		return zerolog.InfoLevel
	}
}

// Component returns a child logger tagged with a component name, the
// convention every subsystem in this module follows instead of ad-hoc
// prefixes in message strings.
func Component(base zerolog.Logger, name string) zerolog.Logger {
	return base.With().Str("component", name).Logger()
}

// WithRunID attaches a run identifier to the context for later retrieval by
// WithContext.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// WithTraceID attaches a trace identifier to the context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// WithCallID attaches a tool-call identifier to the context.
func WithCallID(ctx context.Context, callID string) context.Context {
	return context.WithValue(ctx, callIDKey, callID)
}

// FromContext returns a logger enriched with whichever correlation
// identifiers were stashed on ctx via WithRunID/WithTraceID/WithCallID.
func FromContext(ctx context.Context, base zerolog.Logger) zerolog.Logger {
	l := base.With()
	if v, ok := ctx.Value(runIDKey).(string); ok && v != "" {
		l = l.Str("run_id", v)
	}
	if v, ok := ctx.Value(traceIDKey).(string); ok && v != "" {
		l = l.Str("trace_id", v)
	}
	if v, ok := ctx.Value(callIDKey).(string); ok && v != "" {
		l = l.Str("call_id", v)
	}
	return l.Logger()
}
