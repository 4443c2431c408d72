// Package logger configures the process-wide slog logger and carries
// request and document ids through contexts.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

type ContextKey string

const (
	RequestIDKey  ContextKey = "request_id"
	DocumentIDKey ContextKey = "document_id"
)

type Config struct {
	Level  string // debug, info, warn, error
	Format string // json, text
}

// New builds a logger writing to w.
func New(cfg Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}
	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// Init installs a stdout logger as the slog default and returns it.
func Init(cfg Config) *slog.Logger {
	l := New(cfg, os.Stdout)
	slog.SetDefault(l)
	return l
}

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

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

func WithDocumentID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, DocumentIDKey, id)
}

// From returns base annotated with the ids found in ctx.
func From(base *slog.Logger, ctx context.Context) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	if id, ok := ctx.Value(RequestIDKey).(string); ok && id != "" {
		base = base.With("request_id", id)
	}
	if id, ok := ctx.Value(DocumentIDKey).(string); ok && id != "" {
		base = base.With("document_id", id)
	}
	return base
}
