// Package logging provides a slog-based structured logger correlated with
// the active trace/span IDs, mirroring the teacher's
// engine/telemetry/logging wrapper.
package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"vslope/internal/telemetry"
)

// Logger is the minimal interface used throughout this codebase for
// correlation-aware structured logging.
type Logger interface {
	DebugCtx(ctx context.Context, msg string, attrs ...any)
	InfoCtx(ctx context.Context, msg string, attrs ...any)
	WarnCtx(ctx context.Context, msg string, attrs ...any)
	ErrorCtx(ctx context.Context, msg string, attrs ...any)
}

type correlatedLogger struct{ base *slog.Logger }

// New returns a correlated Logger wrapping base. If base is nil,
// slog.Default() is used.
func New(base *slog.Logger) Logger {
	if base == nil {
		base = slog.Default()
	}
	return &correlatedLogger{base: base}
}

func (l *correlatedLogger) attrsWithTrace(ctx context.Context, attrs []any) []any {
	traceID, spanID := telemetry.ExtractIDs(ctx)
	if traceID != "" || spanID != "" {
		attrs = append(attrs, slog.String("trace_id", traceID), slog.String("span_id", spanID))
	}
	return attrs
}

func (l *correlatedLogger) DebugCtx(ctx context.Context, msg string, attrs ...any) {
	l.base.DebugContext(ctx, msg, l.attrsWithTrace(ctx, attrs)...)
}

func (l *correlatedLogger) InfoCtx(ctx context.Context, msg string, attrs ...any) {
	l.base.InfoContext(ctx, msg, l.attrsWithTrace(ctx, attrs)...)
}

func (l *correlatedLogger) WarnCtx(ctx context.Context, msg string, attrs ...any) {
	l.base.WarnContext(ctx, msg, l.attrsWithTrace(ctx, attrs)...)
}

func (l *correlatedLogger) ErrorCtx(ctx context.Context, msg string, attrs ...any) {
	l.base.ErrorContext(ctx, msg, l.attrsWithTrace(ctx, attrs)...)
}

// Options configures NewRootLogger.
type Options struct {
	LogDirectory    string
	ConsoleLevel    string
	FileLevel       string
}

// NewRootLogger builds the process-wide *slog.Logger with both a console
// handler (at ConsoleLevel) and a file handler (at FileLevel) attached,
// matching the split console/file verbosity in logging_config.py. The log
// file is named vs_<timestamp>.log under LogDirectory.
func NewRootLogger(opts Options) (*slog.Logger, *os.File, error) {
	if err := os.MkdirAll(opts.LogDirectory, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log directory %q: %w", opts.LogDirectory, err)
	}

	consoleLevel := parseLevel(opts.ConsoleLevel, slog.LevelInfo)
	fileLevel := parseLevel(opts.FileLevel, slog.LevelDebug)
	rootLevel := consoleLevel
	if fileLevel < rootLevel {
		rootLevel = fileLevel
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	logPath := filepath.Join(opts.LogDirectory, fmt.Sprintf("vs_%s.log", timestamp))
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file %q: %w", logPath, err)
	}

	consoleHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: consoleLevel})
	fileHandler := slog.NewTextHandler(f, &slog.HandlerOptions{Level: fileLevel})

	logger := slog.New(&fanoutHandler{
		rootLevel: rootLevel,
		handlers:  []slog.Handler{consoleHandler, fileHandler},
	})
	return logger, f, nil
}

func parseLevel(name string, fallback slog.Level) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return fallback
	}
}

// fanoutHandler dispatches every record to each of handlers that accepts it
// at its own configured level, implementing the "console and file at
// independent verbosity" split without pulling in a third-party multi-writer
// handler library (none appears in the example corpus).
type fanoutHandler struct {
	rootLevel slog.Level
	handlers  []slog.Handler
}

func (h *fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.rootLevel
}

func (h *fanoutHandler) Handle(ctx context.Context, record slog.Record) error {
	var firstErr error
	for _, sub := range h.handlers {
		if !sub.Enabled(ctx, record.Level) {
			continue
		}
		if err := sub.Handle(ctx, record.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (h *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make([]slog.Handler, len(h.handlers))
	for i, sub := range h.handlers {
		out[i] = sub.WithAttrs(attrs)
	}
	return &fanoutHandler{rootLevel: h.rootLevel, handlers: out}
}

func (h *fanoutHandler) WithGroup(name string) slog.Handler {
	out := make([]slog.Handler, len(h.handlers))
	for i, sub := range h.handlers {
		out[i] = sub.WithGroup(name)
	}
	return &fanoutHandler{rootLevel: h.rootLevel, handlers: out}
}
