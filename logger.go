package vecdir

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with vecdir-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithCollection adds a collection name field to the logger.
func (l *Logger) WithCollection(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("collection", name),
	}
}

// WithK adds a k (neighbor count) field to the logger.
func (l *Logger) WithK(k int) *Logger {
	return &Logger{
		Logger: l.Logger.With("k", k),
	}
}

// LogOpen logs opening a database.
func (l *Logger) LogOpen(ctx context.Context, collections int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "open failed",
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "database opened",
			"collections", collections,
		)
	}
}

// LogCreate logs a collection creation.
func (l *Logger) LogCreate(ctx context.Context, name string, count, bytes int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "create failed",
			"collection", name,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "collection created",
			"collection", name,
			"count", count,
			"bytes", bytes,
		)
	}
}

// LogLoad logs a collection load.
func (l *Logger) LogLoad(ctx context.Context, name string, count, bytes int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "load failed",
			"collection", name,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "collection loaded",
			"collection", name,
			"count", count,
			"bytes", bytes,
		)
	}
}

// LogSave logs a collection save.
func (l *Logger) LogSave(ctx context.Context, name string, count, bytes int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "save failed",
			"collection", name,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "collection saved",
			"collection", name,
			"count", count,
			"bytes", bytes,
		)
	}
}

// LogDelete logs a collection deletion.
func (l *Logger) LogDelete(ctx context.Context, name string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "delete failed",
			"collection", name,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "collection deleted",
			"collection", name,
		)
	}
}
