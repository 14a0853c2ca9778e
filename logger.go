package vecd

import (
	"context"
	"log/slog"
	"os"

	"github.com/hupe1980/vecd/index"
)

// Logger wraps slog.Logger with vecd-specific context.
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

// WithKey adds an index key field to the logger.
func (l *Logger) WithKey(key index.Key) *Logger {
	return &Logger{
		Logger: l.Logger.With("index", key.String()),
	}
}

// WithID adds an ID field to the logger (useful for tagging operations).
func (l *Logger) WithID(id uint64) *Logger {
	return &Logger{
		Logger: l.Logger.With("id", id),
	}
}

// LogCreateIndex logs an index initialization.
func (l *Logger) LogCreateIndex(ctx context.Context, key index.Key, created bool, err error) {
	if err != nil {
		l.ErrorContext(ctx, "create index failed",
			"index", key.String(),
			"error", err,
		)
	} else if created {
		l.InfoContext(ctx, "index created",
			"index", key.String(),
		)
	} else {
		l.DebugContext(ctx, "index already initialized",
			"index", key.String(),
		)
	}
}

// LogUpsert logs an upsert operation.
func (l *Logger) LogUpsert(ctx context.Context, key index.Key, id uint64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "upsert failed",
			"index", key.String(),
			"id", id,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "upsert completed",
			"index", key.String(),
			"id", id,
		)
	}
}

// LogBatchUpsert logs a batch upsert operation.
func (l *Logger) LogBatchUpsert(ctx context.Context, count, failed int) {
	if failed > 0 {
		l.WarnContext(ctx, "batch upsert completed with failures",
			"total", count,
			"failed", failed,
			"success", count-failed,
		)
	} else {
		l.InfoContext(ctx, "batch upsert completed",
			"count", count,
		)
	}
}

// LogQuery logs a document read.
func (l *Logger) LogQuery(ctx context.Context, id uint64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "query failed",
			"id", id,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "query completed",
			"id", id,
		)
	}
}

// LogSearch logs a search operation.
func (l *Logger) LogSearch(ctx context.Context, key index.Key, k, resultsFound int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "search failed",
			"index", key.String(),
			"k", k,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "search completed",
			"index", key.String(),
			"k", k,
			"results", resultsFound,
		)
	}
}

// LogDelete logs a delete operation.
func (l *Logger) LogDelete(ctx context.Context, id uint64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "delete failed",
			"id", id,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "delete completed",
			"id", id,
		)
	}
}

// LogSnapshot logs a snapshot save.
func (l *Logger) LogSnapshot(ctx context.Context, records int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "snapshot failed",
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "snapshot saved",
			"records", records,
		)
	}
}

// LogRestore logs a snapshot restore.
func (l *Logger) LogRestore(ctx context.Context, records int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "restore failed",
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "restore completed",
			"records", records,
		)
	}
}
