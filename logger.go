package rowstore

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with rowstore-specific context.
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
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return NewLogger(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.Level(1000),
	}))
}

// WithLabel adds a label field to the logger.
func (l *Logger) WithLabel(label uint64) *Logger {
	return &Logger{
		Logger: l.Logger.With("label", label),
	}
}

// WithDir adds the store directory to the logger.
func (l *Logger) WithDir(dir string) *Logger {
	return &Logger{
		Logger: l.Logger.With("dir", dir),
	}
}

// LogUpsert logs an upsert operation.
func (l *Logger) LogUpsert(ctx context.Context, label, lsn uint64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "upsert failed",
			"label", label,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "upsert completed",
			"label", label,
			"lsn", lsn,
		)
	}
}

// LogDelete logs a delete operation.
func (l *Logger) LogDelete(ctx context.Context, label, lsn uint64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "delete failed",
			"label", label,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "delete completed",
			"label", label,
			"lsn", lsn,
		)
	}
}

// LogExpire logs a TTL sweep.
func (l *Logger) LogExpire(ctx context.Context, expired int, err error) {
	switch {
	case err != nil:
		l.ErrorContext(ctx, "ttl sweep failed",
			"expired", expired,
			"error", err,
		)
	case expired > 0:
		l.InfoContext(ctx, "ttl sweep completed",
			"expired", expired,
		)
	}
}

// LogSnapshot logs a snapshot operation.
func (l *Logger) LogSnapshot(ctx context.Context, name string, rows, size int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "snapshot failed",
			"snapshot", name,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "snapshot saved",
			"snapshot", name,
			"rows", rows,
			"bytes", size,
		)
	}
}

// LogRecovery logs the snapshot load and delta log replay done by Open.
func (l *Logger) LogRecovery(ctx context.Context, snapshotRows, entriesReplayed int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "recovery failed",
			"snapshot_rows", snapshotRows,
			"entries_replayed", entriesReplayed,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "recovery completed",
			"snapshot_rows", snapshotRows,
			"entries_replayed", entriesReplayed,
		)
	}
}
