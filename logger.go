package knnlm

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with knnlm-specific context.
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
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return NewLogger(slog.DiscardHandler)
}

// WithK adds a k (neighbor count) field to the logger.
func (l *Logger) WithK(k int) *Logger {
	return &Logger{Logger: l.Logger.With("k", k)}
}

// WithDimension adds a dimension field to the logger.
func (l *Logger) WithDimension(dim int) *Logger {
	return &Logger{Logger: l.Logger.With("dimension", dim)}
}

// WithCount adds a count field to the logger.
func (l *Logger) WithCount(count int) *Logger {
	return &Logger{Logger: l.Logger.With("count", count)}
}

// LogLoad logs a datastore load.
func (l *Logger) LogLoad(ctx context.Context, path string, size int, elapsed time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "datastore load failed",
			"path", path,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "datastore ready",
		"path", path,
		"size", size,
		"elapsed", elapsed,
	)
}

// LogSearch logs a batch search.
func (l *Logger) LogSearch(ctx context.Context, queries, k int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "search failed",
			"queries", queries,
			"k", k,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "search completed",
		"queries", queries,
		"k", k,
	)
}

// LogScore logs a scored batch.
func (l *Logger) LogScore(ctx context.Context, sequences, tokens int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "score failed",
			"sequences", sequences,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "score completed",
		"sequences", sequences,
		"tokens", tokens,
	)
}

// LogSweepPoint logs a persisted sweep temperature.
func (l *Logger) LogSweepPoint(ctx context.Context, temperature string, queries int, meanLogProb float64) {
	l.InfoContext(ctx, "sweep point persisted",
		"temperature", temperature,
		"queries", queries,
		"mean_log_prob", meanLogProb,
	)
}
