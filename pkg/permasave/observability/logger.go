// Package observability provides structured logging, metrics, and tracing
// for checkpoint operations.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"os"
	"time"
)

// NewLogger returns a text logger on stderr. Verbose lowers the level to
// Debug so per-object events (fetches, skips) become visible.
func NewLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// EnrichLogger adds operation context to a logger.
// Returns a new logger with op_id, owner, and application fields.
func EnrichLogger(logger *slog.Logger, opID, owner, application string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("op_id", opID),
		slog.String("owner", owner),
		slog.String("application", application),
	)
}

// LogSave logs a successful checkpoint save.
func LogSave(logger *slog.Logger, contentID string, createdAt int64, sizeBytes int) {
	if logger == nil {
		return
	}
	logger.Info("checkpoint saved",
		slog.String("content_id", contentID),
		slog.Int64("created_at", createdAt),
		slog.Int("size_bytes", sizeBytes),
	)
}

// LogSaveError logs a rejected or failed save.
func LogSaveError(logger *slog.Logger, err error) {
	if logger == nil {
		return
	}
	logger.Error("checkpoint save failed",
		slog.String("error", err.Error()),
	)
}

// LogLoad logs a successful checkpoint load.
func LogLoad(logger *slog.Logger, contentID string, createdAt int64) {
	if logger == nil {
		return
	}
	logger.Debug("checkpoint loaded",
		slog.String("content_id", contentID),
		slog.Int64("created_at", createdAt),
	)
}

// LogLoadMiss logs a load that matched no checkpoint (a normal outcome).
func LogLoadMiss(logger *slog.Logger) {
	if logger == nil {
		return
	}
	logger.Debug("no checkpoint matched selector")
}

// LogList logs a completed listing.
func LogList(logger *slog.Logger, count, skipped int) {
	if logger == nil {
		return
	}
	logger.Debug("checkpoints listed",
		slog.Int("count", count),
		slog.Int("skipped", skipped),
	)
}

// LogSkippedFetch logs an object dropped from a listing because its body
// could not be fetched or decoded.
func LogSkippedFetch(logger *slog.Logger, contentID string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("skipping unreadable checkpoint",
		slog.String("content_id", contentID),
		slog.String("error", err.Error()),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time.
//
// Example:
//
//	done := TimedOperation()
//	// ... do work ...
//	elapsed := done()
func TimedOperation() func() time.Duration {
	start := time.Now()
	return func() time.Duration {
		return time.Since(start)
	}
}
