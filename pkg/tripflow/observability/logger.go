// Package observability provides production-grade observability features
// for the trip pipeline: structured logging, metrics, and distributed
// tracing.
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
	"time"
)

// EnrichLogger adds trip pipeline context to a logger.
// Returns a new logger with correlation_id, trip_id, and kind fields.
//
// Example:
//
//	enriched := EnrichLogger(logger, "corr-123", "trip-9", "trip_start")
//	enriched.Info("processing") // includes correlation_id, trip_id, kind
func EnrichLogger(logger *slog.Logger, correlationID, tripID, kind string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("correlation_id", correlationID),
		slog.String("trip_id", tripID),
		slog.String("kind", kind),
	)
}

// LogEventReceived logs arrival of a raw event at the pipeline.
func LogEventReceived(logger *slog.Logger, correlationID string, payloadBytes int) {
	if logger == nil {
		return
	}
	logger.Debug("event received",
		slog.String("correlation_id", correlationID),
		slog.Int("payload_bytes", payloadBytes),
	)
}

// LogEventOutcome logs the terminal outcome of one event's processing.
func LogEventOutcome(logger *slog.Logger, correlationID, outcome string, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Info("event processed",
		slog.String("correlation_id", correlationID),
		slog.String("outcome", outcome),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogEventFailure logs a failed event with its classification.
func LogEventFailure(logger *slog.Logger, correlationID, category string, err error) {
	if logger == nil {
		return
	}
	logger.Error("event failed",
		slog.String("correlation_id", correlationID),
		slog.String("category", category),
		slog.String("error", err.Error()),
	)
}

// LogSweep logs a TTL sweep pass (non-fatal when zero rows flip).
func LogSweep(logger *slog.Logger, expired int64, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Info("ttl sweep completed",
		slog.Int64("expired", expired),
		slog.Float64("duration_ms", durationMs),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
//
// Example:
//
//	done := TimedOperation()
//	// ... do work ...
//	durationMs := done()
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Milliseconds())
	}
}
