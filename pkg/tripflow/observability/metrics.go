package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records trip pipeline metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordEvent records one event's processing with its kind, outcome,
	// duration, and error status.
	RecordEvent(ctx context.Context, kind, outcome string, duration time.Duration, err error)

	// RecordFailure records a classified failure and its route.
	RecordFailure(ctx context.Context, category, route string)

	// RecordExpiry records trips flipped to EXPIRED by a sweep pass.
	RecordExpiry(ctx context.Context, count int64)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	eventsProcessed metric.Int64Counter
	eventLatency    metric.Float64Histogram
	eventErrors     metric.Int64Counter
	failuresRouted  metric.Int64Counter
	tripsExpired    metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics returns the default OTel metrics instance.
// Lazily initializes the metrics on first call.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

// newOtelMetrics creates a new OTel metrics instance.
func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("tripflow")

	eventsProcessed, err := meter.Int64Counter("tripflow.events.processed",
		metric.WithDescription("Number of events processed"),
	)
	if err != nil {
		return nil, err
	}

	eventLatency, err := meter.Float64Histogram("tripflow.events.latency_ms",
		metric.WithDescription("Event processing latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	eventErrors, err := meter.Int64Counter("tripflow.events.errors",
		metric.WithDescription("Number of event processing errors"),
	)
	if err != nil {
		return nil, err
	}

	failuresRouted, err := meter.Int64Counter("tripflow.failures.routed",
		metric.WithDescription("Number of classified failures routed"),
	)
	if err != nil {
		return nil, err
	}

	tripsExpired, err := meter.Int64Counter("tripflow.trips.expired",
		metric.WithDescription("Number of trips flipped to EXPIRED by sweeps"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		eventsProcessed: eventsProcessed,
		eventLatency:    eventLatency,
		eventErrors:     eventErrors,
		failuresRouted:  failuresRouted,
		tripsExpired:    tripsExpired,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordEvent records one event's processing.
func (m *otelMetrics) RecordEvent(ctx context.Context, kind, outcome string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("kind", kind),
		attribute.String("outcome", outcome),
	}

	m.eventsProcessed.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.eventLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))

	if err != nil {
		m.eventErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordFailure records a routed failure.
func (m *otelMetrics) RecordFailure(ctx context.Context, category, route string) {
	m.failuresRouted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("category", category),
		attribute.String("route", route),
	))
}

// RecordExpiry records a sweep pass result.
func (m *otelMetrics) RecordExpiry(ctx context.Context, count int64) {
	if count > 0 {
		m.tripsExpired.Add(ctx, count)
	}
}
