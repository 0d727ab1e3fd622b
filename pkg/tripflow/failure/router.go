package failure

import (
	"context"
	"fmt"
	"log/slog"
)

// ArchiveSink accepts write-once failure records for permanent storage.
// The production implementation is the external object store; MemoryArchive
// serves tests and single-instance deployments.
type ArchiveSink interface {
	Archive(ctx context.Context, rec *Record) error
}

// RetryQueue accepts TRANSIENT failures for scheduled redelivery with
// at-least-once semantics.
type RetryQueue interface {
	Enqueue(ctx context.Context, rec *Record) error
}

// AlertSink receives SYSTEM-category operational alerts.
type AlertSink interface {
	Alert(ctx context.Context, rec *Record) error
}

// Router dispatches classified failures to their sinks.
type Router struct {
	archive ArchiveSink
	retries RetryQueue
	alerts  AlertSink
	logger  *slog.Logger
}

// RouterOption configures the router.
type RouterOption func(*Router)

// WithAlertSink sets the operational alert sink for SYSTEM failures.
func WithAlertSink(sink AlertSink) RouterOption {
	return func(r *Router) {
		r.alerts = sink
	}
}

// WithLogger sets the router's logger.
func WithLogger(logger *slog.Logger) RouterOption {
	return func(r *Router) {
		r.logger = logger
	}
}

// NewRouter creates a failure router over the given sinks.
func NewRouter(archive ArchiveSink, retries RetryQueue, opts ...RouterOption) *Router {
	r := &Router{archive: archive, retries: retries}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Dispatch delivers one record to its route. SYSTEM-category records are
// archived and additionally raise an operational alert.
func (r *Router) Dispatch(ctx context.Context, rec *Record, route Route) error {
	if r.logger != nil {
		r.logger.Warn("failure routed",
			slog.String("correlation_id", rec.CorrelationID),
			slog.String("category", rec.Category.String()),
			slog.String("route", route.String()),
			slog.String("reason", rec.Reason),
		)
	}

	switch route {
	case RouteRetry:
		if err := r.retries.Enqueue(ctx, rec); err != nil {
			return fmt.Errorf("enqueue retry: %w", err)
		}
		return nil

	case RouteArchive, RouteQuarantine:
		if err := r.archive.Archive(ctx, rec); err != nil {
			return fmt.Errorf("archive failure record: %w", err)
		}
		if rec.Category == CategorySystem && r.alerts != nil {
			if err := r.alerts.Alert(ctx, rec); err != nil && r.logger != nil {
				// Alert delivery is best effort; the record is archived.
				r.logger.Warn("alert delivery failed",
					slog.String("correlation_id", rec.CorrelationID),
					slog.String("error", err.Error()),
				)
			}
		}
		return nil

	default:
		return fmt.Errorf("unknown route %d", route)
	}
}
