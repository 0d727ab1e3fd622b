// Package notify emits trip-completion signals for the downstream batch
// aggregation consumer.
//
// The signal is fire-and-forget: the engine emits at most one
// notification per COMPLETE transition but does not guarantee delivery.
// Consumers recompute eligibility by scanning state, never by trusting
// exactly-once delivery of this signal.
package notify

import (
	"context"
	"log/slog"

	"github.com/boltride/tripflow/pkg/tripflow/store"
)

// Notifier receives a completed trip record.
// Implementations must tolerate duplicate delivery.
type Notifier interface {
	Notify(ctx context.Context, rec *store.TripRecord)
}

// Func adapts a function to the Notifier interface.
type Func func(ctx context.Context, rec *store.TripRecord)

// Notify implements Notifier.
func (f Func) Notify(ctx context.Context, rec *store.TripRecord) {
	f(ctx, rec)
}

// Noop discards all notifications.
type Noop struct{}

// Notify implements Notifier.
func (Noop) Notify(context.Context, *store.TripRecord) {}

// Log logs each completion at info level.
type Log struct {
	Logger *slog.Logger
}

// Notify implements Notifier.
func (l Log) Notify(_ context.Context, rec *store.TripRecord) {
	if l.Logger == nil {
		return
	}
	l.Logger.Info("trip completed",
		slog.String("trip_id", rec.TripID),
		slog.Int64("version", rec.Version),
		slog.Time("completed_at", rec.UpdatedAt),
	)
}

// Chan delivers completed records to a channel without blocking: if the
// consumer is behind, the signal is dropped (delivery is not guaranteed
// by contract).
type Chan struct {
	C chan *store.TripRecord
}

// NewChan creates a channel notifier with the given buffer size.
func NewChan(buffer int) *Chan {
	return &Chan{C: make(chan *store.TripRecord, buffer)}
}

// Notify implements Notifier.
func (c *Chan) Notify(_ context.Context, rec *store.TripRecord) {
	select {
	case c.C <- rec:
	default:
	}
}
