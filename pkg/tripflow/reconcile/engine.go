// Package reconcile matches the two halves of a trip into exactly one
// completed record, regardless of arrival order or worker concurrency.
//
// The engine's only concurrency mechanism is the store's conditional
// update: read the record, decide, and apply a mutation that lands only
// if the version is unchanged. A lost race re-reads and re-decides, up
// to a small bounded number of attempts. This guarantees at most one
// COMPLETE transition per trip no matter how many workers process its
// events concurrently, without any locking.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/boltride/tripflow/pkg/tripflow/event"
	"github.com/boltride/tripflow/pkg/tripflow/failure"
	"github.com/boltride/tripflow/pkg/tripflow/notify"
	"github.com/boltride/tripflow/pkg/tripflow/store"
	"github.com/boltride/tripflow/pkg/tripflow/validate"
)

// Config configures the engine.
type Config struct {
	// MaxAttempts bounds the read-modify-write cycle on version
	// conflicts. Default: 3.
	MaxAttempts int

	// Logger for per-application logging. Nil disables logging.
	Logger *slog.Logger
}

// DefaultConfig provides the standard engine settings.
var DefaultConfig = Config{
	MaxAttempts: 3,
}

// Engine applies validated events to trip state.
type Engine struct {
	store    store.Store
	notifier notify.Notifier
	cfg      Config
}

// NewEngine creates an engine over the given store and notifier.
func NewEngine(st store.Store, notifier notify.Notifier, cfg Config) *Engine {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig.MaxAttempts
	}
	if notifier == nil {
		notifier = notify.Noop{}
	}
	return &Engine{store: st, notifier: notifier, cfg: cfg}
}

// Apply applies one validated event to its trip's state.
//
// The returned error is nil for all no-op outcomes (Duplicate, Expired):
// late or repeated events are classified separately by callers, never
// treated as failures. A cross-event rule violation returns a
// *validate.Error; exhausted conflicts return a TRANSIENT-categorized
// error with Outcome Conflict.
func (e *Engine) Apply(ctx context.Context, evt *event.TripEvent) (Result, error) {
	if evt == nil || evt.Kind == event.KindUnknown {
		return Result{}, failure.System(errors.New("reconcile: event is nil or of unknown kind"))
	}

	logger := e.logger(evt)

	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		current, err := e.store.Get(ctx, evt.TripID)

		switch {
		case errors.Is(err, store.ErrNotFound):
			rec, err := e.store.Apply(ctx, evt.TripID, 0, seed(evt))
			if errors.Is(err, store.ErrVersionConflict) {
				// A concurrent worker created the record first; re-read.
				logger.Debug("create lost race, retrying", slog.Int("attempt", attempt))
				continue
			}
			if err != nil {
				return Result{}, fmt.Errorf("seed trip %s: %w", evt.TripID, err)
			}
			logger.Info("trip pending", slog.Int64("version", rec.Version))
			return Result{Outcome: OutcomePending, Record: rec}, nil

		case err != nil:
			return Result{}, fmt.Errorf("read trip %s: %w", evt.TripID, err)
		}

		// Terminal records never mutate; late arrivals are no-ops.
		if current.Status == store.StatusComplete {
			logger.Debug("duplicate event for completed trip")
			return Result{Outcome: OutcomeDuplicate, Record: current}, nil
		}
		if current.Status == store.StatusExpired {
			logger.Debug("event for expired trip")
			return Result{Outcome: OutcomeExpired, Record: current}, nil
		}

		if slotFilled(current, evt.Kind) {
			logger.Debug("duplicate event for pending trip")
			return Result{Outcome: OutcomeDuplicate, Record: current}, nil
		}

		rec, err := e.store.Apply(ctx, evt.TripID, current.Version, fill(evt))
		switch {
		case errors.Is(err, store.ErrVersionConflict), errors.Is(err, store.ErrNotFound):
			// Lost the race or the record expired underneath; re-read
			// rather than reusing the stale version.
			logger.Debug("conditional update lost race, retrying", slog.Int("attempt", attempt))
			continue
		case err != nil:
			var valErr *validate.Error
			if errors.As(err, &valErr) {
				return Result{Record: current}, err
			}
			return Result{}, fmt.Errorf("update trip %s: %w", evt.TripID, err)
		}

		if rec.Status == store.StatusComplete {
			// This application won the COMPLETE transition; emit the
			// signal exactly once for it. Delivery is fire-and-forget.
			e.notifier.Notify(ctx, rec)
			logger.Info("trip completed", slog.Int64("version", rec.Version))
			return Result{Outcome: OutcomeCompleted, Record: rec}, nil
		}

		logger.Info("trip pending", slog.Int64("version", rec.Version))
		return Result{Outcome: OutcomePending, Record: rec}, nil
	}

	return Result{Outcome: OutcomeConflict}, failure.Transient(
		fmt.Errorf("trip %s: %d conditional update attempts exhausted: %w",
			evt.TripID, e.cfg.MaxAttempts, store.ErrVersionConflict))
}

// seed returns a mutator that places the event into a fresh PENDING record.
func seed(evt *event.TripEvent) store.Mutator {
	return func(rec *store.TripRecord) error {
		setSlot(rec, evt)
		return nil
	}
}

// fill returns a mutator that places the event into its slot on an
// existing record, validates the cross-event rule, and flips the record
// to COMPLETE when both halves are present.
func fill(evt *event.TripEvent) store.Mutator {
	return func(rec *store.TripRecord) error {
		if slotFilled(rec, evt.Kind) {
			// The slot was filled between read and apply; report a
			// conflict so the caller re-reads and returns Duplicate.
			return store.ErrVersionConflict
		}
		setSlot(rec, evt)

		if rec.Start != nil && rec.End != nil {
			if rec.End.EventTime.Before(rec.Start.EventTime) {
				return validate.NewError(validate.RuleEventOrder, "event_time",
					fmt.Sprintf("end time %s precedes start time %s",
						rec.End.EventTime.Format("15:04:05"),
						rec.Start.EventTime.Format("15:04:05")))
			}
			rec.Status = store.StatusComplete
		}
		return nil
	}
}

func setSlot(rec *store.TripRecord, evt *event.TripEvent) {
	if evt.Kind == event.KindStart {
		rec.Start = evt.Clone()
	} else {
		rec.End = evt.Clone()
	}
}

func slotFilled(rec *store.TripRecord, kind event.Kind) bool {
	if kind == event.KindStart {
		return rec.Start != nil
	}
	return rec.End != nil
}

// logger returns a logger enriched with the event's identity, or a
// discard logger when none is configured.
func (e *Engine) logger(evt *event.TripEvent) *slog.Logger {
	if e.cfg.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return e.cfg.Logger.With(
		slog.String("trip_id", evt.TripID),
		slog.String("kind", evt.Kind.String()),
		slog.String("correlation_id", evt.CorrelationID),
	)
}
