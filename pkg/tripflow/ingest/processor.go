// Package ingest drives raw events through the full pipeline: validate,
// reconcile, and on failure classify and route. It owns the pipeline's
// observability (metrics, tracing, stats); the stages themselves stay
// pure.
package ingest

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/boltride/tripflow/pkg/tripflow/event"
	"github.com/boltride/tripflow/pkg/tripflow/failure"
	"github.com/boltride/tripflow/pkg/tripflow/observability"
	"github.com/boltride/tripflow/pkg/tripflow/reconcile"
	"github.com/boltride/tripflow/pkg/tripflow/validate"
)

// Validator validates a raw event into a typed trip event.
type Validator interface {
	Validate(raw event.RawEvent) (*event.TripEvent, error)
}

// Reconciler applies a validated event to trip state.
type Reconciler interface {
	Apply(ctx context.Context, evt *event.TripEvent) (reconcile.Result, error)
}

// Dispatcher routes a classified failure record.
type Dispatcher interface {
	Dispatch(ctx context.Context, rec *failure.Record, route failure.Route) error
}

// ProcessorConfig configures the pipeline processor.
type ProcessorConfig struct {
	// Logger for pipeline logging. Nil disables logging.
	Logger *slog.Logger

	// Metrics records pipeline metrics. Nil uses NoopMetrics.
	Metrics observability.MetricsRecorder

	// Spans manages tracing spans. Nil uses NoopSpanManager.
	Spans observability.SpanManager
}

// Processor runs one raw event through the full pipeline.
type Processor struct {
	validator  Validator
	engine     Reconciler
	classifier *failure.Classifier
	router     Dispatcher
	cfg        ProcessorConfig

	stats processorStats
}

type processorStats struct {
	received   atomic.Int64
	completed  atomic.Int64
	pending    atomic.Int64
	duplicates atomic.Int64
	expired    atomic.Int64
	failed     atomic.Int64
}

// NewProcessor creates a pipeline processor.
func NewProcessor(v Validator, eng Reconciler, cls *failure.Classifier, router Dispatcher, cfg ProcessorConfig) *Processor {
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NoopMetrics{}
	}
	if cfg.Spans == nil {
		cfg.Spans = observability.NoopSpanManager{}
	}
	return &Processor{
		validator:  v,
		engine:     eng,
		classifier: cls,
		router:     router,
		cfg:        cfg,
	}
}

// Process runs one raw event through validation and reconciliation.
// Failures are classified and routed internally; the returned error is
// reserved for dispatch faults (a failure that could not even be routed).
// The Result is zero-valued when the event never reached reconciliation.
func (p *Processor) Process(ctx context.Context, raw event.RawEvent) (reconcile.Result, error) {
	p.stats.received.Add(1)
	observability.LogEventReceived(p.cfg.Logger, raw.CorrelationID, len(raw.Payload))

	ctx, span := p.cfg.Spans.StartEventSpan(ctx, raw.CorrelationID)
	done := observability.TimedOperation()
	start := time.Now()

	evt, err := p.validateStage(ctx, raw)
	if err != nil {
		p.cfg.Spans.EndSpanWithError(span, err)
		p.cfg.Metrics.RecordEvent(ctx, "unknown", "failed", time.Since(start), err)
		return reconcile.Result{}, p.fail(ctx, raw, err)
	}

	result, err := p.reconcileStage(ctx, evt)
	if err != nil {
		p.cfg.Spans.EndSpanWithError(span, err)
		p.cfg.Metrics.RecordEvent(ctx, evt.Kind.String(), "failed", time.Since(start), err)
		return result, p.fail(ctx, raw, err)
	}

	p.count(result.Outcome)
	p.cfg.Spans.EndSpanWithError(span, nil)
	p.cfg.Metrics.RecordEvent(ctx, evt.Kind.String(), result.Outcome.String(), time.Since(start), nil)
	observability.LogEventOutcome(p.cfg.Logger, raw.CorrelationID, result.Outcome.String(), done())
	return result, nil
}

func (p *Processor) validateStage(ctx context.Context, raw event.RawEvent) (*event.TripEvent, error) {
	_, span := p.cfg.Spans.StartStageSpan(ctx, "validate")
	evt, err := p.validator.Validate(raw)
	p.cfg.Spans.EndSpanWithError(span, err)
	return evt, err
}

func (p *Processor) reconcileStage(ctx context.Context, evt *event.TripEvent) (reconcile.Result, error) {
	ctx, span := p.cfg.Spans.StartStageSpan(ctx, "reconcile")
	result, err := p.engine.Apply(ctx, evt)
	p.cfg.Spans.EndSpanWithError(span, err)
	return result, err
}

// fail classifies and routes one failed event.
func (p *Processor) fail(ctx context.Context, raw event.RawEvent, err error) error {
	p.stats.failed.Add(1)

	rec, route := p.classifier.Classify(ctx, raw, err)
	observability.LogEventFailure(p.cfg.Logger, raw.CorrelationID, rec.Category.String(), err)
	p.cfg.Metrics.RecordFailure(ctx, rec.Category.String(), route.String())

	return p.router.Dispatch(ctx, rec, route)
}

func (p *Processor) count(outcome reconcile.Outcome) {
	switch outcome {
	case reconcile.OutcomeCompleted:
		p.stats.completed.Add(1)
	case reconcile.OutcomePending:
		p.stats.pending.Add(1)
	case reconcile.OutcomeDuplicate:
		p.stats.duplicates.Add(1)
	case reconcile.OutcomeExpired:
		p.stats.expired.Add(1)
	}
}

// Stats returns a snapshot of pipeline counters.
func (p *Processor) Stats() ProcessorStats {
	return ProcessorStats{
		Received:   p.stats.received.Load(),
		Completed:  p.stats.completed.Load(),
		Pending:    p.stats.pending.Load(),
		Duplicates: p.stats.duplicates.Load(),
		Expired:    p.stats.expired.Load(),
		Failed:     p.stats.failed.Load(),
	}
}

// ProcessorStats provides statistics about pipeline throughput.
type ProcessorStats struct {
	Received   int64 // raw events received
	Completed  int64 // trips completed by this processor
	Pending    int64 // events leaving a trip pending
	Duplicates int64 // no-op duplicate events
	Expired    int64 // events arriving after TTL expiry
	Failed     int64 // events classified and routed as failures
}

// Compile-time interface checks.
var (
	_ Validator  = (*validate.Validator)(nil)
	_ Reconciler = (*reconcile.Engine)(nil)
	_ Dispatcher = (*failure.Router)(nil)
)
