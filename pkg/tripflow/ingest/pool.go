package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/boltride/tripflow/pkg/tripflow/event"
)

// ErrPoolClosed is returned when submitting to a stopped pool.
var ErrPoolClosed = errors.New("ingest: pool is closed")

// ErrQueueFull is returned when the intake buffer cannot accept more
// events. Producers should treat this as backpressure.
var ErrQueueFull = errors.New("ingest: intake queue is full")

// PoolConfig configures the worker pool.
type PoolConfig struct {
	// Workers is the number of concurrent processing goroutines.
	// Default: 4.
	Workers int

	// QueueSize is the intake buffer size. Default: 256.
	QueueSize int

	// Logger for pool lifecycle logging. Nil disables logging.
	Logger *slog.Logger
}

// DefaultPoolConfig provides the standard pool settings.
var DefaultPoolConfig = PoolConfig{
	Workers:   4,
	QueueSize: 256,
}

// Pool fans raw events out to concurrent pipeline processors. Events for
// the same trip may be processed concurrently by different workers; the
// store's conditional updates keep that safe.
type Pool struct {
	processor *Processor
	cfg       PoolConfig

	intake chan event.RawEvent
	wg     sync.WaitGroup

	mu      sync.Mutex
	started bool
	closed  bool
}

// NewPool creates a worker pool over the given processor.
func NewPool(processor *Processor, cfg PoolConfig) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultPoolConfig.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultPoolConfig.QueueSize
	}
	return &Pool{
		processor: processor,
		cfg:       cfg,
		intake:    make(chan event.RawEvent, cfg.QueueSize),
	}
}

// Start launches the worker goroutines. Workers run until Stop is called
// or ctx is cancelled; an event already dequeued is always finished.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true

	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	if p.cfg.Logger != nil {
		p.cfg.Logger.Info("ingest pool started",
			slog.Int("workers", p.cfg.Workers),
			slog.Int("queue_size", p.cfg.QueueSize),
		)
	}
}

// Submit enqueues one raw event without blocking.
func (p *Pool) Submit(raw event.RawEvent) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return ErrPoolClosed
	}

	select {
	case p.intake <- raw:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop closes the intake and waits for workers to drain it.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	started := p.started
	p.mu.Unlock()

	close(p.intake)
	if started {
		p.wg.Wait()
	}
	if p.cfg.Logger != nil {
		p.cfg.Logger.Info("ingest pool stopped")
	}
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-p.intake:
			if !ok {
				return
			}
			if _, err := p.processor.Process(ctx, raw); err != nil && p.cfg.Logger != nil {
				// Process handles classification; an error here means
				// even the failure route was unavailable.
				p.cfg.Logger.Error("failure dispatch failed",
					slog.Int("worker", id),
					slog.String("correlation_id", raw.CorrelationID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// Stats returns the underlying processor's counters.
func (p *Pool) Stats() ProcessorStats {
	return p.processor.Stats()
}
