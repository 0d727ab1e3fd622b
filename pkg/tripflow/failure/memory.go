package failure

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/boltride/tripflow/pkg/tripflow/retry"
)

// MemoryArchive is an in-memory ArchiveSink.
// Suitable for testing and single-instance deployments.
type MemoryArchive struct {
	mu      sync.RWMutex
	records []*Record
}

// NewMemoryArchive creates an empty in-memory archive.
func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{}
}

// Archive implements ArchiveSink.
func (a *MemoryArchive) Archive(_ context.Context, rec *Record) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, rec)
	return nil
}

// List returns all archived records in arrival order.
func (a *MemoryArchive) List() []*Record {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]*Record(nil), a.records...)
}

// Len returns the number of archived records.
func (a *MemoryArchive) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.records)
}

// CountByCategory returns archived record counts grouped by category.
func (a *MemoryArchive) CountByCategory() map[Category]int {
	a.mu.RLock()
	defer a.mu.RUnlock()

	counts := make(map[Category]int)
	for _, rec := range a.records {
		counts[rec.Category]++
	}
	return counts
}

// retryEntry tracks one record awaiting redelivery.
type retryEntry struct {
	rec       *Record
	attempts  int
	nextTryAt time.Time
}

// MemoryRetryQueueConfig configures the in-memory retry queue.
type MemoryRetryQueueConfig struct {
	// MaxSize limits queued records. Default: 10000.
	MaxSize int

	// MaxAttempts before a record escalates to SYSTEM. Default: 3.
	MaxAttempts int

	// Backoff schedules redelivery delays.
	Backoff retry.Config

	// OnEscalate receives the SYSTEM-escalated record when attempts are
	// exhausted. Typically wired to Router.Dispatch.
	OnEscalate func(*Record)

	// Now supplies the current time. Default: time.Now.
	Now func() time.Time
}

// DefaultMemoryRetryQueueConfig provides the standard queue settings.
var DefaultMemoryRetryQueueConfig = MemoryRetryQueueConfig{
	MaxSize:     10000,
	MaxAttempts: 3,
	Backoff:     retry.Default,
}

// MemoryRetryQueue is an in-memory RetryQueue with bounded attempts and
// exponential backoff scheduling. Exhausted records escalate to SYSTEM.
type MemoryRetryQueue struct {
	mu      sync.Mutex
	entries map[string]*retryEntry // keyed by correlation ID
	cfg     MemoryRetryQueueConfig

	// Metrics
	enqueued    int64
	redelivered int64
	escalated   int64
}

// NewMemoryRetryQueue creates a new in-memory retry queue.
func NewMemoryRetryQueue(cfg MemoryRetryQueueConfig) *MemoryRetryQueue {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultMemoryRetryQueueConfig.MaxSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMemoryRetryQueueConfig.MaxAttempts
	}
	if cfg.Backoff.MaxAttempts <= 0 {
		cfg.Backoff = DefaultMemoryRetryQueueConfig.Backoff
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &MemoryRetryQueue{
		entries: make(map[string]*retryEntry),
		cfg:     cfg,
	}
}

// Enqueue implements RetryQueue. The first delivery is scheduled one
// backoff step from now.
func (q *MemoryRetryQueue) Enqueue(_ context.Context, rec *Record) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) >= q.cfg.MaxSize {
		return fmt.Errorf("retry queue is full (%d entries)", q.cfg.MaxSize)
	}

	q.entries[rec.CorrelationID] = &retryEntry{
		rec:       rec,
		nextTryAt: q.cfg.Now().Add(retry.Backoff(q.cfg.Backoff, 0)),
	}
	q.enqueued++
	return nil
}

// Due returns up to limit records whose redelivery time has arrived,
// removing them from the queue. Redelivery is at-least-once: a failed
// redelivery must be reported back via RecordFailure.
func (q *MemoryRetryQueue) Due(_ context.Context, limit int) []*Record {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.cfg.Now()
	out := make([]*Record, 0, limit)
	for id, entry := range q.entries {
		if len(out) >= limit {
			break
		}
		if !entry.nextTryAt.After(now) {
			out = append(out, entry.rec)
			delete(q.entries, id)
		}
	}
	q.redelivered += int64(len(out))
	return out
}

// RecordFailure reports a failed redelivery. The record is rescheduled
// with exponential backoff until attempts are exhausted, at which point
// it is escalated to SYSTEM and handed to OnEscalate.
func (q *MemoryRetryQueue) RecordFailure(_ context.Context, rec *Record) {
	q.mu.Lock()

	entry, ok := q.entries[rec.CorrelationID]
	if !ok {
		entry = &retryEntry{rec: rec}
		q.entries[rec.CorrelationID] = entry
	}
	entry.attempts++

	if entry.attempts >= q.cfg.MaxAttempts {
		delete(q.entries, rec.CorrelationID)
		q.escalated++
		escalated := *rec
		escalated.Category = CategorySystem
		escalated.Reason = fmt.Sprintf("retries exhausted after %d attempts: %s", entry.attempts, rec.Reason)
		onEscalate := q.cfg.OnEscalate
		q.mu.Unlock()

		if onEscalate != nil {
			onEscalate(&escalated)
		}
		return
	}

	entry.nextTryAt = q.cfg.Now().Add(retry.Backoff(q.cfg.Backoff, entry.attempts))
	q.mu.Unlock()
}

// Len returns the number of queued records.
func (q *MemoryRetryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Stats returns queue statistics.
func (q *MemoryRetryQueue) Stats() RetryQueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return RetryQueueStats{
		QueueSize:   len(q.entries),
		Enqueued:    q.enqueued,
		Redelivered: q.redelivered,
		Escalated:   q.escalated,
	}
}

// RetryQueueStats provides statistics about the retry queue.
type RetryQueueStats struct {
	QueueSize   int   // current queue size
	Enqueued    int64 // total records enqueued
	Redelivered int64 // total redeliveries handed out
	Escalated   int64 // total records escalated to SYSTEM
}

// AlertFunc adapts a function to the AlertSink interface.
type AlertFunc func(ctx context.Context, rec *Record) error

// Alert implements AlertSink.
func (f AlertFunc) Alert(ctx context.Context, rec *Record) error {
	return f(ctx, rec)
}

// Compile-time interface checks.
var (
	_ ArchiveSink = (*MemoryArchive)(nil)
	_ RetryQueue  = (*MemoryRetryQueue)(nil)
)
