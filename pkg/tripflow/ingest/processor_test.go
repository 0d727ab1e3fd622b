package ingest_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boltride/tripflow/pkg/tripflow/event"
	"github.com/boltride/tripflow/pkg/tripflow/failure"
	"github.com/boltride/tripflow/pkg/tripflow/ingest"
	"github.com/boltride/tripflow/pkg/tripflow/notify"
	"github.com/boltride/tripflow/pkg/tripflow/reconcile"
	"github.com/boltride/tripflow/pkg/tripflow/store"
	"github.com/boltride/tripflow/pkg/tripflow/validate"
)

var fixedNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

type pipeline struct {
	processor *ingest.Processor
	store     *store.MemoryStore
	archive   *failure.MemoryArchive
	retries   *failure.MemoryRetryQueue
	notifier  *notify.Chan
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()

	st := store.NewMemoryStore(store.MemoryConfig{Now: func() time.Time { return fixedNow }})
	notifier := notify.NewChan(16)
	engine := reconcile.NewEngine(st, notifier, reconcile.DefaultConfig)
	validator := validate.New(validate.Config{Now: func() time.Time { return fixedNow }})

	classifier := failure.NewClassifier(failure.ClassifierConfig{
		Now: func() time.Time { return fixedNow },
	})
	t.Cleanup(classifier.Close)

	archive := failure.NewMemoryArchive()
	retries := failure.NewMemoryRetryQueue(failure.DefaultMemoryRetryQueueConfig)
	router := failure.NewRouter(archive, retries)

	return &pipeline{
		processor: ingest.NewProcessor(validator, engine, classifier, router, ingest.ProcessorConfig{}),
		store:     st,
		archive:   archive,
		retries:   retries,
		notifier:  notifier,
	}
}

func startPayload(tripID string) []byte {
	return []byte(fmt.Sprintf(
		`{"event_type":"trip_start","trip_id":"%s","event_time":"2025-06-15T11:30:00Z","pickup_location":{"latitude":40.7,"longitude":-74.0},"driver_id":"drv-1","rider_id":"rdr-1"}`,
		tripID))
}

func endPayload(tripID string, fare float64) []byte {
	return []byte(fmt.Sprintf(
		`{"event_type":"trip_end","trip_id":"%s","event_time":"2025-06-15T11:55:00Z","dropoff_location":{"latitude":40.73,"longitude":-73.98},"fare_amount":%.2f}`,
		tripID, fare))
}

func TestProcessCompletesTrip(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()

	result, err := p.processor.Process(ctx, event.NewRaw(startPayload("trip-1")))
	require.NoError(t, err)
	assert.Equal(t, reconcile.OutcomePending, result.Outcome)

	result, err = p.processor.Process(ctx, event.NewRaw(endPayload("trip-1", 23.50)))
	require.NoError(t, err)
	assert.Equal(t, reconcile.OutcomeCompleted, result.Outcome)

	select {
	case rec := <-p.notifier.C:
		assert.Equal(t, "trip-1", rec.TripID)
	default:
		t.Fatal("expected a completion signal")
	}

	stats := p.processor.Stats()
	assert.Equal(t, int64(2), stats.Received)
	assert.Equal(t, int64(1), stats.Completed)
	assert.Equal(t, int64(1), stats.Pending)
	assert.Zero(t, stats.Failed)
}

func TestProcessRoutesValidationFailure(t *testing.T) {
	p := newPipeline(t)

	result, err := p.processor.Process(context.Background(), event.NewRaw(endPayload("trip-1", -5.00)))
	require.NoError(t, err)
	assert.Equal(t, reconcile.Result{}, result)

	require.Equal(t, 1, p.archive.Len())
	rec := p.archive.List()[0]
	assert.Equal(t, failure.CategoryValidation, rec.Category)
	assert.Contains(t, rec.Reason, "fare_range")
	assert.Zero(t, p.retries.Len())

	stats := p.processor.Stats()
	assert.Equal(t, int64(1), stats.Failed)
}

func TestProcessRoutesCrossEventViolation(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()

	_, err := p.processor.Process(ctx, event.NewRaw(startPayload("trip-1")))
	require.NoError(t, err)

	// END timestamped before the START.
	early := []byte(`{"event_type":"trip_end","trip_id":"trip-1","event_time":"2025-06-15T11:00:00Z","dropoff_location":{"latitude":40.73,"longitude":-73.98},"fare_amount":10.00}`)
	_, err = p.processor.Process(ctx, event.NewRaw(early))
	require.NoError(t, err)

	require.Equal(t, 1, p.archive.Len())
	assert.Equal(t, failure.CategoryValidation, p.archive.List()[0].Category)

	// The trip record keeps only its START half.
	rec, err := p.store.Get(ctx, "trip-1")
	require.NoError(t, err)
	assert.Equal(t, store.StatusPending, rec.Status)
	assert.Nil(t, rec.End)
}

func TestProcessQuarantinesRepeatedPayload(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()

	bad := []byte(`{"event_type":"trip_pause","trip_id":"trip-1","event_time":"2025-06-15T11:00:00Z"}`)
	for i := 0; i < 4; i++ {
		_, err := p.processor.Process(ctx, event.NewRaw(bad))
		require.NoError(t, err)
	}

	counts := p.archive.CountByCategory()
	assert.Equal(t, 3, counts[failure.CategoryValidation])
	assert.Equal(t, 1, counts[failure.CategoryPoisonPill])
}

func TestProcessDuplicateEvents(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()

	_, err := p.processor.Process(ctx, event.NewRaw(startPayload("trip-1")))
	require.NoError(t, err)

	result, err := p.processor.Process(ctx, event.NewRaw(startPayload("trip-1")))
	require.NoError(t, err)
	assert.Equal(t, reconcile.OutcomeDuplicate, result.Outcome)

	stats := p.processor.Stats()
	assert.Equal(t, int64(1), stats.Duplicates)
	assert.Zero(t, stats.Failed)
	assert.Zero(t, p.archive.Len())
}
