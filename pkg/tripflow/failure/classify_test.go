package failure_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boltride/tripflow/pkg/tripflow/event"
	"github.com/boltride/tripflow/pkg/tripflow/failure"
	"github.com/boltride/tripflow/pkg/tripflow/store"
	"github.com/boltride/tripflow/pkg/tripflow/validate"
)

func TestCategorize(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want failure.Category
	}{
		{
			name: "validation error",
			err:  validate.NewError(validate.RuleFareRange, "fare_amount", "negative"),
			want: failure.CategoryValidation,
		},
		{
			name: "wrapped validation error",
			err:  fmt.Errorf("update trip: %w", validate.NewError(validate.RuleEventOrder, "event_time", "order")),
			want: failure.CategoryValidation,
		},
		{
			name: "version conflict",
			err:  fmt.Errorf("apply: %w", store.ErrVersionConflict),
			want: failure.CategoryTransient,
		},
		{
			name: "store unavailable",
			err:  store.ErrUnavailable,
			want: failure.CategoryTransient,
		},
		{
			name: "deadline exceeded",
			err:  context.DeadlineExceeded,
			want: failure.CategoryTransient,
		},
		{
			name: "explicit transient",
			err:  failure.Transient(errors.New("flaky sink")),
			want: failure.CategoryTransient,
		},
		{
			name: "explicit system",
			err:  failure.System(errors.New("invariant broken")),
			want: failure.CategorySystem,
		},
		{
			name: "unknown error fails safe to system",
			err:  errors.New("something unexpected"),
			want: failure.CategorySystem,
		},
		{
			name: "nil error fails safe to system",
			err:  nil,
			want: failure.CategorySystem,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, failure.Categorize(tt.err))
		})
	}
}

func TestRouteFor(t *testing.T) {
	assert.Equal(t, failure.RouteArchive, failure.RouteFor(failure.CategoryValidation))
	assert.Equal(t, failure.RouteRetry, failure.RouteFor(failure.CategoryTransient))
	assert.Equal(t, failure.RouteArchive, failure.RouteFor(failure.CategorySystem))
	assert.Equal(t, failure.RouteQuarantine, failure.RouteFor(failure.CategoryPoisonPill))
}

func TestClassifyBuildsRecord(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	classifier := failure.NewClassifier(failure.ClassifierConfig{
		Now: func() time.Time { return now },
	})
	defer classifier.Close()

	raw := event.NewRaw([]byte(`{"fare_amount":-5}`), event.WithCorrelationID("corr-1"))
	err := validate.NewError(validate.RuleFareRange, "fare_amount", "fare -5.00 outside valid range")

	rec, route := classifier.Classify(context.Background(), raw, err)

	assert.Equal(t, "corr-1", rec.CorrelationID)
	assert.Equal(t, failure.CategoryValidation, rec.Category)
	assert.Equal(t, failure.RouteArchive, route)
	assert.Contains(t, rec.Reason, "fare_amount")
	assert.Equal(t, failure.Fingerprint(raw.Payload), rec.Fingerprint)
	assert.Equal(t, now, rec.OccurredAt)
	assert.Equal(t, raw.Payload, rec.Payload)
}

func TestClassifyEscalatesRepeatedPayloadToPoison(t *testing.T) {
	classifier := failure.NewClassifier(failure.ClassifierConfig{
		Poison: failure.PoisonConfig{Threshold: 3, Window: time.Hour},
	})
	defer classifier.Close()

	ctx := context.Background()
	payload := []byte(`{"stuck":"payload"}`)
	valErr := validate.NewError(validate.RuleSchema, "trip_id", "missing required field")

	// The first deliveries keep their original category.
	for i := 0; i < 3; i++ {
		raw := event.NewRaw(payload)
		rec, route := classifier.Classify(ctx, raw, valErr)
		assert.Equal(t, failure.CategoryValidation, rec.Category, "delivery %d", i+1)
		assert.Equal(t, failure.RouteArchive, route)
	}

	// More than Threshold failures of the identical payload: poison.
	raw := event.NewRaw(payload)
	rec, route := classifier.Classify(ctx, raw, valErr)
	assert.Equal(t, failure.CategoryPoisonPill, rec.Category)
	assert.Equal(t, failure.RouteQuarantine, route)
}

func TestClassifyDistinctPayloadsTrackedSeparately(t *testing.T) {
	classifier := failure.NewClassifier(failure.ClassifierConfig{
		Poison: failure.PoisonConfig{Threshold: 1, Window: time.Hour},
	})
	defer classifier.Close()

	ctx := context.Background()
	err := errors.New("boom")

	rec, _ := classifier.Classify(ctx, event.NewRaw([]byte(`{"a":1}`)), err)
	assert.Equal(t, failure.CategorySystem, rec.Category)

	// A different payload does not inherit the first one's tally.
	rec, _ = classifier.Classify(ctx, event.NewRaw([]byte(`{"b":2}`)), err)
	assert.Equal(t, failure.CategorySystem, rec.Category)

	// The first payload again crosses its own threshold.
	rec, route := classifier.Classify(ctx, event.NewRaw([]byte(`{"a":1}`)), err)
	assert.Equal(t, failure.CategoryPoisonPill, rec.Category)
	assert.Equal(t, failure.RouteQuarantine, route)
}

func TestNewRecordTruncatesOversizedPayload(t *testing.T) {
	big := make([]byte, failure.MaxPayloadExcerpt*2)
	for i := range big {
		big[i] = 'x'
	}

	raw := event.NewRaw(big)
	rec := failure.NewRecord(raw, failure.CategoryValidation, "too big", time.Now())

	require.Len(t, rec.Payload, failure.MaxPayloadExcerpt)
	// Fingerprint still covers the full payload.
	assert.Equal(t, failure.Fingerprint(big), rec.Fingerprint)
}
