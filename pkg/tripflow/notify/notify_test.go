package notify_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boltride/tripflow/pkg/tripflow/notify"
	"github.com/boltride/tripflow/pkg/tripflow/store"
)

func completedRecord(tripID string) *store.TripRecord {
	return &store.TripRecord{
		TripID:  tripID,
		Status:  store.StatusComplete,
		Version: 2,
	}
}

func TestFuncNotifier(t *testing.T) {
	var got *store.TripRecord
	n := notify.Func(func(_ context.Context, rec *store.TripRecord) {
		got = rec
	})

	n.Notify(context.Background(), completedRecord("trip-1"))
	require.NotNil(t, got)
	assert.Equal(t, "trip-1", got.TripID)
}

func TestChanDeliversBuffered(t *testing.T) {
	n := notify.NewChan(2)
	ctx := context.Background()

	n.Notify(ctx, completedRecord("trip-1"))
	n.Notify(ctx, completedRecord("trip-2"))

	assert.Equal(t, "trip-1", (<-n.C).TripID)
	assert.Equal(t, "trip-2", (<-n.C).TripID)
}

func TestChanDropsWhenFull(t *testing.T) {
	n := notify.NewChan(1)
	ctx := context.Background()

	// The second send must not block; the signal is simply dropped.
	n.Notify(ctx, completedRecord("trip-1"))
	n.Notify(ctx, completedRecord("trip-2"))

	assert.Equal(t, "trip-1", (<-n.C).TripID)
	select {
	case rec := <-n.C:
		t.Fatalf("unexpected second delivery: %s", rec.TripID)
	default:
	}
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := notify.Log{Logger: slog.New(slog.NewTextHandler(&buf, nil))}

	n.Notify(context.Background(), completedRecord("trip-1"))
	assert.Contains(t, buf.String(), "trip_id=trip-1")

	// Nil logger is a no-op, not a panic.
	notify.Log{}.Notify(context.Background(), completedRecord("trip-2"))
}
