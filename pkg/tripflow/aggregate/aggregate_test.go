package aggregate_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boltride/tripflow/pkg/tripflow/aggregate"
	"github.com/boltride/tripflow/pkg/tripflow/event"
	"github.com/boltride/tripflow/pkg/tripflow/store"
)

var day = time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)

func completeTrip(t *testing.T, st *store.MemoryStore, tripID string, endAt time.Time, fare float64) {
	t.Helper()
	ctx := context.Background()

	created, err := st.Apply(ctx, tripID, 0, func(rec *store.TripRecord) error {
		rec.Start = &event.TripEvent{
			TripID:    tripID,
			Kind:      event.KindStart,
			EventTime: endAt.Add(-15 * time.Minute),
			Start:     &event.StartDetails{DriverID: "drv-1", RiderID: "rdr-1"},
		}
		return nil
	})
	require.NoError(t, err)

	_, err = st.Apply(ctx, tripID, created.Version, func(rec *store.TripRecord) error {
		rec.End = &event.TripEvent{
			TripID:    tripID,
			Kind:      event.KindEnd,
			EventTime: endAt,
			End:       &event.EndDetails{FareAmount: fare},
		}
		rec.Status = store.StatusComplete
		return nil
	})
	require.NoError(t, err)
}

func TestComputeDay(t *testing.T) {
	st := store.NewMemoryStore(store.MemoryConfig{})
	completeTrip(t, st, "trip-1", day.Add(8*time.Hour), 10.00)
	completeTrip(t, st, "trip-2", day.Add(12*time.Hour), 25.50)
	completeTrip(t, st, "trip-3", day.Add(20*time.Hour), 4.25)

	// A trip from another day stays out of the window.
	completeTrip(t, st, "trip-other-day", day.AddDate(0, 0, 1), 99.00)

	agg := aggregate.NewAggregator(st, aggregate.Config{})
	kpi, err := agg.ComputeDay(context.Background(), day)
	require.NoError(t, err)

	assert.Equal(t, "2025-06-15", kpi.Date)
	assert.Equal(t, 3, kpi.CountTrips)
	assert.InDelta(t, 39.75, kpi.TotalFare, 0.001)
	assert.InDelta(t, 13.25, kpi.AverageFare, 0.001)
	assert.Equal(t, 25.50, kpi.MaxFare)
	assert.Equal(t, 4.25, kpi.MinFare)
}

func TestComputeDayEmpty(t *testing.T) {
	st := store.NewMemoryStore(store.MemoryConfig{})
	agg := aggregate.NewAggregator(st, aggregate.Config{})

	kpi, err := agg.ComputeDay(context.Background(), day)
	require.NoError(t, err)

	assert.Equal(t, "2025-06-15", kpi.Date)
	assert.Zero(t, kpi.CountTrips)
	assert.Zero(t, kpi.TotalFare)
	assert.Zero(t, kpi.MinFare)
	assert.Zero(t, kpi.MaxFare)
	assert.Zero(t, kpi.AverageFare)
}

func TestComputeYesterday(t *testing.T) {
	st := store.NewMemoryStore(store.MemoryConfig{})
	completeTrip(t, st, "trip-1", day.Add(10*time.Hour), 12.00)

	agg := aggregate.NewAggregator(st, aggregate.Config{
		Now: func() time.Time { return day.AddDate(0, 0, 1).Add(2 * time.Hour) },
	})

	kpi, err := agg.ComputeYesterday(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2025-06-15", kpi.Date)
	assert.Equal(t, 1, kpi.CountTrips)
}

func TestComputeDaySingleTrip(t *testing.T) {
	st := store.NewMemoryStore(store.MemoryConfig{})
	completeTrip(t, st, "trip-1", day.Add(10*time.Hour), 17.80)

	agg := aggregate.NewAggregator(st, aggregate.Config{})
	kpi, err := agg.ComputeDay(context.Background(), day)
	require.NoError(t, err)

	assert.Equal(t, 1, kpi.CountTrips)
	assert.Equal(t, kpi.MinFare, kpi.MaxFare)
	assert.InDelta(t, 17.80, kpi.AverageFare, 0.001)
}
