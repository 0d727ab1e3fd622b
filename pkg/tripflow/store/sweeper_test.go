package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boltride/tripflow/pkg/tripflow/store"
)

func TestSweeperExpiresOverdueTrips(t *testing.T) {
	clock := newClock()
	st := store.NewMemoryStore(store.MemoryConfig{Now: clock.Now})
	ctx := context.Background()

	_, err := st.Apply(ctx, "trip-1", 0, seedStart(startEvent("trip-1", clock.Now())))
	require.NoError(t, err)

	clock.Advance(store.DefaultTTL + time.Minute)

	sweeper := store.NewSweeper(st, 10*time.Millisecond, nil)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	assert.Eventually(t, func() bool {
		rec, err := st.Get(ctx, "trip-1")
		return err == nil && rec.Status == store.StatusExpired && rec.Version == 2
	}, time.Second, 10*time.Millisecond)
}

func TestSweeperReportsPassesToHook(t *testing.T) {
	clock := newClock()
	st := store.NewMemoryStore(store.MemoryConfig{Now: clock.Now})
	ctx := context.Background()

	_, err := st.Apply(ctx, "trip-1", 0, seedStart(startEvent("trip-1", clock.Now())))
	require.NoError(t, err)
	clock.Advance(store.DefaultTTL + time.Minute)

	counts := make(chan int, 16)
	sweeper := store.NewSweeper(st, 10*time.Millisecond, nil)
	sweeper.OnSweep = func(count int, _ float64) {
		select {
		case counts <- count:
		default:
		}
	}
	sweeper.Start(ctx)
	defer sweeper.Stop()

	select {
	case n := <-counts:
		assert.Equal(t, 1, n)
	case <-time.After(time.Second):
		t.Fatal("sweep hook never fired")
	}
}

func TestSweeperStopIsIdempotent(t *testing.T) {
	st := store.NewMemoryStore(store.MemoryConfig{})
	sweeper := store.NewSweeper(st, time.Minute, nil)

	sweeper.Start(context.Background())
	sweeper.Stop()
	sweeper.Stop()

	// The sweeper can be restarted and stopped again.
	sweeper.Start(context.Background())
	sweeper.Stop()
}
