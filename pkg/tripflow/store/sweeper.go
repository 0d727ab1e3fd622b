package store

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Expirer is implemented by stores that can flip due pending records
// to EXPIRED in bulk.
type Expirer interface {
	ExpireDue(ctx context.Context) (int, error)
}

// Sweeper periodically expires overdue pending records. It stands in for
// the external housekeeping task: the reconciliation engine itself never
// expires records, it only observes EXPIRED state lazily.
type Sweeper struct {
	store    Expirer
	interval time.Duration
	logger   *slog.Logger

	// OnSweep, when set before Start, receives the flip count and elapsed
	// milliseconds of every successful pass. Used to hook metrics onto
	// sweeping.
	OnSweep func(count int, durationMs float64)

	mu      sync.Mutex
	stopCh  chan struct{}
	running bool
}

// NewSweeper creates a sweeper. Interval defaults to 5 minutes.
func NewSweeper(store Expirer, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Sweeper{
		store:    store,
		interval: interval,
		logger:   logger,
	}
}

// Start begins sweeping in a background goroutine.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.mu.Unlock()

	go s.run(ctx, stopCh)
}

// Stop halts the sweeper.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	close(s.stopCh)
	s.running = false
}

func (s *Sweeper) run(ctx context.Context, stopCh <-chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			began := time.Now()
			n, err := s.store.ExpireDue(ctx)
			if err != nil {
				if s.logger != nil {
					s.logger.Warn("sweep failed", slog.String("error", err.Error()))
				}
				continue
			}
			if n > 0 && s.logger != nil {
				s.logger.Info("expired overdue trips", slog.Int("count", n))
			}
			if s.OnSweep != nil {
				s.OnSweep(n, float64(time.Since(began).Milliseconds()))
			}
		}
	}
}
