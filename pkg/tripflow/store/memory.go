package store

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store implementation.
// Suitable for testing and single-instance deployments.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*TripRecord
	cfg     MemoryConfig
}

// MemoryConfig configures the in-memory store.
type MemoryConfig struct {
	// TTL is the pending-record expiry horizon. Default: 24 hours.
	TTL time.Duration

	// Now supplies the current time. Default: time.Now.
	Now func() time.Time
}

// NewMemoryStore creates a new in-memory trip store.
func NewMemoryStore(cfg MemoryConfig) *MemoryStore {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &MemoryStore{
		records: make(map[string]*TripRecord),
		cfg:     cfg,
	}
}

// Get returns a copy of the record, or ErrNotFound.
func (s *MemoryStore) Get(_ context.Context, tripID string) (*TripRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[tripID]
	if !ok {
		return nil, ErrNotFound
	}

	out := rec.Clone()
	if out.expired(s.cfg.Now()) {
		out.Status = StatusExpired
	}
	return out, nil
}

// Apply atomically creates or conditionally mutates the record.
func (s *MemoryStore) Apply(_ context.Context, tripID string, expectedVersion int64, mut Mutator) (*TripRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.cfg.Now()
	current, exists := s.records[tripID]

	if expectedVersion == 0 {
		if exists {
			return nil, ErrVersionConflict
		}
		fresh := newPendingRecord(tripID, now, s.cfg.TTL)
		if err := mut(fresh); err != nil {
			return nil, err
		}
		fresh.Version = 1
		s.records[tripID] = fresh
		return fresh.Clone(), nil
	}

	if !exists {
		return nil, ErrNotFound
	}
	if current.expired(now) {
		// Elapsed TTL makes the record inaccessible to updates.
		return nil, ErrNotFound
	}
	if current.Version != expectedVersion {
		return nil, ErrVersionConflict
	}

	next := current.Clone()
	if err := mut(next); err != nil {
		return nil, err
	}
	next.Version = current.Version + 1
	next.UpdatedAt = now
	s.records[tripID] = next
	return next.Clone(), nil
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// CompletedTrips returns copies of all COMPLETE records whose completion
// date (the END event time, UTC) falls on the given day.
func (s *MemoryStore) CompletedTrips(_ context.Context, day time.Time) ([]*TripRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	y, m, d := day.UTC().Date()
	var out []*TripRecord
	for _, rec := range s.records {
		if rec.Status != StatusComplete || rec.End == nil {
			continue
		}
		ey, em, ed := rec.End.EventTime.UTC().Date()
		if ey == y && em == m && ed == d {
			out = append(out, rec.Clone())
		}
	}
	return out, nil
}

// ExpireDue flips pending records past their TTL deadline to EXPIRED and
// returns how many were flipped. This is the housekeeping entry point
// used by the Sweeper; the reconciliation engine never calls it.
func (s *MemoryStore) ExpireDue(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.cfg.Now()
	flipped := 0
	for _, rec := range s.records {
		if rec.expired(now) {
			rec.Status = StatusExpired
			rec.UpdatedAt = now
			rec.Version++
			flipped++
		}
	}
	return flipped, nil
}

// Compile-time check that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
