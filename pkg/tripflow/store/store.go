// Package store defines the trip state store contract and two conforming
// implementations: an in-memory store for tests and single-instance use,
// and a durable SQLite-backed store.
//
// The store is the only shared mutable resource in the system. All
// mutation goes through Apply, an atomic compare-and-swap keyed on the
// record's version, so concurrent workers for the same trip never lose an
// update and no external locking is required.
//
// TTL is a lazy predicate: a PENDING record whose deadline has elapsed is
// reported EXPIRED on read and refuses mutation. Physical status flips are
// performed by the Sweeper; physical removal is an external retention
// concern and is never done here.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/boltride/tripflow/pkg/tripflow/event"
)

// Status is the lifecycle state of a trip record.
type Status int

const (
	// StatusPending holds exactly one of the two trip halves.
	StatusPending Status = iota

	// StatusComplete holds both halves. Terminal.
	StatusComplete

	// StatusExpired passed its TTL deadline while pending. Terminal.
	StatusExpired
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusComplete:
		return "COMPLETE"
	case StatusExpired:
		return "EXPIRED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether the status admits no further mutation.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusExpired
}

// DefaultTTL is the horizon after which an incomplete trip expires.
const DefaultTTL = 24 * time.Hour

// TripRecord is the reconciliation unit, keyed by trip ID.
//
// Invariants: Status is COMPLETE iff both Start and End are set; Version
// increments exactly once per successful mutation and never decrements;
// a terminal record is never mutated again.
type TripRecord struct {
	TripID      string           `json:"trip_id"`
	Status      Status           `json:"status"`
	Start       *event.TripEvent `json:"start_event,omitempty"`
	End         *event.TripEvent `json:"end_event,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	Version     int64            `json:"version"`
	TTLDeadline time.Time        `json:"ttl_deadline"`
}

// Clone returns a deep copy of the record.
func (r *TripRecord) Clone() *TripRecord {
	if r == nil {
		return nil
	}
	out := *r
	out.Start = r.Start.Clone()
	out.End = r.End.Clone()
	return &out
}

// expired reports whether a pending record has passed its TTL deadline.
func (r *TripRecord) expired(now time.Time) bool {
	return r.Status == StatusPending && !r.TTLDeadline.IsZero() && now.After(r.TTLDeadline)
}

// Mutator applies a change to a record inside an atomic update.
// It must not retain the record after returning.
type Mutator func(*TripRecord) error

// Store errors. Implementations must return these sentinels (possibly
// wrapped) so callers can classify outcomes with errors.Is.
var (
	// ErrNotFound is returned by Get for absent records, and by Apply
	// when expectedVersion > 0 names a record that does not exist.
	ErrNotFound = errors.New("trip record not found")

	// ErrVersionConflict is returned by Apply when the record's current
	// version does not match expectedVersion, including creation attempts
	// (expectedVersion 0) against an existing record.
	ErrVersionConflict = errors.New("trip record version conflict")

	// ErrUnavailable indicates the backing store could not be reached.
	// Transient; callers retry with backoff.
	ErrUnavailable = errors.New("trip store unavailable")
)

// Store is the trip state store contract.
//
// Apply is the single atomicity primitive: with expectedVersion 0 it
// creates the record by applying the mutator to a fresh PENDING record;
// otherwise it applies the mutator only if the current version equals
// expectedVersion. Either the whole mutation lands with Version+1, or
// nothing changes.
type Store interface {
	// Get returns a copy of the record, or ErrNotFound. A pending record
	// past its TTL deadline is returned with StatusExpired.
	Get(ctx context.Context, tripID string) (*TripRecord, error)

	// Apply atomically creates or conditionally mutates the record and
	// returns the new state. Returns ErrVersionConflict on a lost race
	// and ErrNotFound when expectedVersion > 0 but no record exists.
	// Pending records past their TTL deadline refuse mutation with
	// ErrNotFound.
	Apply(ctx context.Context, tripID string, expectedVersion int64, mut Mutator) (*TripRecord, error)
}

// newPendingRecord seeds a record for first-event creation.
func newPendingRecord(tripID string, now time.Time, ttl time.Duration) *TripRecord {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &TripRecord{
		TripID:      tripID,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
		TTLDeadline: now.Add(ttl),
	}
}
