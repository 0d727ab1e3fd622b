package reconcile

import "github.com/boltride/tripflow/pkg/tripflow/store"

// Outcome is the result of applying one validated event to trip state.
type Outcome int

const (
	// OutcomePending means the event seeded or left the record waiting
	// for its complementary half.
	OutcomePending Outcome = iota

	// OutcomeCompleted means this application flipped the record to
	// COMPLETE. At most one application per trip observes this.
	OutcomeCompleted

	// OutcomeDuplicate means the event had no effect: its slot was
	// already filled or the record is already COMPLETE. Not an error.
	OutcomeDuplicate

	// OutcomeConflict means concurrent writers kept invalidating the
	// read version until attempts ran out. Surfaced as TRANSIENT.
	OutcomeConflict

	// OutcomeExpired means the record passed its TTL horizon before the
	// complementary event arrived. The event is a no-op.
	OutcomeExpired
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeCompleted:
		return "completed"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeConflict:
		return "conflict"
	case OutcomeExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Result pairs an outcome with the record state that produced it.
type Result struct {
	Outcome Outcome
	Record  *store.TripRecord
}
