// Package failure implements the failure taxonomy, classification, and
// routing for tripflow.
//
// Every rejected input produces exactly one FailureRecord with a stable
// correlation ID; nothing is silently dropped. Categories map to routes:
// VALIDATION and SYSTEM are archived, TRANSIENT goes to the retry queue,
// POISON_PILL is quarantined immediately so one bad payload cannot block
// the events behind it.
package failure

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/boltride/tripflow/pkg/tripflow/event"
)

// Category classifies a failure for routing.
type Category int

const (
	// CategoryValidation is a permanent, input-caused failure.
	// Archived with full diagnostics; never retried.
	CategoryValidation Category = iota

	// CategoryTransient is an environment-caused failure (store conflict
	// exhaustion, backing-store unavailability). Retried with backoff.
	CategoryTransient

	// CategorySystem is an unexpected internal fault. Archived and
	// alerted; not retried by this engine.
	CategorySystem

	// CategoryPoisonPill is a repeated failure of the identical payload.
	// Quarantined immediately without further retries.
	CategoryPoisonPill
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryValidation:
		return "VALIDATION"
	case CategoryTransient:
		return "TRANSIENT"
	case CategorySystem:
		return "SYSTEM"
	case CategoryPoisonPill:
		return "POISON_PILL"
	default:
		return "UNKNOWN"
	}
}

// Route is the destination decided for a failure.
type Route int

const (
	// RouteArchive sends the record to the archive sink.
	RouteArchive Route = iota

	// RouteRetry schedules the record for redelivery.
	RouteRetry

	// RouteQuarantine isolates the record permanently.
	RouteQuarantine
)

// String returns the route name.
func (r Route) String() string {
	switch r {
	case RouteArchive:
		return "archive"
	case RouteRetry:
		return "retry"
	case RouteQuarantine:
		return "quarantine"
	default:
		return "unknown"
	}
}

// MaxPayloadExcerpt bounds how much of an oversized payload a
// FailureRecord retains.
const MaxPayloadExcerpt = 4096

// Record is the immutable, write-once description of a rejected input.
type Record struct {
	// CorrelationID traces the failure back to the originating event.
	CorrelationID string `json:"correlation_id"`

	// Category decides routing.
	Category Category `json:"category"`

	// Reason is the human-readable diagnostic, naming the violated rule
	// for validation failures.
	Reason string `json:"reason"`

	// Payload is the original payload, truncated to MaxPayloadExcerpt.
	Payload []byte `json:"payload,omitempty"`

	// Fingerprint is the stable content hash used for poison-pill
	// tracking across independent invocations.
	Fingerprint string `json:"fingerprint"`

	// OccurredAt is when the failure was classified.
	OccurredAt time.Time `json:"occurred_at"`
}

// Fingerprint computes the stable content hash of a raw payload.
func Fingerprint(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// NewRecord builds a failure record from a raw event, bounding the
// retained payload.
func NewRecord(raw event.RawEvent, category Category, reason string, now time.Time) *Record {
	payload := raw.Payload
	if len(payload) > MaxPayloadExcerpt {
		payload = payload[:MaxPayloadExcerpt]
	}
	// Copy so the record stays immutable if the caller reuses the buffer.
	excerpt := make([]byte, len(payload))
	copy(excerpt, payload)

	return &Record{
		CorrelationID: raw.CorrelationID,
		Category:      category,
		Reason:        reason,
		Payload:       excerpt,
		Fingerprint:   Fingerprint(raw.Payload),
		OccurredAt:    now,
	}
}
