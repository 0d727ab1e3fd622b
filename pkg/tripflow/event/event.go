package event

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Kind discriminates the two halves of a trip.
type Kind int

const (
	// KindUnknown is the zero value for unrecognized discriminators.
	KindUnknown Kind = iota

	// KindStart marks the beginning of a trip (pickup).
	KindStart

	// KindEnd marks the end of a trip (drop-off and fare).
	KindEnd
)

// String returns the wire name of the kind.
func (k Kind) String() string {
	switch k {
	case KindStart:
		return "trip_start"
	case KindEnd:
		return "trip_end"
	default:
		return "unknown"
	}
}

// ParseKind maps a wire discriminator to a Kind.
// Returns KindUnknown for unrecognized values.
func ParseKind(s string) Kind {
	switch s {
	case "trip_start":
		return KindStart
	case "trip_end":
		return KindEnd
	default:
		return KindUnknown
	}
}

// MarshalJSON encodes the kind as its wire name.
func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON decodes the kind from its wire name.
func (k *Kind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*k = ParseKind(s)
	return nil
}

// RawEvent is an untyped payload as delivered by the ingestion boundary.
// It is immutable: created at ingress, consumed exactly once by validation.
type RawEvent struct {
	// Payload is the raw serialized event body.
	Payload []byte

	// CorrelationID traces this event through validation, reconciliation,
	// and failure routing. Assigned at ingress if the transport did not
	// provide one.
	CorrelationID string

	// ArrivedAt is the ingestion timestamp, assigned at the boundary.
	// It is distinct from the event time embedded in the payload.
	ArrivedAt time.Time
}

// RawOption configures RawEvent creation.
type RawOption func(*RawEvent)

// WithCorrelationID sets a transport-provided correlation ID.
func WithCorrelationID(id string) RawOption {
	return func(r *RawEvent) {
		r.CorrelationID = id
	}
}

// WithArrivedAt sets a specific arrival timestamp (default: time.Now).
func WithArrivedAt(t time.Time) RawOption {
	return func(r *RawEvent) {
		r.ArrivedAt = t
	}
}

// NewRaw creates a RawEvent from a payload, assigning a correlation ID
// and arrival timestamp unless options provide them.
func NewRaw(payload []byte, opts ...RawOption) RawEvent {
	raw := RawEvent{
		Payload:   payload,
		ArrivedAt: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(&raw)
	}
	if raw.CorrelationID == "" {
		raw.CorrelationID = uuid.New().String()
	}
	return raw
}

// Location is a WGS84 coordinate pair.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// StartDetails carries the fields specific to a trip_start event.
type StartDetails struct {
	Pickup   Location `json:"pickup_location"`
	DriverID string   `json:"driver_id"`
	RiderID  string   `json:"rider_id"`
}

// EndDetails carries the fields specific to a trip_end event.
type EndDetails struct {
	Dropoff    Location `json:"dropoff_location"`
	FareAmount float64  `json:"fare_amount"`
}

// TripEvent is a typed, schema-conformant trip event. Exactly one of
// Start or End is non-nil, matching Kind.
//
// TripEvents are produced by the validate package and are immutable
// afterwards.
type TripEvent struct {
	TripID        string        `json:"trip_id"`
	Kind          Kind          `json:"kind"`
	EventTime     time.Time     `json:"event_time"`
	CorrelationID string        `json:"correlation_id"`
	Start         *StartDetails `json:"start,omitempty"`
	End           *EndDetails   `json:"end,omitempty"`
}

// IsStart reports whether this is the start half of a trip.
func (e *TripEvent) IsStart() bool {
	return e.Kind == KindStart
}

// IsEnd reports whether this is the end half of a trip.
func (e *TripEvent) IsEnd() bool {
	return e.Kind == KindEnd
}

// Clone returns a deep copy of the event.
func (e *TripEvent) Clone() *TripEvent {
	if e == nil {
		return nil
	}
	out := *e
	if e.Start != nil {
		start := *e.Start
		out.Start = &start
	}
	if e.End != nil {
		end := *e.End
		out.End = &end
	}
	return &out
}
