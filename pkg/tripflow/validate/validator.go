// Package validate implements schema and business-rule validation of raw
// trip events.
//
// Validation is a short-circuiting pipeline: structural check (required
// fields, primitive types), semantic check (recognized kind, sane datetime,
// fare and coordinate ranges), then type coercion into a canonical
// event.TripEvent (UTC timestamps, numeric strings to numbers).
//
// The validator is pure: it never touches the trip state store and an
// identical RawEvent always yields the identical outcome for a fixed clock.
package validate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/boltride/tripflow/pkg/tripflow/event"
)

// Rule names reported on validation failures.
const (
	RuleSchema         = "schema"
	RuleEventKind      = "event_kind"
	RuleEventTime      = "event_time"
	RuleFareRange      = "fare_range"
	RuleCoordinate     = "coordinate_range"
	RuleTypeConversion = "type_conversion"
	RuleEventOrder     = "event_order"
)

// Error is a validation failure naming the violated rule.
type Error struct {
	// Rule is the violated rule name (one of the Rule* constants).
	Rule string

	// Field is the offending field, when one can be named.
	Field string

	// Message is a human-readable diagnostic.
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed: rule %s, field %s: %s", e.Rule, e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: rule %s: %s", e.Rule, e.Message)
}

// NewError creates a validation error for the given rule.
func NewError(rule, field, message string) *Error {
	return &Error{Rule: rule, Field: field, Message: message}
}

// Config configures validation bounds.
type Config struct {
	// MaxFare is the exclusive upper sanity bound on fare_amount.
	// Default: 1000.00
	MaxFare float64

	// ClockSkew is how far in the future an event_time may be before
	// it is rejected. Default: 30 minutes.
	ClockSkew time.Duration

	// StaleAfter is the age past which an event_time triggers the
	// OnWarning hook. Stale events are accepted. Default: 7 days.
	StaleAfter time.Duration

	// Now supplies the current time. Default: time.Now.
	Now func() time.Time

	// OnWarning is called for accepted events that tripped a soft rule.
	OnWarning func(rule string, raw event.RawEvent)
}

// DefaultConfig provides the standard validation bounds.
var DefaultConfig = Config{
	MaxFare:    1000.00,
	ClockSkew:  30 * time.Minute,
	StaleAfter: 7 * 24 * time.Hour,
}

// Validator validates raw events into typed trip events.
type Validator struct {
	cfg Config
}

// New creates a Validator, filling unset config fields with defaults.
func New(cfg Config) *Validator {
	if cfg.MaxFare <= 0 {
		cfg.MaxFare = DefaultConfig.MaxFare
	}
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = DefaultConfig.ClockSkew
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultConfig.StaleAfter
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Validator{cfg: cfg}
}

// requiredFields lists the payload fields every event kind must carry,
// plus the kind-specific ones.
var (
	commonFields = []string{"event_type", "trip_id", "event_time"}
	startFields  = []string{"pickup_location", "driver_id", "rider_id"}
	endFields    = []string{"dropoff_location", "fare_amount"}
)

// Validate runs the full pipeline on a raw event.
// On success it returns the only legitimate source of event.TripEvent
// values in the system. On failure it returns a *Error naming the
// violated rule; the caller is responsible for classification.
func (v *Validator) Validate(raw event.RawEvent) (*event.TripEvent, error) {
	fields, err := v.structural(raw)
	if err != nil {
		return nil, err
	}
	return v.semanticAndCoerce(raw, fields)
}

// structural decodes the payload and checks required fields and
// primitive types.
func (v *Validator) structural(raw event.RawEvent) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw.Payload))
	dec.UseNumber()

	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, NewError(RuleSchema, "", fmt.Sprintf("payload is not a JSON object: %v", err))
	}

	for _, f := range commonFields {
		if _, ok := fields[f]; !ok {
			return nil, NewError(RuleSchema, f, "missing required field")
		}
	}

	kindStr, ok := fields["event_type"].(string)
	if !ok {
		return nil, NewError(RuleSchema, "event_type", "must be a string")
	}
	if _, ok := fields["trip_id"].(string); !ok {
		return nil, NewError(RuleSchema, "trip_id", "must be a string")
	}
	if _, ok := fields["event_time"].(string); !ok {
		return nil, NewError(RuleSchema, "event_time", "must be a string")
	}

	// Kind-specific required fields. Unknown kinds fall through to the
	// semantic check, which names the event_kind rule.
	switch event.ParseKind(kindStr) {
	case event.KindStart:
		for _, f := range startFields {
			if _, ok := fields[f]; !ok {
				return nil, NewError(RuleSchema, f, "missing required field")
			}
		}
	case event.KindEnd:
		for _, f := range endFields {
			if _, ok := fields[f]; !ok {
				return nil, NewError(RuleSchema, f, "missing required field")
			}
		}
	}

	return fields, nil
}

// semanticAndCoerce checks business rules and builds the canonical event.
func (v *Validator) semanticAndCoerce(raw event.RawEvent, fields map[string]any) (*event.TripEvent, error) {
	kind := event.ParseKind(fields["event_type"].(string))
	if kind == event.KindUnknown {
		return nil, NewError(RuleEventKind, "event_type",
			fmt.Sprintf("unrecognized event type %q", fields["event_type"]))
	}

	tripID := fields["trip_id"].(string)
	if tripID == "" {
		return nil, NewError(RuleSchema, "trip_id", "must be non-empty")
	}

	eventTime, err := parseEventTime(fields["event_time"].(string))
	if err != nil {
		return nil, err
	}

	now := v.cfg.Now()
	if eventTime.After(now.Add(v.cfg.ClockSkew)) {
		return nil, NewError(RuleEventTime, "event_time",
			fmt.Sprintf("event time %s is in the future beyond the %s skew tolerance",
				eventTime.Format(time.RFC3339), v.cfg.ClockSkew))
	}
	if v.cfg.OnWarning != nil && eventTime.Before(now.Add(-v.cfg.StaleAfter)) {
		v.cfg.OnWarning(RuleEventTime, raw)
	}

	out := &event.TripEvent{
		TripID:        tripID,
		Kind:          kind,
		EventTime:     eventTime,
		CorrelationID: raw.CorrelationID,
	}

	switch kind {
	case event.KindStart:
		pickup, err := parseLocation(fields["pickup_location"], "pickup_location")
		if err != nil {
			return nil, err
		}
		driverID, ok := fields["driver_id"].(string)
		if !ok || driverID == "" {
			return nil, NewError(RuleSchema, "driver_id", "must be a non-empty string")
		}
		riderID, ok := fields["rider_id"].(string)
		if !ok || riderID == "" {
			return nil, NewError(RuleSchema, "rider_id", "must be a non-empty string")
		}
		out.Start = &event.StartDetails{Pickup: pickup, DriverID: driverID, RiderID: riderID}

	case event.KindEnd:
		dropoff, err := parseLocation(fields["dropoff_location"], "dropoff_location")
		if err != nil {
			return nil, err
		}
		fare, err := coerceNumber(fields["fare_amount"], "fare_amount")
		if err != nil {
			return nil, err
		}
		if fare < 0 || fare >= v.cfg.MaxFare {
			return nil, NewError(RuleFareRange, "fare_amount",
				fmt.Sprintf("fare %.2f outside valid range [0.00, %.2f)", fare, v.cfg.MaxFare))
		}
		out.End = &event.EndDetails{Dropoff: dropoff, FareAmount: fare}
	}

	return out, nil
}

// parseEventTime parses an RFC3339 timestamp and normalizes it to UTC.
func parseEventTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, NewError(RuleEventTime, "event_time",
			fmt.Sprintf("not a valid RFC3339 datetime: %v", err))
	}
	return t.UTC(), nil
}

// parseLocation coerces a JSON object into a Location and checks
// coordinate ranges.
func parseLocation(value any, field string) (event.Location, error) {
	obj, ok := value.(map[string]any)
	if !ok {
		return event.Location{}, NewError(RuleSchema, field, "must be an object")
	}

	lat, err := coerceNumber(obj["latitude"], field+".latitude")
	if err != nil {
		return event.Location{}, err
	}
	lng, err := coerceNumber(obj["longitude"], field+".longitude")
	if err != nil {
		return event.Location{}, err
	}

	if lat < -90 || lat > 90 {
		return event.Location{}, NewError(RuleCoordinate, field+".latitude",
			fmt.Sprintf("latitude %.6f outside [-90, 90]", lat))
	}
	if lng < -180 || lng > 180 {
		return event.Location{}, NewError(RuleCoordinate, field+".longitude",
			fmt.Sprintf("longitude %.6f outside [-180, 180]", lng))
	}

	return event.Location{Latitude: lat, Longitude: lng}, nil
}

// coerceNumber converts a decoded JSON value to float64.
// Accepts json.Number and numeric strings.
func coerceNumber(value any, field string) (float64, error) {
	switch n := value.(type) {
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, NewError(RuleTypeConversion, field, fmt.Sprintf("cannot convert %q to number", n))
		}
		return f, nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, NewError(RuleTypeConversion, field, fmt.Sprintf("cannot convert %q to number", n))
		}
		return f, nil
	case float64:
		return n, nil
	case nil:
		return 0, NewError(RuleSchema, field, "missing required field")
	default:
		return 0, NewError(RuleTypeConversion, field, fmt.Sprintf("unsupported type %T", value))
	}
}
