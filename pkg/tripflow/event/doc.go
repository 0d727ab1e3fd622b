// Package event defines the trip event data model for tripflow.
//
// Two independent, unordered streams describe a trip: a trip_start event
// carrying pickup details and a trip_end event carrying drop-off details
// and the fare. Events enter the system as RawEvent values produced at the
// ingestion boundary and leave validation as TripEvent values.
//
// A TripEvent is only ever produced by the validate package. Downstream
// packages (reconcile, notify, aggregate) treat it as schema-conformant
// and never construct one from raw input themselves.
package event
