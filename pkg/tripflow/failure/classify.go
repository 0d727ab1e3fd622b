package failure

import (
	"context"
	"errors"
	"time"

	"github.com/boltride/tripflow/pkg/tripflow/event"
	"github.com/boltride/tripflow/pkg/tripflow/store"
	"github.com/boltride/tripflow/pkg/tripflow/validate"
)

// CategorizedError carries an explicit category through an error chain.
// Producers use the Transient/System helpers; Categorize honors it ahead
// of its own inference.
type CategorizedError struct {
	Err      error
	Category Category
}

// Error implements the error interface.
func (e *CategorizedError) Error() string {
	return e.Category.String() + ": " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *CategorizedError) Unwrap() error {
	return e.Err
}

// Transient wraps an error as explicitly TRANSIENT.
func Transient(err error) *CategorizedError {
	return &CategorizedError{Err: err, Category: CategoryTransient}
}

// System wraps an error as explicitly SYSTEM.
func System(err error) *CategorizedError {
	return &CategorizedError{Err: err, Category: CategorySystem}
}

// Categorize infers the category of an error.
//
// Validation errors are permanent and input-caused; store conflicts,
// store unavailability, and deadline expiry are transient; anything
// unrecognized is a system fault (fail safe).
func Categorize(err error) Category {
	if err == nil {
		return CategorySystem // shouldn't happen, fail safe
	}

	var catErr *CategorizedError
	if errors.As(err, &catErr) {
		return catErr.Category
	}

	var valErr *validate.Error
	if errors.As(err, &valErr) {
		return CategoryValidation
	}

	if errors.Is(err, store.ErrVersionConflict) ||
		errors.Is(err, store.ErrUnavailable) ||
		errors.Is(err, context.DeadlineExceeded) {
		return CategoryTransient
	}

	return CategorySystem
}

// RouteFor maps a category to its routing decision.
func RouteFor(category Category) Route {
	switch category {
	case CategoryTransient:
		return RouteRetry
	case CategoryPoisonPill:
		return RouteQuarantine
	default:
		return RouteArchive
	}
}

// ClassifierConfig configures classification.
type ClassifierConfig struct {
	// Poison configures the repeated-failure detector.
	Poison PoisonConfig

	// Now supplies the current time. Default: time.Now.
	Now func() time.Time
}

// Classifier turns a failed raw event into a FailureRecord and a routing
// decision, escalating repeated failures of the identical payload to
// POISON_PILL.
type Classifier struct {
	detector *PoisonDetector
	now      func() time.Time
}

// NewClassifier creates a classifier and its poison detector.
// Call Close when done.
func NewClassifier(cfg ClassifierConfig) *Classifier {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Poison.Now == nil {
		cfg.Poison.Now = cfg.Now
	}
	return &Classifier{
		detector: NewPoisonDetector(cfg.Poison),
		now:      cfg.Now,
	}
}

// Classify builds the failure record for a raw event that failed with
// err. The failure is counted against the payload fingerprint first, so
// a payload that keeps failing is reclassified POISON_PILL regardless of
// its original category.
func (c *Classifier) Classify(_ context.Context, raw event.RawEvent, err error) (*Record, Route) {
	category := Categorize(err)

	fingerprint := Fingerprint(raw.Payload)
	c.detector.Record(fingerprint)
	if c.detector.IsPoison(fingerprint) {
		category = CategoryPoisonPill
	}

	reason := "unknown failure"
	if err != nil {
		reason = err.Error()
	}

	rec := NewRecord(raw, category, reason, c.now())
	return rec, RouteFor(category)
}

// Detector exposes the underlying poison detector for inspection.
func (c *Classifier) Detector() *PoisonDetector {
	return c.detector
}

// Close stops the poison detector.
func (c *Classifier) Close() {
	c.detector.Close()
}
