// Package retry provides bounded retries with exponential backoff and
// jitter for transient failures at the store and sink boundaries.
package retry

import (
	"context"
	"math/rand/v2"
	"time"
)

// Config configures retry behavior.
type Config struct {
	// MaxAttempts is the maximum number of attempts (including initial).
	MaxAttempts int

	// InitialBackoff is the starting backoff duration.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration.
	MaxBackoff time.Duration

	// BackoffFactor is the multiplier applied to backoff after each attempt.
	BackoffFactor float64

	// Jitter is the random jitter factor (0.0-1.0).
	Jitter float64

	// RetryableFunc decides whether an error is worth retrying.
	// Default: retry every error.
	RetryableFunc func(error) bool
}

// Default is the standard retry configuration.
var Default = Config{
	MaxAttempts:    3,
	InitialBackoff: 1 * time.Second,
	MaxBackoff:     30 * time.Second,
	BackoffFactor:  2.0,
	Jitter:         0.1,
}

// Aggressive retries more times with shorter backoff.
var Aggressive = Config{
	MaxAttempts:    5,
	InitialBackoff: 500 * time.Millisecond,
	MaxBackoff:     10 * time.Second,
	BackoffFactor:  1.5,
	Jitter:         0.2,
}

// None disables retries.
var None = Config{
	MaxAttempts: 1,
}

// Result contains the outcome of a retried operation.
type Result[T any] struct {
	// Value is the result if successful.
	Value T

	// Err is the final error if all attempts failed.
	Err error

	// Attempts is the number of attempts made.
	Attempts int

	// Duration is the total time spent.
	Duration time.Duration
}

// WithContext executes fn with retries, respecting context cancellation.
// Backoff between attempts grows by BackoffFactor up to MaxBackoff, with
// Jitter applied to each sleep.
func WithContext[T any](ctx context.Context, cfg Config, fn func(context.Context) (T, error)) Result[T] {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = Default.MaxAttempts
	}
	isRetryable := cfg.RetryableFunc
	if isRetryable == nil {
		isRetryable = func(error) bool { return true }
	}

	start := time.Now()
	backoff := cfg.InitialBackoff
	var lastErr error

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Result[T]{Err: err, Attempts: attempt, Duration: time.Since(start)}
		}

		value, err := fn(ctx)
		if err == nil {
			return Result[T]{Value: value, Attempts: attempt + 1, Duration: time.Since(start)}
		}
		lastErr = err

		if !isRetryable(err) {
			return Result[T]{Err: err, Attempts: attempt + 1, Duration: time.Since(start)}
		}

		// Don't sleep after the last attempt
		if attempt < cfg.MaxAttempts-1 && backoff > 0 {
			select {
			case <-ctx.Done():
				return Result[T]{Err: ctx.Err(), Attempts: attempt + 1, Duration: time.Since(start)}
			case <-time.After(withJitter(backoff, cfg.Jitter)):
			}

			backoff = time.Duration(float64(backoff) * cfg.BackoffFactor)
			if cfg.MaxBackoff > 0 && backoff > cfg.MaxBackoff {
				backoff = cfg.MaxBackoff
			}
		}
	}

	return Result[T]{Err: lastErr, Attempts: cfg.MaxAttempts, Duration: time.Since(start)}
}

// Backoff returns the delay before the given retry attempt (0-based),
// without sleeping. Used by queues that schedule redelivery.
func Backoff(cfg Config, attempt int) time.Duration {
	d := cfg.InitialBackoff
	if d <= 0 {
		d = Default.InitialBackoff
	}
	factor := cfg.BackoffFactor
	if factor <= 0 {
		factor = Default.BackoffFactor
	}
	for i := 0; i < attempt; i++ {
		d = time.Duration(float64(d) * factor)
		if cfg.MaxBackoff > 0 && d > cfg.MaxBackoff {
			return withJitter(cfg.MaxBackoff, cfg.Jitter)
		}
	}
	return withJitter(d, cfg.Jitter)
}

// withJitter applies base +/- (base * jitter * random).
func withJitter(base time.Duration, jitter float64) time.Duration {
	if jitter <= 0 {
		return base
	}
	amount := float64(base) * jitter * (rand.Float64()*2 - 1)
	return time.Duration(float64(base) + amount)
}
