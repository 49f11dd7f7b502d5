// Package retry provides a composable retry wrapper with exponential
// backoff and jitter. Operations mark transient failures with Transient;
// everything else fails fast. Retry policy is applied explicitly at call
// sites, typically by the CLI layer resubmitting an engine request.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// Policy holds retry configuration.
type Policy struct {
	MaxAttempts int           // Maximum number of attempts (0 = unbounded)
	InitialWait time.Duration // Initial wait between attempts
	MaxWait     time.Duration // Cap on the wait between attempts
	Multiplier  float64       // Backoff multiplier
	Jitter      float64       // Jitter factor (0-1)
}

// DefaultPolicy returns sensible defaults: three attempts, 100ms initial
// backoff doubling up to 10s, 10% jitter.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		InitialWait: 100 * time.Millisecond,
		MaxWait:     10 * time.Second,
		Multiplier:  2.0,
		Jitter:      0.1,
	}
}

// TransientError wraps an error that should be retried.
type TransientError struct {
	Err error
}

func (e TransientError) Error() string {
	return e.Err.Error()
}

func (e TransientError) Unwrap() error {
	return e.Err
}

// Transient marks an error as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return TransientError{Err: err}
}

// IsTransient reports whether the error is marked retryable.
func IsTransient(err error) bool {
	var transient TransientError
	return errors.As(err, &transient)
}

// Do executes fn, retrying transient failures per the policy. Non-transient
// errors and context cancellation end the attempts immediately.
func Do(ctx context.Context, p Policy, fn func() error) error {
	var lastErr error

	for attempt := 1; p.MaxAttempts == 0 || attempt <= p.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsTransient(err) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		wait := float64(p.InitialWait) * math.Pow(p.Multiplier, float64(attempt-1))
		if wait > float64(p.MaxWait) {
			wait = float64(p.MaxWait)
		}
		if p.Jitter > 0 {
			wait += wait * p.Jitter * (rand.Float64()*2 - 1)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(wait)):
		}
	}

	return lastErr
}

// DoWithResult executes fn with retries and returns its result.
func DoWithResult[T any](ctx context.Context, p Policy, fn func() (T, error)) (T, error) {
	var result T
	err := Do(ctx, p, func() error {
		r, err := fn()
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	return result, err
}
