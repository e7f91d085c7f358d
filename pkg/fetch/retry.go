package fetch

import (
	"context"
	"errors"
	"time"

	"github.com/cenk/backoff"
)

// RetryableError marks a transient failure (transport error, 429 or 5xx)
// that [Retry] may attempt again.
type RetryableError struct{ Err error }

// Retryable wraps err as a RetryableError. It returns nil for nil.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

func (e *RetryableError) Error() string { return e.Err.Error() }

func (e *RetryableError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is, or wraps, a RetryableError.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}

// retryPolicy is the backoff between attempts: delay, doubled per attempt,
// with 10% jitter and no overall deadline.
func retryPolicy(delay time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = delay
	b.RandomizationFactor = 0.1
	b.Multiplier = 2
	b.MaxInterval = 64 * delay
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Retry calls fn up to attempts times. Only errors marked with [Retryable]
// are attempted again; any other error is returned at once. When ctx ends
// while a retryable failure is pending, ctx.Err() is returned.
func Retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	b := backoff.WithContext(backoff.WithMaxRetries(retryPolicy(delay), uint64(max(attempts, 1)-1)), ctx)

	err := backoff.Retry(func() error {
		err := fn()
		if err != nil && !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b)
	if err != nil && IsRetryable(err) && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
