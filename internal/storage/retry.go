package storage

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// RetryPolicy retries an operation with exponential backoff plus full
// jitter: wait = base*2^attempt + uniform(0, base*2^attempt). MaxRetries
// counts retries, not attempts; the default of 3 means 4 total attempts.
type RetryPolicy struct {
	MaxRetries int
	Base       time.Duration
}

// DefaultRetryPolicy matches the upload protocol defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, Base: 500 * time.Millisecond}
}

// Do runs op, retrying retryable failures up to MaxRetries times. Each of
// the protocol's network calls gets its own independent Do.
func (p RetryPolicy) Do(ctx context.Context, op func() error) error {
	for attempt := 0; ; attempt++ {
		err := op()
		if err == nil {
			return nil
		}
		if !isRetryable(err) || attempt >= p.MaxRetries {
			return err
		}

		backoff := p.Base * (1 << uint(attempt))
		wait := backoff + time.Duration(rand.Int63n(int64(backoff)+1))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// isRetryable: 5xx and transport-level errors are retryable; 4xx, missing
// ETag, size-gate failures and context cancellation are not.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrMissingETag) || errors.Is(err, ErrSizeLimitExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	// Anything else is a transport-level failure (connection refused,
	// timeout, reset).
	return true
}
