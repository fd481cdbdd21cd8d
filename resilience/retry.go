// Package resilience provides bounded retry and circuit-breaker helpers used
// to keep the durable cache tier from ever blocking or failing a caller.
package resilience

import (
	"context"
	"time"
)

// RetryConfig defines a bounded retry policy with a fixed delay between
// attempts. Operations guarded by it are short (a single SQLite statement),
// so there is no exponential backoff: either the contention clears within a
// few attempts or the operation is abandoned.
type RetryConfig struct {
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int

	// Backoff is the fixed delay between attempts.
	Backoff time.Duration

	// RetryableErrors reports whether an error is worth retrying. A nil
	// classifier retries everything except context cancellation.
	RetryableErrors func(error) bool
}

// DefaultRetryConfig returns the retry policy used for durable-tier
// operations: three retries, 50ms apart.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		Backoff:         50 * time.Millisecond,
		RetryableErrors: DefaultRetryableErrors,
	}
}

// DefaultRetryableErrors retries any non-nil error except context
// cancellation and an open circuit breaker.
func DefaultRetryableErrors(err error) bool {
	switch err {
	case nil, context.Canceled, context.DeadlineExceeded, ErrCircuitOpen:
		return false
	}
	return true
}

// Retry runs fn until it succeeds, the retry budget is exhausted, the error
// is classified non-retryable, or ctx is done. The last error is returned.
func Retry(ctx context.Context, config RetryConfig, fn func() error) error {
	retryable := config.RetryableErrors
	if retryable == nil {
		retryable = DefaultRetryableErrors
	}

	var lastErr error
	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(config.Backoff):
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}
