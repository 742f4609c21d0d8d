package pipeline

import (
	"context"
	"time"

	"github.com/chirino/agent-memory-service/internal/errs"
)

// retryBackoff returns the exponential backoff delay for the given
// (zero-based) attempt number, capped at maxDelay. Grounded on the
// teacher's FailTask retry_at-bump pattern (internal/plugin/store/
// postgres/postgres.go's Fail), generalized from a flat retryDelay to an
// exponential schedule per §4.5 stage 3's "retry with exponential
// backoff on transient provider failures".
func retryBackoff(attempt int, base, maxDelay time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := base
	for i := 0; i < attempt && d < maxDelay; i++ {
		d *= 2
	}
	if d > maxDelay {
		d = maxDelay
	}
	return d
}

// withRetry runs fn up to maxAttempts times, sleeping retryBackoff
// between attempts, stopping early on a non-retryable error or on
// context cancellation. Used by Embed for the provider-call retry loop.
func withRetry(ctx context.Context, maxAttempts int, base, maxDelay time.Duration, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !errs.Retryable(lastErr) {
			return lastErr
		}
		if attempt == maxAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryBackoff(attempt, base, maxDelay)):
		}
	}
	return lastErr
}
