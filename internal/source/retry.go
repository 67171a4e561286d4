package source

import (
	"context"
	"time"
)

// RetryPolicy bounds how often a network adapter re-attempts a failed fetch
// before giving up and reporting an unsuccessful observation.
type RetryPolicy struct {
	MaxAttempts int           // total attempts, including the first
	BaseBackoff time.Duration // delay before the second attempt
	Factor      int           // backoff multiplier per attempt
}

// DefaultRetryPolicy matches the extraction defaults: 3 attempts with
// exponential backoff 1s, 2s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseBackoff: time.Second, Factor: 2}
}

// withRetry runs fn up to p.MaxAttempts times, sleeping between attempts
// with exponential backoff. It stops early on success or context
// cancellation and returns the last error otherwise.
func withRetry(ctx context.Context, p RetryPolicy, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := p.BaseBackoff
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			t := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
			backoff *= time.Duration(p.Factor)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if lastErr = fn(); lastErr == nil {
			return nil
		}
	}
	return lastErr
}
