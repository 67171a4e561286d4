package source

import (
	"context"
	"sync"
	"time"
)

// limiter enforces a fixed minimum interval between requests. Each network
// adapter owns exactly one limiter; limiters are never shared, so one slow
// adapter's pacing cannot stall another adapter or another word's extraction.
type limiter struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
}

func newLimiter(interval time.Duration) *limiter {
	return &limiter{interval: interval}
}

// wait blocks until the interval since the previous request has elapsed, or
// the context is cancelled. The reservation is taken before sleeping so that
// concurrent callers queue up rather than stampede.
func (l *limiter) wait(ctx context.Context) error {
	l.mu.Lock()
	now := time.Now()
	next := l.last.Add(l.interval)
	if next.Before(now) {
		next = now
	}
	l.last = next
	l.mu.Unlock()

	delay := time.Until(next)
	if delay <= 0 {
		return nil
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
