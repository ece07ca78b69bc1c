package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const bucketWindow = time.Minute

var _ Limiter = (*MemoryLimiter)(nil)

type bucket struct {
	tokensRemaining int
	windowStart     time.Time
}

// MemoryLimiter is an in-process token-bucket limiter with one bucket per
// scope. Buckets refill to full capacity once their 60-second window elapses;
// check-and-decrement happens under a single lock so concurrent dispatchers
// cannot over-admit.
type MemoryLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

func (l *MemoryLimiter) TryAcquire(ctx context.Context, scope Scope, cost int) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if scope.Key == "" {
		return false, fmt.Errorf("scope key is required")
	}
	if scope.LimitPerMinute <= 0 {
		return false, fmt.Errorf("scope %q has non-positive limit %d", scope.Key, scope.LimitPerMinute)
	}
	if cost < 1 {
		cost = 1
	}

	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[scope.Key]
	if !ok || now.Sub(b.windowStart) >= bucketWindow {
		b = &bucket{tokensRemaining: scope.LimitPerMinute, windowStart: now}
		l.buckets[scope.Key] = b
	}

	if b.tokensRemaining < cost {
		return false, nil
	}

	b.tokensRemaining -= cost
	return true, nil
}
