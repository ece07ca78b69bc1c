package ratelimit

import "context"

// Scope identifies one token bucket together with its per-minute capacity.
// The capacity travels with the scope so limiter backends stay stateless
// about configuration.
type Scope struct {
	Key            string
	LimitPerMinute int
}

// Limiter admits or denies outbound calls per scope. TryAcquire must be
// atomic: concurrent dispatch paths share the same buckets.
type Limiter interface {
	TryAcquire(ctx context.Context, scope Scope, cost int) (bool, error)
}
