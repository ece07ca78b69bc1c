package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/basilakis/kai-delivery/internal/ratelimit"
	goredis "github.com/redis/go-redis/v9"
)

const windowSeconds = 60

var acquireScript = goredis.NewScript(`
local current = redis.call("INCRBY", KEYS[1], ARGV[2])
if current == tonumber(ARGV[2]) then
  redis.call("EXPIRE", KEYS[1], ARGV[3])
end
if current > tonumber(ARGV[1]) then
  return 0
end
return 1
`)

var _ ratelimit.Limiter = (*RedisRateLimiter)(nil)

// RedisRateLimiter is a distributed per-minute rate limiter backed by Redis.
// Each scope gets one counter per minute window; the Lua script makes
// check-and-increment atomic across processes.
type RedisRateLimiter struct {
	client *goredis.Client
	now    func() time.Time
	script *goredis.Script
}

func NewRedisRateLimiter(client *goredis.Client) (*RedisRateLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}

	return &RedisRateLimiter{
		client: client,
		now:    time.Now,
		script: acquireScript,
	}, nil
}

func (r *RedisRateLimiter) TryAcquire(ctx context.Context, scope ratelimit.Scope, cost int) (bool, error) {
	if r == nil || r.client == nil || r.script == nil {
		return false, fmt.Errorf("rate limiter is not initialized")
	}

	normalizedScope := strings.ToLower(strings.TrimSpace(scope.Key))
	if normalizedScope == "" {
		return false, fmt.Errorf("scope key is required")
	}
	if scope.LimitPerMinute <= 0 {
		return false, fmt.Errorf("scope %q has non-positive limit %d", scope.Key, scope.LimitPerMinute)
	}
	if cost < 1 {
		cost = 1
	}

	if ctx == nil {
		ctx = context.Background()
	}

	window := r.now().UTC().Unix() / windowSeconds
	key := fmt.Sprintf("ratelimit:%s:%d", normalizedScope, window)
	result, err := r.script.Run(ctx, r.client, []string{key}, scope.LimitPerMinute, cost, windowSeconds).Int()
	if err != nil {
		return false, fmt.Errorf("failed to evaluate rate limit: %w", err)
	}

	return result == 1, nil
}
