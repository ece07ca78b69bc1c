package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestResolverResolutionOrder(t *testing.T) {
	t.Parallel()

	resolver, err := NewResolver(60, 5, map[string]int{"hooks.partner.test": 1}, []string{"10.0.0.0/8", "127.0.0.0/8"})
	if err != nil {
		t.Fatalf("NewResolver() unexpected error: %v", err)
	}

	testCases := []struct {
		name      string
		endpoint  string
		wantKey   string
		wantLimit int
	}{
		{name: "explicit override wins", endpoint: "hooks.partner.test", wantKey: "endpoint:hooks.partner.test", wantLimit: 1},
		{name: "internal address upgraded", endpoint: "10.1.2.3", wantKey: "network:internal", wantLimit: 300},
		{name: "loopback is internal", endpoint: "127.0.0.1", wantKey: "network:internal", wantLimit: 300},
		{name: "localhost is internal", endpoint: "localhost", wantKey: "network:internal", wantLimit: 300},
		{name: "external address", endpoint: "203.0.113.9", wantKey: "network:external", wantLimit: 60},
		{name: "hostname is external", endpoint: "example.test", wantKey: "network:external", wantLimit: 60},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			scope := resolver.Resolve(tc.endpoint)
			if scope.Key != tc.wantKey {
				t.Fatalf("Resolve(%q).Key = %q, want %q", tc.endpoint, scope.Key, tc.wantKey)
			}
			if scope.LimitPerMinute != tc.wantLimit {
				t.Fatalf("Resolve(%q).LimitPerMinute = %d, want %d", tc.endpoint, scope.LimitPerMinute, tc.wantLimit)
			}
		})
	}
}

func TestNewResolverRejectsBadInput(t *testing.T) {
	t.Parallel()

	if _, err := NewResolver(0, 1, nil, nil); err == nil {
		t.Fatal("expected error for non-positive default limit")
	}
	if _, err := NewResolver(60, 1, map[string]int{"x": 0}, nil); err == nil {
		t.Fatal("expected error for non-positive override")
	}
	if _, err := NewResolver(60, 1, nil, []string{"not-a-cidr"}); err == nil {
		t.Fatal("expected error for invalid CIDR")
	}
}

func TestMemoryLimiterDeniesBeyondCapacity(t *testing.T) {
	t.Parallel()

	limiter := NewMemoryLimiter()
	scope := Scope{Key: "endpoint:hooks.partner.test", LimitPerMinute: 3}

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		allowed, err := limiter.TryAcquire(ctx, scope, 1)
		if err != nil {
			t.Fatalf("TryAcquire() unexpected error: %v", err)
		}
		if !allowed {
			t.Fatalf("TryAcquire() request %d denied, want allowed", i+1)
		}
	}

	allowed, err := limiter.TryAcquire(ctx, scope, 1)
	if err != nil {
		t.Fatalf("TryAcquire() unexpected error: %v", err)
	}
	if allowed {
		t.Fatal("TryAcquire() request 4 allowed, want denied")
	}
}

func TestMemoryLimiterRefillsAfterWindow(t *testing.T) {
	t.Parallel()

	limiter := NewMemoryLimiter()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	scope := Scope{Key: "network:external", LimitPerMinute: 1}
	ctx := context.Background()

	if allowed, _ := limiter.TryAcquire(ctx, scope, 1); !allowed {
		t.Fatal("first request denied, want allowed")
	}
	if allowed, _ := limiter.TryAcquire(ctx, scope, 1); allowed {
		t.Fatal("second request within window allowed, want denied")
	}

	now = now.Add(61 * time.Second)
	if allowed, _ := limiter.TryAcquire(ctx, scope, 1); !allowed {
		t.Fatal("request after window elapsed denied, want allowed")
	}
}

func TestMemoryLimiterScopesAreIndependent(t *testing.T) {
	t.Parallel()

	limiter := NewMemoryLimiter()
	ctx := context.Background()

	if allowed, _ := limiter.TryAcquire(ctx, Scope{Key: "a", LimitPerMinute: 1}, 1); !allowed {
		t.Fatal("scope a denied, want allowed")
	}
	if allowed, _ := limiter.TryAcquire(ctx, Scope{Key: "b", LimitPerMinute: 1}, 1); !allowed {
		t.Fatal("scope b denied, want allowed")
	}
}

func TestMemoryLimiterConcurrentAdmission(t *testing.T) {
	t.Parallel()

	limiter := NewMemoryLimiter()
	scope := Scope{Key: "network:external", LimitPerMinute: 50}

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0

	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			allowed, err := limiter.TryAcquire(context.Background(), scope, 1)
			if err != nil {
				t.Errorf("TryAcquire() unexpected error: %v", err)
				return
			}
			if allowed {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if admitted != 50 {
		t.Fatalf("admitted = %d, want exactly 50", admitted)
	}
}
