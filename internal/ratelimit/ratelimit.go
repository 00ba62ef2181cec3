// Package ratelimit throttles resolve traffic per token prefix with a
// fixed window. The counter store is an interface so the process-local
// map (default) and the redis variant are interchangeable, and the clock
// is injected so tests control time.
package ratelimit

import (
	"context"
	"time"

	"agentvault/internal/platform/clock"
)

// Result reports one limiter decision. RetryAfter is how long the caller
// should back off; zero when allowed.
type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Store counts requests per key within a fixed window.
type Store interface {
	// Incr adds one request under key and returns the count within the
	// current window together with the time the window resets.
	Incr(ctx context.Context, key string, window time.Duration) (count int, resetAt time.Time, err error)
}

// Limiter applies a fixed limit per key per window.
type Limiter struct {
	store  Store
	window time.Duration
	clock  clock.Clock
}

func New(store Store, window time.Duration, clk clock.Clock) *Limiter {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Limiter{store: store, window: window, clock: clk}
}

// Check records one request for key and decides whether it fits under
// limit. On store failure the request is allowed: the limiter protects
// capacity, it must not become an availability dependency.
func (l *Limiter) Check(ctx context.Context, key string, limit int) Result {
	count, resetAt, err := l.store.Incr(ctx, key, l.window)
	if err != nil {
		return Result{Allowed: true}
	}
	if count > limit {
		retry := resetAt.Sub(l.clock.Now())
		if retry <= 0 {
			retry = time.Millisecond
		}
		return Result{Allowed: false, RetryAfter: retry}
	}
	return Result{Allowed: true, Remaining: limit - count}
}
