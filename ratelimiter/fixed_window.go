package ratelimiter

import (
	"context"
	"fmt"
	"math"
	"time"
)

// FixedWindowLimiter implements the "Fixed Window" rate-limiting algorithm.
//
// The window index is derived from the wall clock (floor(now/window)) and is
// part of the store key, so every window starts from a fresh counter that
// expires on its own. Simple and memory-efficient, but a client can burst up
// to 2x the limit across a window boundary; that is a documented
// characteristic of the strategy, not a bug.
//
// Example usage:
//
//	limiter, err := ratelimiter.NewFixedWindow(store, 100, time.Minute)
//	decision, err := limiter.Allow(ctx, "user:123")
//	if decision.Allowed {
//	    // process request
//	}
type FixedWindowLimiter struct {
	store  Store
	limit  int64
	window time.Duration
	now    func() time.Time
}

// NewFixedWindow creates a new FixedWindowLimiter instance.
//
// Parameters:
//   - store: a ratelimiter.Store implementation to persist request counts
//   - limit: maximum number of requests allowed per window; a non-positive
//     limit always denies
//   - window: duration of each fixed window
func NewFixedWindow(store Store, limit int64, window time.Duration) (Limiter, error) {
	return New(store, Config{Strategy: FixedWindow, Limit: limit, Window: window})
}

func newFixedWindow(store Store, cfg Config) *FixedWindowLimiter {
	return &FixedWindowLimiter{
		store:  store,
		limit:  cfg.Limit,
		window: cfg.Window,
		now:    time.Now,
	}
}

// Allow checks whether an operation with the given key fits in the current
// window. The increment and the TTL read happen as one atomic store call, so
// concurrent callers never lose an increment.
func (l *FixedWindowLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	now := l.now()
	windowIndex := now.UnixMilli() / l.window.Milliseconds()
	storeKey := fmt.Sprintf("fw:%s:%d", key, windowIndex)

	count, ttlRemaining, err := l.store.Increment(ctx, storeKey, l.window)
	if err != nil {
		return Decision{}, err
	}

	return Decision{
		Allowed:   count <= l.limit,
		Limit:     l.limit,
		Current:   count,
		Remaining: int64(math.Max(0, float64(l.limit-count))),
		ResetTime: now.Add(ttlRemaining),
		TotalHits: count,
		Strategy:  FixedWindow,
	}, nil
}
