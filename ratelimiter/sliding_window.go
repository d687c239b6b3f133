package ratelimiter

import (
	"context"
	"math"
	"time"
)

// SlidingWindowLimiter implements the "Sliding Window" rate-limiting algorithm.
//
// Every admitted operation is recorded as a timestamped entry in an ordered
// set; each check prunes entries older than now-window, inserts the current
// event and reads the cardinality as one atomic unit. The count is therefore
// exact for the trailing window, avoiding the boundary bursts of fixed
// windows at the cost of one set entry per operation.
//
// Example usage:
//
//	limiter, err := ratelimiter.NewSlidingWindow(store, 100, time.Minute)
//	decision, err := limiter.Allow(ctx, "user:123")
type SlidingWindowLimiter struct {
	store  Store
	limit  int64
	window time.Duration
	// precision is the configured sub-window count. The exact-count
	// algorithm does not use it; it is retained for approximated
	// implementations of the same contract.
	precision int
	now       func() time.Time
}

// NewSlidingWindow creates a new SlidingWindowLimiter instance.
func NewSlidingWindow(store Store, limit int64, window time.Duration) (Limiter, error) {
	return New(store, Config{Strategy: SlidingWindow, Limit: limit, Window: window})
}

func newSlidingWindow(store Store, cfg Config) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{
		store:     store,
		limit:     cfg.Limit,
		window:    cfg.Window,
		precision: cfg.Precision,
		now:       time.Now,
	}
}

// Allow records the current operation and checks the trailing-window count.
// The first-ever call for a key yields Current == 1.
func (l *SlidingWindowLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	now := l.now()

	count, err := l.store.SlidingCount(ctx, "sw:"+key, now, l.window)
	if err != nil {
		return Decision{}, err
	}

	return Decision{
		Allowed:   count <= l.limit,
		Limit:     l.limit,
		Current:   count,
		Remaining: int64(math.Max(0, float64(l.limit-count))),
		ResetTime: now.Add(l.window),
		TotalHits: count,
		Strategy:  SlidingWindow,
	}, nil
}
