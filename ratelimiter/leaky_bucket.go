package ratelimiter

import (
	"context"
	"math"
	"time"
)

// LeakyBucketLimiter implements the "Leaky Bucket" rate-limiting algorithm.
//
// Each admission adds one unit of volume; the bucket drains at leakRate units
// per second between calls. A request is admitted while the post-leak volume
// is below the limit, which smooths traffic to the leak rate without the
// window-boundary bursts of counter strategies.
//
// The leak-and-add cycle is one atomic store script, symmetric to the token
// bucket requirement.
type LeakyBucketLimiter struct {
	store    Store
	limit    int64
	leakRate float64
	window   time.Duration
	now      func() time.Time
}

// NewLeakyBucket creates a new LeakyBucketLimiter instance.
//
// leakRate is units drained per second.
func NewLeakyBucket(store Store, limit int64, leakRate float64, window time.Duration) (Limiter, error) {
	return New(store, Config{
		Strategy: LeakyBucket,
		Window:   window,
		Limit:    limit,
		LeakRate: leakRate,
	})
}

func newLeakyBucket(store Store, cfg Config) *LeakyBucketLimiter {
	return &LeakyBucketLimiter{
		store:    store,
		limit:    cfg.Limit,
		leakRate: cfg.LeakRate,
		window:   cfg.Window,
		now:      time.Now,
	}
}

// Allow attempts to add one unit of volume for the key.
func (l *LeakyBucketLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	now := l.now()

	allowed, volume, err := l.store.AddVolume(ctx, "lb:"+key, l.limit, l.leakRate, l.window, now)
	if err != nil {
		return Decision{}, err
	}

	current := int64(math.Ceil(volume))

	return Decision{
		Allowed:   allowed,
		Limit:     l.limit,
		Current:   current,
		Remaining: int64(math.Max(0, float64(l.limit-current))),
		ResetTime: now.Add(l.window),
		TotalHits: current,
		Strategy:  LeakyBucket,
	}, nil
}
