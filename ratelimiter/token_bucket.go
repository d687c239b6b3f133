package ratelimiter

import (
	"context"
	"math"
	"time"
)

// TokenBucketLimiter implements the "Token Bucket" rate-limiting algorithm.
//
// The bucket starts full at capacity, each admission consumes one token, and
// whole refill periods elapsed since the last update add refillRate tokens up
// to capacity. Bursts up to the capacity are admitted immediately while the
// long-term rate converges on refillRate per period.
//
// The refill-and-consume cycle runs as a single atomic store script; splitting
// the read and the write across two round trips would lose updates under
// concurrency.
//
// Example usage:
//
//	limiter, err := ratelimiter.New(store, ratelimiter.Config{
//	    Strategy:     ratelimiter.TokenBucket,
//	    Window:       time.Minute,
//	    Limit:        100,
//	    Capacity:     120,
//	    RefillRate:   100.0 / 60,
//	    RefillPeriod: time.Second,
//	})
type TokenBucketLimiter struct {
	store        Store
	capacity     int64
	refillRate   float64
	refillPeriod time.Duration
	window       time.Duration
	now          func() time.Time
}

// NewTokenBucket creates a new TokenBucketLimiter instance.
//
// rate is tokens added per refillPeriod; a non-positive rate is accepted and
// degenerates to a fixed ceiling that never refills.
func NewTokenBucket(store Store, capacity int64, rate float64, refillPeriod, window time.Duration) (Limiter, error) {
	return New(store, Config{
		Strategy:     TokenBucket,
		Window:       window,
		Limit:        capacity,
		Capacity:     capacity,
		RefillRate:   rate,
		RefillPeriod: refillPeriod,
	})
}

func newTokenBucket(store Store, cfg Config) *TokenBucketLimiter {
	return &TokenBucketLimiter{
		store:        store,
		capacity:     cfg.Capacity,
		refillRate:   cfg.RefillRate,
		refillPeriod: cfg.RefillPeriod,
		window:       cfg.Window,
		now:          time.Now,
	}
}

// Allow attempts to consume one token for the key.
func (l *TokenBucketLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	now := l.now()

	allowed, tokens, err := l.store.TakeToken(
		ctx, "tb:"+key, float64(l.capacity), l.refillRate, l.refillPeriod, l.window, now,
	)
	if err != nil {
		return Decision{}, err
	}

	remaining := int64(math.Floor(tokens))
	if remaining < 0 {
		remaining = 0
	}
	current := l.capacity - remaining

	return Decision{
		Allowed:   allowed,
		Limit:     l.capacity,
		Current:   current,
		Remaining: remaining,
		ResetTime: now.Add(l.window),
		TotalHits: current,
		Strategy:  TokenBucket,
	}, nil
}
