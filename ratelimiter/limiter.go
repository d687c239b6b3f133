// Package ratelimiter provides distributed rate-limiting strategies and the
// policy machinery to apply them.
//
// It includes four algorithms (Fixed Window, Sliding Window, Token Bucket and
// Leaky Bucket) over pluggable storage backends, key generators that partition
// the counter space per client, and a Policy binder that turns a strategy, a
// key generator and a set of thresholds into a reusable named limiter with
// fail-open degradation when the backing store is unreachable.
//
// The package defines four core abstractions:
//   - Limiter: the rate-limiting algorithm interface (e.g., FixedWindowLimiter, TokenBucketLimiter)
//   - Store: backend interface providing the atomic primitives the algorithms need
//   - Decision: the outcome of a rate limit check, useful for HTTP headers
//   - Policy: a named binding of strategy + key generator + options, with fail-open handling
package ratelimiter

import (
	"context"
	"time"
)

// Strategy identifies a rate-limiting algorithm.
type Strategy string

const (
	// FixedWindow counts operations per fixed window index. Simple and cheap,
	// but permits up to 2x the limit across a window boundary.
	FixedWindow Strategy = "fixed-window"
	// SlidingWindow counts operations in the trailing window exactly, using a
	// sorted set of event timestamps.
	SlidingWindow Strategy = "sliding-window"
	// TokenBucket admits bursts up to a capacity while refilling tokens at a
	// steady rate.
	TokenBucket Strategy = "token-bucket"
	// LeakyBucket drains admitted volume at a steady leak rate, smoothing
	// traffic without boundary bursts.
	LeakyBucket Strategy = "leaky-bucket"
)

// Decision contains the outcome of a rate limit check.
//
// It provides the data needed to populate standard rate-limiting HTTP headers
// such as `X-RateLimit-Limit`, `X-RateLimit-Remaining`, and `X-RateLimit-Reset`.
type Decision struct {
	// Allowed indicates whether the request is permitted.
	Allowed bool
	// Degraded is true when the decision was synthesized because the backing
	// store was unreachable (fail-open admission).
	Degraded bool
	// Limit is the maximum number of operations admitted per window.
	Limit int64
	// Current is the number of operations counted against the window,
	// including this one.
	Current int64
	// Remaining is max(0, Limit-Current).
	Remaining int64
	// ResetTime is when the current window or bucket is expected to reset.
	ResetTime time.Time
	// TotalHits mirrors Current; kept separate for callers that report raw
	// hit counts independently of admission accounting.
	TotalHits int64
	// Strategy is the algorithm that produced this decision.
	Strategy Strategy
}

// RetryAfter returns the suggested wait before retrying, measured from now.
// It is at least one second so Retry-After headers never round down to zero.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	wait := d.ResetTime.Sub(now)
	if wait < time.Second {
		wait = time.Second
	}
	return wait
}

// Limiter defines the interface for rate-limiting algorithms.
//
// Policies and middleware interact with Limiter to enforce limits on requests.
// Implementations include Fixed Window, Sliding Window, Token Bucket and
// Leaky Bucket. Implementations hold no locks of their own; correctness for
// concurrent calls on the same key is delegated to the atomicity of the Store.
type Limiter interface {
	// Allow checks if an operation is permitted for a given key.
	//
	// Parameters:
	//   - ctx: context for cancellation and timeouts
	//   - key: unique identifier for the client (e.g., "ip:10.0.0.1")
	//
	// Returns the Decision and any store error. Store errors are expected to
	// be handled by the caller's degradation policy (see Policy).
	Allow(ctx context.Context, key string) (Decision, error)
}

// Store defines the atomic primitives the strategy engines require from a
// shared counter store.
//
// Each method must execute as a single atomic unit with respect to other
// callers of the same key, via a single server-side script or an equivalent
// transaction, so concurrent callers never observe a lost update. Each method
// performs at most one network round trip and must fail fast on error rather
// than retrying internally.
type Store interface {
	// Increment atomically increments the counter for a key, creating it with
	// the given TTL on first use, and returns the new count together with the
	// remaining TTL.
	Increment(ctx context.Context, key string, ttl time.Duration) (count int64, ttlRemaining time.Duration, err error)

	// SlidingCount atomically prunes entries older than now-window from the
	// key's ordered set, inserts an entry for now, and returns the resulting
	// cardinality. The set expires after window so abandoned keys self-clean.
	SlidingCount(ctx context.Context, key string, now time.Time, window time.Duration) (count int64, err error)

	// TakeToken atomically refills the key's token bucket proportionally to
	// the time elapsed since the last refill and consumes one token when
	// available. It returns whether a token was taken and the balance left.
	TakeToken(ctx context.Context, key string, capacity float64, refillRate float64, refillPeriod time.Duration, ttl time.Duration, now time.Time) (allowed bool, tokens float64, err error)

	// AddVolume atomically leaks the key's bucket proportionally to the time
	// elapsed since the last leak and adds one unit of volume when the bucket
	// is below limit. It returns whether the unit was added and the resulting
	// volume.
	AddVolume(ctx context.Context, key string, limit int64, leakRate float64, ttl time.Duration, now time.Time) (allowed bool, volume float64, err error)
}
