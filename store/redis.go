// Package store provides storage backends for the rate limiter.
//
// Supported backends:
//   - MemoryStore: in-memory store for tests and single-instance applications
//   - RedisStore: Redis-based store for distributed applications
//
// Stores implement the ratelimiter.Store interface, providing the atomic
// primitives behind the fixed window, sliding window, token bucket and leaky
// bucket strategies.
package store

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/limitgate/limitgate/ratelimiter"
)

// Reconnection backoff: base 100ms growing linearly per attempt, capped at
// 3s, abandoned after 10 consecutive failures.
const (
	reconnectBase     = 100 * time.Millisecond
	reconnectCap      = 3 * time.Second
	reconnectAttempts = 10
)

// defaultTimeout bounds a single store round trip. A slow Redis call must
// never stall the caller; on expiry the operation is treated as a store
// error and the policy fails open.
const defaultTimeout = time.Second

// Every operation is one Lua invocation so the read-modify-write cycle is
// atomic with respect to concurrent callers of the same key. Plain pipelines
// are only batched, not transactional, which would lose increments under
// real concurrency.
const (
	// incrementLua increments the window counter, arms the TTL on first use
	// and reports the remaining TTL in one call.
	incrementLua = `
		local current = redis.call("INCR", KEYS[1])
		if tonumber(current) == 1 then
			redis.call("PEXPIRE", KEYS[1], ARGV[1])
		end
		local ttl = redis.call("PTTL", KEYS[1])
		return {current, ttl}
	`

	// slidingLua prunes entries older than the trailing window, records the
	// current event and returns the resulting cardinality.
	slidingLua = `
		redis.call("ZREMRANGEBYSCORE", KEYS[1], 0, ARGV[1])
		redis.call("ZADD", KEYS[1], ARGV[2], ARGV[3])
		local count = redis.call("ZCARD", KEYS[1])
		redis.call("PEXPIRE", KEYS[1], ARGV[4])
		return count
	`

	// tokenBucketLua refills by whole elapsed periods, then consumes one
	// token when available.
	tokenBucketLua = `
		local capacity = tonumber(ARGV[1])
		local refill_rate = tonumber(ARGV[2])
		local refill_period = tonumber(ARGV[3])
		local now = tonumber(ARGV[4])

		local bucket = redis.call("HMGET", KEYS[1], "tokens", "last_refill")
		local tokens = tonumber(bucket[1]) or capacity
		local last_refill = tonumber(bucket[2]) or now

		if refill_period > 0 and refill_rate > 0 then
			local periods = math.floor((now - last_refill) / refill_period)
			if periods > 0 then
				tokens = math.min(capacity, tokens + periods * refill_rate)
			end
		end

		local allowed = 0
		if tokens > 0 then
			tokens = tokens - 1
			allowed = 1
		end

		redis.call("HSET", KEYS[1], "tokens", tokens, "last_refill", now)
		redis.call("PEXPIRE", KEYS[1], ARGV[5])

		return {allowed, tostring(tokens)}
	`

	// leakyBucketLua drains volume proportionally to elapsed time, then adds
	// one unit when below the limit.
	leakyBucketLua = `
		local limit = tonumber(ARGV[1])
		local leak_rate = tonumber(ARGV[2])
		local now = tonumber(ARGV[3])

		local bucket = redis.call("HMGET", KEYS[1], "volume", "last_leak")
		local volume = tonumber(bucket[1]) or 0
		local last_leak = tonumber(bucket[2]) or now

		local leaked = ((now - last_leak) / 1000) * leak_rate
		volume = math.max(0, volume - leaked)

		local allowed = 0
		if volume < limit then
			volume = volume + 1
			allowed = 1
		end

		redis.call("HSET", KEYS[1], "volume", volume, "last_leak", now)
		redis.call("PEXPIRE", KEYS[1], ARGV[4])

		return {allowed, tostring(volume)}
	`
)

// RedisStore implements ratelimiter.Store on a shared Redis connection.
//
// All strategies and all keys multiplex over the one pooled client; no
// operation holds the connection exclusively. Scripts are compiled into
// handles once at construction and executed via EVALSHA. Operations fail
// fast, with no retry inside a single decision, and surface classified
// ratelimiter.StoreError values that policies turn into fail-open admissions.
type RedisStore struct {
	client  *redis.Client
	prefix  string
	timeout time.Duration

	incrementScript   *redis.Script
	slidingScript     *redis.Script
	tokenBucketScript *redis.Script
	leakyBucketScript *redis.Script

	// probeMu serializes reconnect probes so concurrent callers hitting a
	// dead connection do not produce a thundering herd of pings.
	probeMu sync.Mutex
	probing bool
}

// StoreOption configures a RedisStore.
type StoreOption func(*RedisStore)

// WithPrefix sets the key prefix. Default "rl:".
func WithPrefix(prefix string) StoreOption {
	return func(s *RedisStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithTimeout bounds each store round trip. Default one second; pass 0 to
// rely solely on the caller's context.
func WithTimeout(d time.Duration) StoreOption {
	return func(s *RedisStore) {
		s.timeout = d
	}
}

// NewRedis creates a RedisStore on an existing client. The client's own
// retry settings are left untouched; use Dial to get fail-fast semantics
// from a URL.
func NewRedis(client *redis.Client, opts ...StoreOption) *RedisStore {
	s := &RedisStore{
		client:            client,
		prefix:            "rl:",
		timeout:           defaultTimeout,
		incrementScript:   redis.NewScript(incrementLua),
		slidingScript:     redis.NewScript(slidingLua),
		tokenBucketScript: redis.NewScript(tokenBucketLua),
		leakyBucketScript: redis.NewScript(leakyBucketLua),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dial connects to the Redis URL with bounded exponential backoff and returns
// a ready store. Per-command retries are disabled so a store failure inside a
// decision fails fast instead of stalling the caller; reconnection is handled
// by the connection pool and the store's own serialized probe.
//
// Dial gives up after 10 consecutive ping failures and returns a
// connection-kind StoreError instead of retrying forever.
func Dial(ctx context.Context, url string, opts ...StoreOption) (*RedisStore, error) {
	redisOpts, err := redis.ParseURL(url)
	if err != nil {
		return nil, &ratelimiter.StoreError{Kind: ratelimiter.StoreErrorConnection, Op: "dial", Err: err}
	}
	redisOpts.MaxRetries = -1

	client := redis.NewClient(redisOpts)
	s := NewRedis(client, opts...)

	var lastErr error
	for attempt := 1; attempt <= reconnectAttempts; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, reconnectCap)
		lastErr = client.Ping(pingCtx).Err()
		cancel()
		if lastErr == nil {
			return s, nil
		}

		backoff := time.Duration(attempt) * reconnectBase
		if backoff > reconnectCap {
			backoff = reconnectCap
		}
		select {
		case <-ctx.Done():
			client.Close()
			return nil, &ratelimiter.StoreError{Kind: ratelimiter.StoreErrorConnection, Op: "dial", Err: ctx.Err()}
		case <-time.After(backoff):
		}
	}

	client.Close()
	return nil, &ratelimiter.StoreError{Kind: ratelimiter.StoreErrorConnection, Op: "dial", Err: lastErr}
}

// Shutdown closes the underlying client. Hosts should call this from their
// own lifecycle management rather than relying on process signal handlers.
func (s *RedisStore) Shutdown(ctx context.Context) error {
	return s.client.Close()
}

// Increment implements ratelimiter.Store.
func (s *RedisStore) Increment(ctx context.Context, key string, ttl time.Duration) (int64, time.Duration, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	res, err := s.incrementScript.Run(ctx, s.client, []string{s.prefix + key}, ttl.Milliseconds()).Result()
	if err != nil {
		return 0, 0, s.fail("increment", err)
	}

	values, ok := res.([]interface{})
	if !ok || len(values) != 2 {
		return 0, 0, &ratelimiter.StoreError{Kind: ratelimiter.StoreErrorOperation, Op: "increment", Err: errInvalidReply}
	}

	count, _ := values[0].(int64)
	ttlMillis, _ := values[1].(int64)
	ttlRemaining := ttl
	if ttlMillis >= 0 {
		ttlRemaining = time.Duration(ttlMillis) * time.Millisecond
	}
	return count, ttlRemaining, nil
}

// SlidingCount implements ratelimiter.Store. Each inserted member carries a
// random suffix so two events in the same millisecond never collide.
func (s *RedisStore) SlidingCount(ctx context.Context, key string, now time.Time, window time.Duration) (int64, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	nowMs := now.UnixMilli()
	clearBefore := nowMs - window.Milliseconds()
	member := strconv.FormatInt(nowMs, 10) + "-" + strconv.FormatInt(rand.Int63(), 36)

	res, err := s.slidingScript.Run(ctx, s.client, []string{s.prefix + key},
		clearBefore, nowMs, member, window.Milliseconds(),
	).Result()
	if err != nil {
		return 0, s.fail("sliding_count", err)
	}

	count, ok := res.(int64)
	if !ok {
		return 0, &ratelimiter.StoreError{Kind: ratelimiter.StoreErrorOperation, Op: "sliding_count", Err: errInvalidReply}
	}
	return count, nil
}

// TakeToken implements ratelimiter.Store.
func (s *RedisStore) TakeToken(ctx context.Context, key string, capacity, refillRate float64, refillPeriod, ttl time.Duration, now time.Time) (bool, float64, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	res, err := s.tokenBucketScript.Run(ctx, s.client, []string{s.prefix + key},
		capacity, refillRate, refillPeriod.Milliseconds(), now.UnixMilli(), ttl.Milliseconds(),
	).Result()
	if err != nil {
		return false, 0, s.fail("take_token", err)
	}

	allowed, value, err := parseBucketReply("take_token", res)
	if err != nil {
		return false, 0, err
	}
	return allowed, value, nil
}

// AddVolume implements ratelimiter.Store.
func (s *RedisStore) AddVolume(ctx context.Context, key string, limit int64, leakRate float64, ttl time.Duration, now time.Time) (bool, float64, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	res, err := s.leakyBucketScript.Run(ctx, s.client, []string{s.prefix + key},
		limit, leakRate, now.UnixMilli(), ttl.Milliseconds(),
	).Result()
	if err != nil {
		return false, 0, s.fail("add_volume", err)
	}

	allowed, value, err := parseBucketReply("add_volume", res)
	if err != nil {
		return false, 0, err
	}
	return allowed, value, nil
}

var errInvalidReply = errors.New("invalid script reply format")

// parseBucketReply decodes the {allowed, value} pair returned by the bucket
// scripts. The value comes back as a string because Lua truncates floats in
// integer replies.
func parseBucketReply(op string, res interface{}) (bool, float64, error) {
	values, ok := res.([]interface{})
	if !ok || len(values) != 2 {
		return false, 0, &ratelimiter.StoreError{Kind: ratelimiter.StoreErrorOperation, Op: op, Err: errInvalidReply}
	}

	allowed, _ := values[0].(int64)
	raw, _ := values[1].(string)
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return false, 0, &ratelimiter.StoreError{Kind: ratelimiter.StoreErrorOperation, Op: op, Err: err}
	}
	return allowed == 1, value, nil
}

// opContext applies the per-operation timeout on top of the caller's context.
func (s *RedisStore) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// fail classifies err, kicks a reconnect probe for transport failures, and
// wraps the error for the degradation policy.
func (s *RedisStore) fail(op string, err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) {
		kind := ratelimiter.StoreErrorConnection
		if netErr.Timeout() {
			kind = ratelimiter.StoreErrorTimeout
		}
		s.probeAsync()
		return &ratelimiter.StoreError{Kind: kind, Op: op, Err: err}
	}
	return ratelimiter.NewStoreError(op, err)
}

// probeAsync starts a background reconnect probe unless one is already in
// flight. The probe pings with the same bounded backoff as Dial; go-redis
// re-establishes pooled connections on a successful ping.
func (s *RedisStore) probeAsync() {
	s.probeMu.Lock()
	if s.probing {
		s.probeMu.Unlock()
		return
	}
	s.probing = true
	s.probeMu.Unlock()

	go func() {
		defer func() {
			s.probeMu.Lock()
			s.probing = false
			s.probeMu.Unlock()
		}()

		for attempt := 1; attempt <= reconnectAttempts; attempt++ {
			ctx, cancel := context.WithTimeout(context.Background(), reconnectCap)
			err := s.client.Ping(ctx).Err()
			cancel()
			if err == nil {
				return
			}

			backoff := time.Duration(attempt) * reconnectBase
			if backoff > reconnectCap {
				backoff = reconnectCap
			}
			time.Sleep(backoff)
		}
	}()
}
