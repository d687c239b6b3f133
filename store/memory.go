package store

import (
	"context"
	"sync"
	"time"

	"github.com/limitgate/limitgate/ratelimiter"
)

// counterEntry holds a fixed window counter and its expiry.
type counterEntry struct {
	count     int64
	expiresAt time.Time
}

// eventSetEntry holds sliding window event timestamps (unix ms, ascending).
type eventSetEntry struct {
	times     []int64
	expiresAt time.Time
}

// tokenBucketEntry holds token bucket state.
type tokenBucketEntry struct {
	tokens       float64
	lastRefillMs int64
	expiresAt    time.Time
}

// leakyBucketEntry holds leaky bucket state.
type leakyBucketEntry struct {
	volume     float64
	lastLeakMs int64
	expiresAt  time.Time
}

// MemoryStore is an in-memory implementation of ratelimiter.Store.
//
// A single mutex makes every operation atomic, which is exactly the property
// the strategy engines delegate to the store. State is process-local, so this
// backend is suitable for tests and single-instance deployments only; it does
// not enforce a global limit across replicas.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]counterEntry
	events   map[string]eventSetEntry
	buckets  map[string]tokenBucketEntry
	volumes  map[string]leakyBucketEntry
}

// NewMemory creates a new MemoryStore.
//
// ctx bounds the lifecycle of the background cleanup goroutine.
// cleanupInterval is how often expired entries are removed; pass 0 to disable
// cleanup (stale entries are then reset lazily on access).
func NewMemory(ctx context.Context, cleanupInterval time.Duration) *MemoryStore {
	s := &MemoryStore{
		counters: make(map[string]counterEntry),
		events:   make(map[string]eventSetEntry),
		buckets:  make(map[string]tokenBucketEntry),
		volumes:  make(map[string]leakyBucketEntry),
	}

	if cleanupInterval > 0 {
		go s.runCleanup(ctx, cleanupInterval)
	}

	return s
}

var _ ratelimiter.Store = (*MemoryStore)(nil)

// Increment implements ratelimiter.Store.
func (s *MemoryStore) Increment(ctx context.Context, key string, ttl time.Duration) (int64, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	e, found := s.counters[key]
	if found && now.After(e.expiresAt) {
		found = false
	}

	if !found {
		e = counterEntry{count: 1, expiresAt: now.Add(ttl)}
	} else {
		e.count++
	}
	s.counters[key] = e

	return e.count, e.expiresAt.Sub(now), nil
}

// SlidingCount implements ratelimiter.Store.
func (s *MemoryStore) SlidingCount(ctx context.Context, key string, now time.Time, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nowMs := now.UnixMilli()
	clearBefore := nowMs - window.Milliseconds()

	e := s.events[key]
	kept := e.times[:0]
	for _, t := range e.times {
		if t >= clearBefore {
			kept = append(kept, t)
		}
	}
	e.times = append(kept, nowMs)
	e.expiresAt = now.Add(window)
	s.events[key] = e

	return int64(len(e.times)), nil
}

// TakeToken implements ratelimiter.Store.
func (s *MemoryStore) TakeToken(ctx context.Context, key string, capacity, refillRate float64, refillPeriod, ttl time.Duration, now time.Time) (bool, float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nowMs := now.UnixMilli()
	e, found := s.buckets[key]
	if !found {
		e = tokenBucketEntry{tokens: capacity, lastRefillMs: nowMs}
	}

	if refillPeriod > 0 && refillRate > 0 {
		periods := (nowMs - e.lastRefillMs) / refillPeriod.Milliseconds()
		if periods > 0 {
			e.tokens += float64(periods) * refillRate
			if e.tokens > capacity {
				e.tokens = capacity
			}
		}
	}

	allowed := false
	if e.tokens > 0 {
		e.tokens--
		allowed = true
	}

	e.lastRefillMs = nowMs
	e.expiresAt = now.Add(ttl)
	s.buckets[key] = e

	return allowed, e.tokens, nil
}

// AddVolume implements ratelimiter.Store.
func (s *MemoryStore) AddVolume(ctx context.Context, key string, limit int64, leakRate float64, ttl time.Duration, now time.Time) (bool, float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nowMs := now.UnixMilli()
	e, found := s.volumes[key]
	if !found {
		e = leakyBucketEntry{volume: 0, lastLeakMs: nowMs}
	}

	leaked := float64(nowMs-e.lastLeakMs) / 1000 * leakRate
	e.volume -= leaked
	if e.volume < 0 {
		e.volume = 0
	}

	allowed := false
	if e.volume < float64(limit) {
		e.volume++
		allowed = true
	}

	e.lastLeakMs = nowMs
	e.expiresAt = now.Add(ttl)
	s.volumes[key] = e

	return allowed, e.volume, nil
}

// runCleanup periodically removes expired entries until ctx is cancelled.
func (s *MemoryStore) runCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cleanup(time.Now())
		}
	}
}

func (s *MemoryStore) cleanup(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, e := range s.counters {
		if now.After(e.expiresAt) {
			delete(s.counters, k)
		}
	}
	for k, e := range s.events {
		if now.After(e.expiresAt) {
			delete(s.events, k)
		}
	}
	for k, e := range s.buckets {
		if now.After(e.expiresAt) {
			delete(s.buckets, k)
		}
	}
	for k, e := range s.volumes {
		if now.After(e.expiresAt) {
			delete(s.volumes, k)
		}
	}
}
