package ratelimiter

import (
	"context"
	"sync"
	"time"
)

// fakeClock is a manually advanced clock shared between engines and the stub
// store so time-dependent behavior is deterministic.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{t: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type stubCounter struct {
	count     int64
	expiresAt time.Time
}

type stubBucket struct {
	tokens       float64
	lastRefillMs int64
}

type stubVolume struct {
	volume     float64
	lastLeakMs int64
}

// stubStore is an in-memory Store honoring the caller-supplied clock, with
// optional error injection for degradation tests.
type stubStore struct {
	mu       sync.Mutex
	clock    *fakeClock
	err      error
	counters map[string]stubCounter
	events   map[string][]int64
	buckets  map[string]stubBucket
	volumes  map[string]stubVolume
}

func newStubStore(clock *fakeClock) *stubStore {
	return &stubStore{
		clock:    clock,
		counters: make(map[string]stubCounter),
		events:   make(map[string][]int64),
		buckets:  make(map[string]stubBucket),
		volumes:  make(map[string]stubVolume),
	}
}

var _ Store = (*stubStore)(nil)

func (s *stubStore) Increment(ctx context.Context, key string, ttl time.Duration) (int64, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, 0, s.err
	}

	now := s.clock.Now()
	e, found := s.counters[key]
	if found && now.After(e.expiresAt) {
		found = false
	}
	if !found {
		e = stubCounter{count: 1, expiresAt: now.Add(ttl)}
	} else {
		e.count++
	}
	s.counters[key] = e
	return e.count, e.expiresAt.Sub(now), nil
}

func (s *stubStore) SlidingCount(ctx context.Context, key string, now time.Time, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}

	nowMs := now.UnixMilli()
	clearBefore := nowMs - window.Milliseconds()
	kept := s.events[key][:0]
	for _, t := range s.events[key] {
		if t >= clearBefore {
			kept = append(kept, t)
		}
	}
	s.events[key] = append(kept, nowMs)
	return int64(len(s.events[key])), nil
}

func (s *stubStore) TakeToken(ctx context.Context, key string, capacity, refillRate float64, refillPeriod, ttl time.Duration, now time.Time) (bool, float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, 0, s.err
	}

	nowMs := now.UnixMilli()
	e, found := s.buckets[key]
	if !found {
		e = stubBucket{tokens: capacity, lastRefillMs: nowMs}
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
	s.buckets[key] = e
	return allowed, e.tokens, nil
}

func (s *stubStore) AddVolume(ctx context.Context, key string, limit int64, leakRate float64, ttl time.Duration, now time.Time) (bool, float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, 0, s.err
	}

	nowMs := now.UnixMilli()
	e, found := s.volumes[key]
	if !found {
		e = stubVolume{volume: 0, lastLeakMs: nowMs}
	}
	e.volume -= float64(nowMs-e.lastLeakMs) / 1000 * leakRate
	if e.volume < 0 {
		e.volume = 0
	}
	allowed := false
	if e.volume < float64(limit) {
		e.volume++
		allowed = true
	}
	e.lastLeakMs = nowMs
	s.volumes[key] = e
	return allowed, e.volume, nil
}

func (s *stubStore) failWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// withClock rewires a limiter built by New to the fake clock.
func withClock(l Limiter, clock *fakeClock) Limiter {
	switch v := l.(type) {
	case *FixedWindowLimiter:
		v.now = clock.Now
	case *SlidingWindowLimiter:
		v.now = clock.Now
	case *TokenBucketLimiter:
		v.now = clock.Now
	case *LeakyBucketLimiter:
		v.now = clock.Now
	}
	return l
}
