package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/limitgate/limitgate/ratelimiter"
)

var memBase = time.UnixMilli(1_700_000_000_000)

func TestMemoryStore_IncrementCountsAndKeepsTTL(t *testing.T) {
	s := NewMemory(context.Background(), 0)
	ctx := context.Background()

	count, ttl, err := s.Increment(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.InDelta(t, time.Minute, ttl, float64(time.Second))

	count, _, err = s.Increment(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestMemoryStore_IncrementIsolatesKeys(t *testing.T) {
	s := NewMemory(context.Background(), 0)
	ctx := context.Background()

	s.Increment(ctx, "a", time.Minute)
	s.Increment(ctx, "a", time.Minute)
	count, _, err := s.Increment(ctx, "b", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestMemoryStore_SlidingCountPrunesOldEvents(t *testing.T) {
	s := NewMemory(context.Background(), 0)
	ctx := context.Background()
	window := time.Second

	count, err := s.SlidingCount(ctx, "k", memBase, window)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	count, err = s.SlidingCount(ctx, "k", memBase.Add(500*time.Millisecond), window)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	// Both earlier events have aged out of the window by now.
	count, err = s.SlidingCount(ctx, "k", memBase.Add(2*time.Second), window)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestMemoryStore_TakeTokenRefillsWholePeriods(t *testing.T) {
	s := NewMemory(context.Background(), 0)
	ctx := context.Background()

	// Drain a bucket of capacity 2.
	for i := 0; i < 2; i++ {
		allowed, _, err := s.TakeToken(ctx, "k", 2, 1, time.Second, time.Minute, memBase)
		require.NoError(t, err)
		assert.True(t, allowed)
	}
	allowed, tokens, err := s.TakeToken(ctx, "k", 2, 1, time.Second, time.Minute, memBase)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, 0.0, tokens)

	// Half a period elapsed is not a refill.
	allowed, _, err = s.TakeToken(ctx, "k", 2, 1, time.Second, time.Minute, memBase.Add(500*time.Millisecond))
	require.NoError(t, err)
	assert.False(t, allowed)

	// A full period past the last touch refills one token.
	allowed, tokens, err = s.TakeToken(ctx, "k", 2, 1, time.Second, time.Minute, memBase.Add(1500*time.Millisecond))
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, 0.0, tokens)
}

func TestMemoryStore_TakeTokenRefillCapsAtCapacity(t *testing.T) {
	s := NewMemory(context.Background(), 0)
	ctx := context.Background()

	s.TakeToken(ctx, "k", 3, 1, time.Second, time.Minute, memBase)

	// A long idle stretch refills to capacity, never beyond.
	_, tokens, err := s.TakeToken(ctx, "k", 3, 1, time.Second, time.Minute, memBase.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2.0, tokens)
}

func TestMemoryStore_AddVolumeLeaksOverTime(t *testing.T) {
	s := NewMemory(context.Background(), 0)
	ctx := context.Background()

	// Fill a bucket of limit 2, leak rate 1/s.
	for i := 0; i < 2; i++ {
		allowed, _, err := s.AddVolume(ctx, "k", 2, 1, time.Minute, memBase)
		require.NoError(t, err)
		assert.True(t, allowed)
	}
	allowed, volume, err := s.AddVolume(ctx, "k", 2, 1, time.Minute, memBase)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, 2.0, volume)

	// One second later a full slot has leaked out.
	allowed, _, err = s.AddVolume(ctx, "k", 2, 1, time.Minute, memBase.Add(time.Second))
	require.NoError(t, err)
	assert.True(t, allowed)

	// Volume never goes negative no matter how long the idle stretch.
	_, volume, err = s.AddVolume(ctx, "k", 2, 1, time.Minute, memBase.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1.0, volume)
}

func TestMemoryStore_ConcurrentIncrementAdmitsExactlyLimit(t *testing.T) {
	s := NewMemory(context.Background(), 0)
	limiter, err := ratelimiter.NewFixedWindow(s, 10, time.Hour)
	require.NoError(t, err)

	const workers = 50
	var admitted int64
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := limiter.Allow(context.Background(), "shared")
			if err != nil {
				return
			}
			if d.Allowed {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(10), admitted)
}

func TestMemoryStore_CleanupRemovesExpiredEntries(t *testing.T) {
	s := NewMemory(context.Background(), 0)
	ctx := context.Background()

	s.Increment(ctx, "short", time.Millisecond)
	s.Increment(ctx, "long", time.Hour)
	s.SlidingCount(ctx, "events", time.Now(), time.Millisecond)

	s.cleanup(time.Now().Add(time.Second))

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.NotContains(t, s.counters, "short")
	assert.Contains(t, s.counters, "long")
	assert.NotContains(t, s.events, "events")
}
