package ratelimiter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSlidingWindowForTest(t *testing.T, store Store, clock *fakeClock, limit int64, window time.Duration) Limiter {
	t.Helper()
	l, err := NewSlidingWindow(store, limit, window)
	require.NoError(t, err)
	return withClock(l, clock)
}

func TestSlidingWindow_FirstCallCountsOne(t *testing.T) {
	clock := newFakeClock(baseTime)
	limiter := newSlidingWindowForTest(t, newStubStore(clock), clock, 3, time.Second)

	d, err := limiter.Allow(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(1), d.Current)
	assert.Equal(t, int64(2), d.Remaining)
}

func TestSlidingWindow_DeniesAcrossWindowMidpoint(t *testing.T) {
	clock := newFakeClock(baseTime)
	limiter := newSlidingWindowForTest(t, newStubStore(clock), clock, 3, time.Second)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := limiter.Allow(ctx, "k")
		require.NoError(t, err)
		require.True(t, d.Allowed)
	}

	// Half a window later the three events are still in the trailing window,
	// unlike a fixed window which would have reset at the boundary.
	clock.Advance(500 * time.Millisecond)
	d, err := limiter.Allow(ctx, "k")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, int64(4), d.Current)
}

func TestSlidingWindow_PrunesExpiredEntries(t *testing.T) {
	clock := newFakeClock(baseTime)
	limiter := newSlidingWindowForTest(t, newStubStore(clock), clock, 3, time.Second)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		limiter.Allow(ctx, "k")
	}
	clock.Advance(500 * time.Millisecond)
	limiter.Allow(ctx, "k") // denied, but still recorded

	clock.Advance(time.Second + 1*time.Millisecond)

	d, err := limiter.Allow(ctx, "k")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(1), d.Current)
}

func TestSlidingWindow_KeyIsolation(t *testing.T) {
	clock := newFakeClock(baseTime)
	limiter := newSlidingWindowForTest(t, newStubStore(clock), clock, 2, time.Second)
	ctx := context.Background()

	limiter.Allow(ctx, "user:a")
	limiter.Allow(ctx, "user:a")

	d, err := limiter.Allow(ctx, "user:b")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(1), d.Current)
}
