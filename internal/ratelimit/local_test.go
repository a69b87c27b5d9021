package ratelimit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestLocal(max int, window time.Duration) (*LocalLimiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := NewLocalLimiter(max, window)
	l.now = clock.now
	return l, clock
}

func TestLocalLimiter_BurstThenDeny(t *testing.T) {
	l, _ := newTestLocal(3, 15*time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := l.Allow(ctx, "ip")
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d", i)
		assert.Equal(t, 2-i, res.Remaining)
	}

	res, err := l.Allow(ctx, "ip")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.InDelta(t, float64(5*time.Minute), float64(res.RetryAfter), float64(time.Second))
}

func TestLocalLimiter_Refills(t *testing.T) {
	l, clock := newTestLocal(2, time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, _ := l.Allow(ctx, "ip")
		require.True(t, res.Allowed)
	}
	res, _ := l.Allow(ctx, "ip")
	require.False(t, res.Allowed)

	clock.t = clock.t.Add(31 * time.Second)
	res, _ = l.Allow(ctx, "ip")
	assert.True(t, res.Allowed)
}

func TestLocalLimiter_DeniedRequestsDoNotConsume(t *testing.T) {
	l, clock := newTestLocal(1, time.Minute)
	ctx := context.Background()

	res, _ := l.Allow(ctx, "ip")
	require.True(t, res.Allowed)
	for i := 0; i < 5; i++ {
		res, _ = l.Allow(ctx, "ip")
		require.False(t, res.Allowed)
	}

	clock.t = clock.t.Add(61 * time.Second)
	res, _ = l.Allow(ctx, "ip")
	assert.True(t, res.Allowed)
}

func TestLocalLimiter_PrunesIdleKeys(t *testing.T) {
	l, clock := newTestLocal(1, time.Minute)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, _ = l.Allow(ctx, fmt.Sprintf("ip-%d", i))
	}
	assert.Equal(t, 10, l.Len())

	clock.t = clock.t.Add(idleVisitorTTL + time.Minute)
	_, _ = l.Allow(ctx, "fresh")
	assert.Equal(t, 1, l.Len())
}
