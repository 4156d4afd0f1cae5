package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, "test:")
}

func TestRedisStore_AdmitAndThrottle(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()
	limit := Limit{Ceiling: 3, Window: time.Minute}
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		d, err := s.Admit(ctx, Write, limit, now.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
		require.True(t, d.Allowed, "admission %d", i+1)
	}

	d, err := s.Admit(ctx, Write, limit, now.Add(10*time.Second))
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 50*time.Second, d.Delay)

	count, err := s.Count(ctx, Write, limit, now.Add(10*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestRedisStore_SlotFreesAfterWindow(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()
	limit := Limit{Ceiling: 1, Window: time.Minute}
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	d, err := s.Admit(ctx, Read, limit, now)
	require.NoError(t, err)
	require.True(t, d.Allowed)

	d, err = s.Admit(ctx, Read, limit, now.Add(30*time.Second))
	require.NoError(t, err)
	require.False(t, d.Allowed)

	d, err = s.Admit(ctx, Read, limit, now.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestRedisStore_ClassesUseSeparateKeys(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()
	limit := Limit{Ceiling: 1, Window: time.Minute}
	now := time.Now()

	d, err := s.Admit(ctx, Write, limit, now)
	require.NoError(t, err)
	require.True(t, d.Allowed)

	d, err = s.Admit(ctx, Read, limit, now)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	require.NoError(t, s.Reset(ctx))
	count, err := s.Count(ctx, Write, limit, now)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestLimiter_WithRedisStore(t *testing.T) {
	s := newTestRedisStore(t)
	clock := newFakeClock()
	limits := Limits{
		Read:  Limit{Ceiling: 2, Window: time.Minute},
		Write: Limit{Ceiling: 2, Window: time.Minute},
	}

	// Two limiters sharing one store behave like one budget.
	a, err := New(limits, WithClock(clock.Now), WithStore(s))
	require.NoError(t, err)
	b, err := New(limits, WithClock(clock.Now), WithStore(s))
	require.NoError(t, err)
	ctx := context.Background()

	assert.True(t, a.Admit(ctx, Write).Allowed)
	clock.Advance(time.Millisecond)
	assert.True(t, b.Admit(ctx, Write).Allowed)
	clock.Advance(time.Millisecond)
	assert.False(t, a.Admit(ctx, Write).Allowed)
	assert.False(t, b.Admit(ctx, Write).Allowed)
}
