package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentvault/internal/platform/clock"
)

func TestLimitThenDeny(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	limiter := New(NewMemoryStore(clk), time.Minute, clk)
	ctx := context.Background()

	const limit = 5
	for i := 0; i < limit; i++ {
		res := limiter.Check(ctx, "avt_abcd1234", limit)
		require.True(t, res.Allowed, "request %d should be allowed", i+1)
		assert.Equal(t, limit-i-1, res.Remaining)
	}

	// The (N+1)-th call within the window is denied with a positive
	// retry hint.
	res := limiter.Check(ctx, "avt_abcd1234", limit)
	require.False(t, res.Allowed)
	assert.Greater(t, res.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, res.RetryAfter, time.Minute)
}

func TestWindowReset(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	limiter := New(NewMemoryStore(clk), time.Minute, clk)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		limiter.Check(ctx, "k", 3)
	}
	require.False(t, limiter.Check(ctx, "k", 3).Allowed)

	clk.Advance(61 * time.Second)
	res := limiter.Check(ctx, "k", 3)
	assert.True(t, res.Allowed)
	assert.Equal(t, 2, res.Remaining)
}

func TestKeysAreIndependent(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	limiter := New(NewMemoryStore(clk), time.Minute, clk)
	ctx := context.Background()

	limiter.Check(ctx, "a", 1)
	require.False(t, limiter.Check(ctx, "a", 1).Allowed)
	assert.True(t, limiter.Check(ctx, "b", 1).Allowed)
}

func TestRetryAfterShrinksAsWindowElapses(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	limiter := New(NewMemoryStore(clk), time.Minute, clk)
	ctx := context.Background()

	limiter.Check(ctx, "k", 1)
	first := limiter.Check(ctx, "k", 1)
	require.False(t, first.Allowed)

	clk.Advance(45 * time.Second)
	later := limiter.Check(ctx, "k", 1)
	require.False(t, later.Allowed)
	assert.Less(t, later.RetryAfter, first.RetryAfter)
}

type failingStore struct{}

func (failingStore) Incr(context.Context, string, time.Duration) (int, time.Time, error) {
	return 0, time.Time{}, errors.New("store down")
}

func TestStoreFailureFailsOpen(t *testing.T) {
	limiter := New(failingStore{}, time.Minute, nil)
	res := limiter.Check(context.Background(), "k", 1)
	assert.True(t, res.Allowed)
}

func TestMemoryStoreReset(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	store := NewMemoryStore(clk)
	ctx := context.Background()

	count, _, err := store.Incr(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, store.Reset(ctx, "k"))
	count, _, err = store.Incr(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
