package ratelimit_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/ratelimit"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type brokenStore struct{}

func (brokenStore) Record(context.Context, string, string, time.Time, time.Duration) (int64, error) {
	return 0, errors.New("connection refused")
}
func (brokenStore) Remove(context.Context, string, string) error { return errors.New("connection refused") }
func (brokenStore) Reset(context.Context, string) error          { return errors.New("connection refused") }

func TestNewSlidingWindow(t *testing.T) {
	t.Parallel()

	_, err := ratelimit.NewSlidingWindow(nil)
	assert.ErrorIs(t, err, ratelimit.ErrStoreRequired)

	sw, err := ratelimit.NewSlidingWindow(ratelimit.NewMemoryStore())
	require.NoError(t, err)
	assert.NotNil(t, sw)
}

func TestSlidingWindow_Check(t *testing.T) {
	t.Parallel()

	rule := ratelimit.Rule{Window: 60 * time.Second, MaxRequests: 3}

	t.Run("fourth request in window is denied", func(t *testing.T) {
		t.Parallel()
		clock := newFakeClock()
		sw, err := ratelimit.NewSlidingWindow(ratelimit.NewMemoryStore(), ratelimit.WithClock(clock.Now))
		require.NoError(t, err)
		ctx := context.Background()

		for i := range 3 {
			res, err := sw.Check(ctx, "k", rule)
			require.NoError(t, err)
			assert.True(t, res.Allowed, "request %d", i+1)
			assert.Equal(t, 2-i, res.Remaining)
			assert.Equal(t, i+1, res.TotalHits)
			assert.Equal(t, clock.Now().Add(time.Minute), res.ResetAt)
			clock.Advance(time.Second)
		}

		res, err := sw.Check(ctx, "k", rule)
		require.NoError(t, err)
		assert.False(t, res.Allowed)
		assert.Equal(t, 0, res.Remaining)
		assert.Equal(t, 4, res.TotalHits)

		// Denied requests are taken back, so the count stays at three.
		res, err = sw.Check(ctx, "k", rule)
		require.NoError(t, err)
		assert.False(t, res.Allowed)
		assert.Equal(t, 4, res.TotalHits)
	})

	t.Run("allowed again after window elapses", func(t *testing.T) {
		t.Parallel()
		clock := newFakeClock()
		sw, err := ratelimit.NewSlidingWindow(ratelimit.NewMemoryStore(), ratelimit.WithClock(clock.Now))
		require.NoError(t, err)
		ctx := context.Background()

		for range 3 {
			_, err := sw.Check(ctx, "k", rule)
			require.NoError(t, err)
		}
		res, err := sw.Check(ctx, "k", rule)
		require.NoError(t, err)
		require.False(t, res.Allowed)

		clock.Advance(61 * time.Second)
		res, err = sw.Check(ctx, "k", rule)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, 1, res.TotalHits)
	})

	t.Run("window slides instead of resetting", func(t *testing.T) {
		t.Parallel()
		clock := newFakeClock()
		sw, err := ratelimit.NewSlidingWindow(ratelimit.NewMemoryStore(), ratelimit.WithClock(clock.Now))
		require.NoError(t, err)
		ctx := context.Background()

		_, _ = sw.Check(ctx, "k", rule)
		clock.Advance(30 * time.Second)
		_, _ = sw.Check(ctx, "k", rule)
		_, _ = sw.Check(ctx, "k", rule)

		clock.Advance(31 * time.Second)
		res, err := sw.Check(ctx, "k", rule)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "first entry left the window")
		assert.Equal(t, 3, res.TotalHits)
	})

	t.Run("keys are independent", func(t *testing.T) {
		t.Parallel()
		sw, err := ratelimit.NewSlidingWindow(ratelimit.NewMemoryStore())
		require.NoError(t, err)
		one := ratelimit.Rule{Window: time.Minute, MaxRequests: 1}

		res, _ := sw.Check(context.Background(), "a", one)
		assert.True(t, res.Allowed)
		res, _ = sw.Check(context.Background(), "b", one)
		assert.True(t, res.Allowed)
		res, _ = sw.Check(context.Background(), "a", one)
		assert.False(t, res.Allowed)

		require.NoError(t, sw.Reset(context.Background(), "a"))
		res, _ = sw.Check(context.Background(), "a", one)
		assert.True(t, res.Allowed)
	})

	t.Run("invalid input", func(t *testing.T) {
		t.Parallel()
		sw, err := ratelimit.NewSlidingWindow(ratelimit.NewMemoryStore())
		require.NoError(t, err)

		_, err = sw.Check(context.Background(), "", rule)
		assert.ErrorIs(t, err, ratelimit.ErrKeyRequired)
		_, err = sw.Check(context.Background(), "k", ratelimit.Rule{Window: time.Second})
		assert.ErrorIs(t, err, ratelimit.ErrInvalidLimit)
		_, err = sw.Check(context.Background(), "k", ratelimit.Rule{MaxRequests: 1})
		assert.ErrorIs(t, err, ratelimit.ErrInvalidInterval)
	})
}

func TestSlidingWindow_FailOpen(t *testing.T) {
	t.Parallel()

	rule := ratelimit.Rule{Window: time.Minute, MaxRequests: 1}

	t.Run("store error", func(t *testing.T) {
		t.Parallel()
		sw, err := ratelimit.NewSlidingWindow(brokenStore{})
		require.NoError(t, err)

		for range 3 {
			res, err := sw.Check(context.Background(), "k", rule)
			require.NoError(t, err)
			assert.True(t, res.Allowed)
			assert.True(t, res.FailedOpen)
		}
	})

	t.Run("unreachable redis", func(t *testing.T) {
		t.Parallel()
		client := redis.NewClient(&redis.Options{
			Addr:        "127.0.0.1:1",
			DialTimeout: 100 * time.Millisecond,
			MaxRetries:  -1,
		})
		t.Cleanup(func() { _ = client.Close() })

		sw, err := ratelimit.NewSlidingWindow(ratelimit.NewRedisStore(client))
		require.NoError(t, err)

		res, err := sw.Check(context.Background(), "k", rule)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.True(t, res.FailedOpen)
	})
}
