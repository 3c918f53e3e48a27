package cache_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/cache"
)

func TestLRU_Eviction(t *testing.T) {
	t.Parallel()

	var evicted []string
	c := cache.NewLRU[string, int](2, cache.WithEvictFunc(func(k string, _ int) {
		evicted = append(evicted, k)
	}))

	c.Put("a", 1)
	c.Put("b", 2)
	_, _ = c.Get("a")
	c.Put("c", 3)

	_, ok := c.Get("b")
	assert.False(t, ok, "b was least recently used")
	assert.Equal(t, []string{"b"}, evicted)
	assert.Equal(t, 2, c.Len())

	c.Put("a", 10)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 10, v)
	assert.Equal(t, []string{"b", "a"}, evicted, "replaced value is released")

	assert.True(t, c.Remove("c"))
	assert.False(t, c.Remove("c"))

	c.Purge()
	assert.Zero(t, c.Len())
	assert.Equal(t, []string{"b", "a", "c", "a"}, evicted)
}

func TestLRU_GetOrCreate(t *testing.T) {
	t.Parallel()

	c := cache.NewLRU[string, int](4)

	_, err := c.GetOrCreate("x", func() (int, error) { return 0, errors.New("boom") })
	require.Error(t, err)
	assert.Zero(t, c.Len(), "errors are not cached")

	var calls atomic.Int32
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.GetOrCreate("x", func() (int, error) {
				calls.Add(1)
				return 42, nil
			})
			assert.NoError(t, err)
			assert.Equal(t, 42, v)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), calls.Load())
}

func TestNewLRU_InvalidCapacity(t *testing.T) {
	t.Parallel()
	assert.Panics(t, func() { cache.NewLRU[string, int](0) })
}

func TestLRU_EvictFuncRunsOutsideLock(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	entered := make(chan struct{})
	c := cache.NewLRU[string, int](1, cache.WithEvictFunc(func(string, int) {
		close(entered)
		<-release
	}))
	c.Put("a", 1)

	done := make(chan struct{})
	go func() {
		c.Put("b", 2)
		close(done)
	}()
	<-entered

	got := make(chan int, 1)
	go func() {
		v, _ := c.Get("b")
		got <- v
	}()
	select {
	case v := <-got:
		assert.Equal(t, 2, v)
	case <-time.After(time.Second):
		t.Fatal("Get blocked while the evict func was running")
	}

	close(release)
	<-done
}
