package broadcast

import (
	"context"
	"sync"
)

// MemoryBroadcaster is a process-local Broadcaster. Safe for concurrent use.
type MemoryBroadcaster[T any] struct {
	mu     sync.RWMutex
	subs   map[*subscriber[T]]struct{}
	size   int
	closed bool
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewMemoryBroadcaster creates a broadcaster whose subscribers buffer up to
// bufferSize messages (minimum 1).
func NewMemoryBroadcaster[T any](bufferSize int) *MemoryBroadcaster[T] {
	return &MemoryBroadcaster[T]{
		subs: make(map[*subscriber[T]]struct{}),
		size: max(bufferSize, 1),
		done: make(chan struct{}),
	}
}

// Subscribe registers a subscriber that is removed when ctx ends. After Close
// it returns an already closed subscriber.
func (b *MemoryBroadcaster[T]) Subscribe(ctx context.Context) Subscriber[T] {
	sub := newSubscriber[T](b.size)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		_ = sub.Close()
		return sub
	}
	b.subs[sub] = struct{}{}

	if done := ctx.Done(); done != nil {
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			select {
			case <-done:
				b.remove(sub)
			case <-b.done:
			}
		}()
	}
	return sub
}

func (b *MemoryBroadcaster[T]) Broadcast(_ context.Context, msg T) int {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return 0
	}

	delivered := 0
	var slow []*subscriber[T]
	for sub := range b.subs {
		if sub.offer(msg) {
			delivered++
			continue
		}
		slow = append(slow, sub)
	}
	b.mu.RUnlock()

	for _, sub := range slow {
		b.remove(sub)
	}
	return delivered
}

// Len returns the number of live subscribers.
func (b *MemoryBroadcaster[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close closes every subscriber without waiting for their contexts to end.
// It is idempotent.
func (b *MemoryBroadcaster[T]) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.done)
	for sub := range b.subs {
		_ = sub.Close()
	}
	clear(b.subs)
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}

func (b *MemoryBroadcaster[T]) remove(sub *subscriber[T]) {
	b.mu.Lock()
	delete(b.subs, sub)
	b.mu.Unlock()
	_ = sub.Close()
}
