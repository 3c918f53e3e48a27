package broadcast

import (
	"context"
	"sync"
)

// Subscriber receives messages until it is closed, its context ends, or it
// falls behind.
type Subscriber[T any] interface {
	C() <-chan T
	Close() error
}

// Broadcaster sends every message to all current subscribers.
type Broadcaster[T any] interface {
	Subscribe(ctx context.Context) Subscriber[T]
	// Broadcast returns the number of subscribers that accepted msg.
	Broadcast(ctx context.Context, msg T) int
	Close() error
}

type subscriber[T any] struct {
	ch     chan T
	mu     sync.RWMutex
	closed bool
}

func newSubscriber[T any](size int) *subscriber[T] {
	return &subscriber[T]{ch: make(chan T, size)}
}

func (s *subscriber[T]) C() <-chan T { return s.ch }

func (s *subscriber[T]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	return nil
}

// offer hands msg over without blocking.
func (s *subscriber[T]) offer(msg T) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- msg:
		return true
	default:
		return false
	}
}
