package audit

import (
	"context"
	"slices"
	"sync"
)

type MemoryStorage struct {
	mu     sync.RWMutex
	events []Event
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (s *MemoryStorage) Store(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *MemoryStorage) StoreBatch(_ context.Context, events []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	return nil
}

func (s *MemoryStorage) Query(_ context.Context, c Criteria) ([]Event, error) {
	s.mu.RLock()
	var out []Event
	for _, e := range s.events {
		if c.matches(e) {
			out = append(out, e)
		}
	}
	s.mu.RUnlock()

	slices.SortStableFunc(out, func(a, b Event) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return page(out, c.Offset, c.Limit), nil
}

func (s *MemoryStorage) Count(_ context.Context, c Criteria) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, e := range s.events {
		if c.matches(e) {
			n++
		}
	}
	return n, nil
}

func page(events []Event, offset, limit int) []Event {
	if offset >= len(events) {
		return nil
	}
	events = events[max(offset, 0):]
	if limit > 0 && limit < len(events) {
		events = events[:limit]
	}
	return events
}
