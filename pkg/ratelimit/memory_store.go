package ratelimit

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	score  int64
	member string
}

// MemoryStore is a single-process Store. Entries are trimmed lazily on
// Record; keys whose TTL lapsed are dropped on the next access.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*memoryWindow
}

type memoryWindow struct {
	entries   []entry
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{windows: make(map[string]*memoryWindow)}
}

func (s *MemoryStore) Record(_ context.Context, key, member string, now time.Time, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok || !now.Before(w.expiresAt) {
		w = &memoryWindow{}
		s.windows[key] = w
	}

	cutoff := now.Add(-window).UnixMilli()
	kept := w.entries[:0]
	for _, e := range w.entries {
		if e.score > cutoff {
			kept = append(kept, e)
		}
	}
	count := int64(len(kept))

	w.entries = append(kept, entry{score: now.UnixMilli(), member: member})
	w.expiresAt = now.Add(window)
	return count, nil
}

func (s *MemoryStore) Remove(_ context.Context, key, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok {
		return nil
	}
	for i, e := range w.entries {
		if e.member == member {
			w.entries = append(w.entries[:i], w.entries[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemoryStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.windows, key)
	return nil
}
