package ratelimit

import (
	"context"
	"time"
)

// Rule is a sliding window policy: at most MaxRequests within Window.
type Rule struct {
	Window      time.Duration
	MaxRequests int
}

func (r Rule) validate() error {
	if r.MaxRequests <= 0 {
		return ErrInvalidLimit
	}
	if r.Window <= 0 {
		return ErrInvalidInterval
	}
	return nil
}

// Result of a single check.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
	// TotalHits counts the checked request, so it is one past the stored entries.
	TotalHits int
	// FailedOpen is set when the store was unreachable and the request was let through.
	FailedOpen bool
}

// RetryAfter returns how long to wait before the next request is allowed.
func (r *Result) RetryAfter() time.Duration {
	if r.Allowed {
		return 0
	}
	return max(0, time.Until(r.ResetAt))
}

// Store is the ordered per-key set backing the sliding window.
type Store interface {
	// Record atomically drops entries scored at or before now-window, counts
	// what is left, adds member scored at now and refreshes the key TTL to
	// window. The returned count is measured before the add.
	Record(ctx context.Context, key, member string, now time.Time, window time.Duration) (int64, error)

	// Remove deletes a single member, used to take back a denied request.
	Remove(ctx context.Context, key, member string) error

	// Reset drops the whole key.
	Reset(ctx context.Context, key string) error
}
