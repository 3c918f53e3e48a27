package ratelimit

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/logger"
)

// SlidingWindow counts requests within the trailing window from now,
// recomputed on every check.
type SlidingWindow struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

type Option func(*SlidingWindow)

func WithLogger(l *slog.Logger) Option {
	return func(sw *SlidingWindow) {
		if l != nil {
			sw.logger = l
		}
	}
}

// WithClock overrides time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(sw *SlidingWindow) {
		if now != nil {
			sw.now = now
		}
	}
}

func NewSlidingWindow(store Store, opts ...Option) (*SlidingWindow, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	sw := &SlidingWindow{
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(sw)
	}
	return sw, nil
}

// Check records one request against key and reports whether it fits rule.
//
// Store errors never surface: the request is allowed, FailedOpen is set and
// the failure is logged. Only invalid input returns an error.
func (sw *SlidingWindow) Check(ctx context.Context, key string, rule Rule) (*Result, error) {
	if key == "" {
		return nil, ErrKeyRequired
	}
	if err := rule.validate(); err != nil {
		return nil, err
	}

	now := sw.now()
	resetAt := now.Add(rule.Window)
	member := strconv.FormatInt(now.UnixMilli(), 10) + "-" + strconv.FormatUint(rand.Uint64(), 36)

	count, err := sw.store.Record(ctx, key, member, now, rule.Window)
	if err != nil {
		sw.logger.ErrorContext(ctx, "rate limit store unavailable, failing open",
			logger.Component("ratelimit"),
			slog.String("key", key),
			logger.Error(err),
		)
		return &Result{
			Allowed:    true,
			Remaining:  rule.MaxRequests - 1,
			ResetAt:    resetAt,
			TotalHits:  1,
			FailedOpen: true,
		}, nil
	}

	allowed := count < int64(rule.MaxRequests)
	if !allowed {
		// A denied request must not count against later windows.
		if err := sw.store.Remove(ctx, key, member); err != nil {
			sw.logger.WarnContext(ctx, "failed to remove denied rate limit entry",
				logger.Component("ratelimit"),
				slog.String("key", key),
				logger.Error(err),
			)
		}
	}

	return &Result{
		Allowed:   allowed,
		Remaining: max(0, rule.MaxRequests-int(count)-1),
		ResetAt:   resetAt,
		TotalHits: int(count) + 1,
	}, nil
}

// Reset clears all recorded requests for key.
func (sw *SlidingWindow) Reset(ctx context.Context, key string) error {
	if key == "" {
		return ErrKeyRequired
	}
	return sw.store.Reset(ctx, key)
}
