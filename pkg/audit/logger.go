package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Extractor pulls an identifier out of the request context.
type Extractor func(context.Context) (string, bool)

type logger struct {
	storage  Storage
	tenantID Extractor
	userID   Extractor
	async    *AsyncOptions
	now      func() time.Time
}

type Option func(*logger)

func WithTenantIDExtractor(fn Extractor) Option {
	return func(l *logger) { l.tenantID = fn }
}

func WithUserIDExtractor(fn Extractor) Option {
	return func(l *logger) { l.userID = fn }
}

// WithAsync batches writes when the storage implements BatchStorage.
func WithAsync(opts AsyncOptions) Option {
	return func(l *logger) { l.async = &opts }
}

// NewLogger panics on a nil storage. The returned close func flushes the
// async writer, if any; it is a no-op otherwise.
func NewLogger(storage Storage, opts ...Option) (Logger, func(context.Context) error) {
	if storage == nil {
		panic("audit: storage cannot be nil")
	}
	l := &logger{storage: storage, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}

	closeFn := func(context.Context) error { return nil }
	if bs, ok := storage.(BatchStorage); ok && l.async != nil {
		w, c := NewAsyncWriter(bs, *l.async)
		l.storage = w
		closeFn = c
	}
	return l, closeFn
}

func (l *logger) Log(ctx context.Context, action string, opts ...EventOption) error {
	return l.write(ctx, action, ResultSuccess, nil, opts)
}

func (l *logger) LogError(ctx context.Context, action string, err error, opts ...EventOption) error {
	return l.write(ctx, action, ResultError, err, opts)
}

func (l *logger) write(ctx context.Context, action string, result Result, err error, opts []EventOption) error {
	event := Event{
		ID:        uuid.NewString(),
		Action:    action,
		Result:    result,
		CreatedAt: l.now().UTC(),
	}
	if err != nil {
		event.Error = err.Error()
	}
	if l.tenantID != nil {
		event.TenantID, _ = l.tenantID(ctx)
	}
	if l.userID != nil {
		event.UserID, _ = l.userID(ctx)
	}
	for _, opt := range opts {
		opt(&event)
	}
	if verr := event.Validate(); verr != nil {
		return verr
	}
	return l.storage.Store(ctx, event)
}

type reader struct {
	storage Storage
}

func NewReader(storage Storage) Reader {
	if storage == nil {
		panic("audit: storage cannot be nil")
	}
	return &reader{storage: storage}
}

func (r *reader) Find(ctx context.Context, criteria Criteria) ([]Event, error) {
	return r.storage.Query(ctx, criteria)
}

// Count uses the storage's native count when available.
func (r *reader) Count(ctx context.Context, criteria Criteria) (int64, error) {
	if c, ok := r.storage.(Counter); ok {
		return c.Count(ctx, criteria)
	}
	criteria.Limit, criteria.Offset = 0, 0
	events, err := r.storage.Query(ctx, criteria)
	if err != nil {
		return 0, err
	}
	return int64(len(events)), nil
}
