package notifications

import (
	"context"
	"log/slog"

	"github.com/dmitrymomot/notifykit/pkg/broadcast"
	"github.com/dmitrymomot/notifykit/pkg/cache"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/tenant"
)

const (
	// Kinds of RealtimeEvent.
	RealtimeNotification = "notification"
	RealtimeUnreadCount  = "unread_count"
)

// RealtimeEvent is pushed to connected user sessions.
type RealtimeEvent struct {
	Kind           string         `json:"kind"`
	NotificationID string         `json:"notification_id,omitempty"`
	Category       string         `json:"category,omitempty"`
	Type           Type           `json:"type,omitempty"`
	Title          string         `json:"title,omitempty"`
	Message        string         `json:"message,omitempty"`
	Data           map[string]any `json:"data,omitempty"`
	UnreadCount    int            `json:"unread_count"`
}

// Emitter pushes events to a user of the tenant found in ctx. Callers treat
// failures as non-fatal.
type Emitter interface {
	EmitToUser(ctx context.Context, userID string, event RealtimeEvent) error
	EmitUnreadCount(ctx context.Context, userID string, count int) error
}

// NopEmitter drops every event.
type NopEmitter struct{}

func (NopEmitter) EmitToUser(context.Context, string, RealtimeEvent) error { return nil }
func (NopEmitter) EmitUnreadCount(context.Context, string, int) error      { return nil }

// BroadcastEmitter keeps one in-memory broadcaster per tenant user. The
// least recently used broadcaster is closed when the limit is reached.
type BroadcastEmitter struct {
	users      *cache.LRU[string, *broadcast.MemoryBroadcaster[RealtimeEvent]]
	bufferSize int
	logger     *slog.Logger
}

// BroadcastEmitterOption configures a BroadcastEmitter.
type BroadcastEmitterOption func(*broadcastEmitterOptions)

type broadcastEmitterOptions struct {
	bufferSize      int
	maxBroadcasters int
	logger          *slog.Logger
}

// WithBufferSize sets the per-session buffer. Sessions that fall further
// behind are dropped. Default is 16.
func WithBufferSize(n int) BroadcastEmitterOption {
	return func(o *broadcastEmitterOptions) {
		if n > 0 {
			o.bufferSize = n
		}
	}
}

// WithMaxBroadcasters caps the number of live user broadcasters.
// Default is 10,000.
func WithMaxBroadcasters(n int) BroadcastEmitterOption {
	return func(o *broadcastEmitterOptions) {
		if n > 0 {
			o.maxBroadcasters = n
		}
	}
}

func WithEmitterLogger(l *slog.Logger) BroadcastEmitterOption {
	return func(o *broadcastEmitterOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// NewBroadcastEmitter creates an emitter with per-user broadcasters.
func NewBroadcastEmitter(opts ...BroadcastEmitterOption) *BroadcastEmitter {
	o := broadcastEmitterOptions{bufferSize: 16, maxBroadcasters: 10000, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	e := &BroadcastEmitter{bufferSize: o.bufferSize, logger: o.logger.With(logger.Component("notifications.emitter"))}
	e.users = cache.NewLRU(o.maxBroadcasters,
		cache.WithEvictFunc(func(key string, b *broadcast.MemoryBroadcaster[RealtimeEvent]) {
			if err := b.Close(); err != nil {
				e.logger.Error("failed to close evicted broadcaster", slog.String("key", key), logger.Error(err))
			}
		}),
	)
	return e
}

// EmitToUser delivers event to the user's open sessions. Users without a
// session are skipped; their broadcaster is only created by Subscribe.
func (e *BroadcastEmitter) EmitToUser(ctx context.Context, userID string, event RealtimeEvent) error {
	key, err := userKey(ctx, userID)
	if err != nil {
		return err
	}
	b, ok := e.users.Get(key)
	if !ok {
		return nil
	}
	b.Broadcast(ctx, event)
	return nil
}

// EmitUnreadCount pushes the user's current unread badge count.
func (e *BroadcastEmitter) EmitUnreadCount(ctx context.Context, userID string, count int) error {
	return e.EmitToUser(ctx, userID, RealtimeEvent{Kind: RealtimeUnreadCount, UnreadCount: count})
}

// Subscribe is used by transports (SSE, WebSocket) to receive a user's events.
// The subscription ends when ctx is cancelled.
func (e *BroadcastEmitter) Subscribe(ctx context.Context, userID string) (broadcast.Subscriber[RealtimeEvent], error) {
	key, err := userKey(ctx, userID)
	if err != nil {
		return nil, err
	}
	b, err := e.users.GetOrCreate(key, func() (*broadcast.MemoryBroadcaster[RealtimeEvent], error) {
		return broadcast.NewMemoryBroadcaster[RealtimeEvent](e.bufferSize), nil
	})
	if err != nil {
		return nil, err
	}
	return b.Subscribe(ctx), nil
}

// Close closes all user broadcasters.
func (e *BroadcastEmitter) Close() error {
	e.users.Purge()
	return nil
}

func userKey(ctx context.Context, userID string) (string, error) {
	tenantID, err := tenant.RequireID(ctx)
	if err != nil {
		return "", err
	}
	return tenantID.String() + ":" + userID, nil
}
