package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/logger"
)

// DeliveryStore is the storage an async channel needs.
type DeliveryStore interface {
	DeliveryLogStore
	Ping(ctx context.Context) error
}

// InAppStore is the storage the in-app channel needs.
type InAppStore interface {
	DeliveryStore
	CountUnread(ctx context.Context, tenantID uuid.UUID, userID string) (int, error)
}

// InAppChannel delivers synchronously: the notification row is the inbox
// entry, so delivery means recording the log and pushing to live sessions.
type InAppChannel struct {
	store   InAppStore
	emitter Emitter
	log     channelLog
	now     func() time.Time
}

// NewInAppChannel creates the in-app channel. emitter may be nil.
func NewInAppChannel(store InAppStore, emitter Emitter, opts ...ChannelOption) *InAppChannel {
	o := newChannelOptions(opts)
	if emitter == nil {
		emitter = NopEmitter{}
	}
	return &InAppChannel{
		store:   store,
		emitter: emitter,
		log:     newChannelLog(ChannelInApp, o.logger),
		now:     o.now,
	}
}

func (c *InAppChannel) Type() ChannelType { return ChannelInApp }

// Validate checks the fields every channel requires.
func (c *InAppChannel) Validate(p Payload) bool {
	return validateCommon(p, c.now())
}

// IsAvailable pings the notification store.
func (c *InAppChannel) IsAvailable(ctx context.Context) bool {
	return c.store.Ping(ctx) == nil
}

func (c *InAppChannel) Send(ctx context.Context, p Payload) SendResult {
	c.log.attempt(ctx, p)

	dl, err := c.store.AcquireDeliveryLog(ctx, p.TenantID, p.NotificationID, ChannelInApp)
	if err != nil {
		return c.log.failure(ctx, p, fmt.Errorf("acquire delivery log: %w", err))
	}
	if dl.Status != DeliverySent {
		if dl, err = c.store.MarkDeliverySent(ctx, p.TenantID, dl.ID, ProviderInApp, p.NotificationID.String(), c.now()); err != nil {
			return c.log.failure(ctx, p, fmt.Errorf("mark delivery sent: %w", err))
		}
	}

	// The stored row is authoritative; a push failure does not fail delivery.
	if err := c.emitter.EmitToUser(ctx, p.UserID, RealtimeEvent{
		Kind:           RealtimeNotification,
		NotificationID: p.NotificationID.String(),
		Category:       p.Category,
		Type:           p.Type,
		Title:          p.Title,
		Message:        p.Message,
		Data:           p.Data,
	}); err != nil {
		c.log.logger.WarnContext(ctx, "realtime push failed", logger.NotificationID(p.NotificationID.String()), logger.Error(err))
	}
	if count, err := c.store.CountUnread(ctx, p.TenantID, p.UserID); err == nil {
		if err := c.emitter.EmitUnreadCount(ctx, p.UserID, count); err != nil {
			c.log.logger.WarnContext(ctx, "unread count push failed", logger.UserID(p.UserID), logger.Error(err))
		}
	}

	return c.log.success(ctx, p, SendResult{DeliveryLogID: dl.ID, MessageID: dl.ProviderMessageID})
}
