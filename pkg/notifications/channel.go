package notifications

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/logger"
)

// Channel is one delivery mechanism. Send returns expected failures in
// SendResult.Error; it is not supposed to panic, but the orchestrator
// recovers if it does.
type Channel interface {
	Type() ChannelType
	// Validate is a structural check without I/O.
	Validate(p Payload) bool
	// IsAvailable reports whether the channel dependencies are reachable.
	IsAvailable(ctx context.Context) bool
	Send(ctx context.Context, p Payload) SendResult
}

type channelOptions struct {
	logger *slog.Logger
	now    func() time.Time
}

// ChannelOption configures the built-in channels.
type ChannelOption func(*channelOptions)

// WithChannelLogger sets the logger used for attempt, skip and failure records.
func WithChannelLogger(l *slog.Logger) ChannelOption {
	return func(o *channelOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithChannelClock overrides time.Now, used by expiry validation.
func WithChannelClock(now func() time.Time) ChannelOption {
	return func(o *channelOptions) {
		if now != nil {
			o.now = now
		}
	}
}

func newChannelOptions(opts []ChannelOption) channelOptions {
	o := channelOptions{logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// channelLog holds the attempt, success and failure logging every channel
// variant shares.
type channelLog struct {
	channel ChannelType
	logger  *slog.Logger
}

func newChannelLog(channel ChannelType, l *slog.Logger) channelLog {
	return channelLog{
		channel: channel,
		logger:  l.With(logger.Component("notifications.channel"), logger.Channel(string(channel))),
	}
}

func (c channelLog) attempt(ctx context.Context, p Payload) {
	c.logger.DebugContext(ctx, "channel attempt",
		logger.Event("channel.attempt"),
		logger.NotificationID(p.NotificationID.String()),
		logger.UserID(p.UserID),
		logger.Category(p.Category),
	)
}

func (c channelLog) success(ctx context.Context, p Payload, res SendResult) SendResult {
	res.Success = true
	res.Channel = c.channel
	c.logger.InfoContext(ctx, "channel delivery accepted",
		logger.Event("channel.success"),
		logger.NotificationID(p.NotificationID.String()),
		logger.UserID(p.UserID),
		logger.DeliveryLogID(nullableID(res.DeliveryLogID)),
		logger.MessageID(res.MessageID),
	)
	return res
}

func (c channelLog) failure(ctx context.Context, p Payload, err error) SendResult {
	c.logger.WarnContext(ctx, "channel delivery failed",
		logger.Event("channel.failure"),
		logger.NotificationID(p.NotificationID.String()),
		logger.UserID(p.UserID),
		logger.Error(err),
	)
	return SendResult{Channel: c.channel, Error: err}
}

// validateCommon checks what every channel requires.
func validateCommon(p Payload, now time.Time) bool {
	if strings.TrimSpace(p.Title) == "" || strings.TrimSpace(p.Message) == "" {
		return false
	}
	if p.TenantID == uuid.Nil || p.NotificationID == uuid.Nil || strings.TrimSpace(p.UserID) == "" {
		return false
	}
	if p.ExpiresAt != nil && !p.ExpiresAt.After(now) {
		return false
	}
	return true
}

func nullableID(id uuid.UUID) string {
	if id == uuid.Nil {
		return ""
	}
	return id.String()
}
