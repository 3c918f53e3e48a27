package notifications

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/dmitrymomot/notifykit/pkg/sms"
)

// SMSChannel accepts a notification by enqueuing an SMSJob.
type SMSChannel struct {
	asyncSender
}

// NewSMSChannel creates the SMS channel. Numbers are normalized to E.164
// before the job is enqueued.
func NewSMSChannel(store DeliveryStore, recipients RecipientDirectory, enqueuer JobEnqueuer, opts ...ChannelOption) *SMSChannel {
	o := newChannelOptions(opts)
	return &SMSChannel{asyncSender{
		channel:    ChannelSMS,
		queue:      QueueSMS,
		store:      store,
		recipients: recipients,
		enqueuer:   enqueuer,
		log:        newChannelLog(ChannelSMS, o.logger),
		now:        o.now,
	}}
}

func (c *SMSChannel) Type() ChannelType { return ChannelSMS }

// Validate rejects messages over sms.MaxLength runes and malformed phone
// overrides.
func (c *SMSChannel) Validate(p Payload) bool {
	if !validateCommon(p, c.now()) {
		return false
	}
	if utf8.RuneCountInString(p.Message) > sms.MaxLength {
		return false
	}
	return p.Phone == "" || sms.ValidNumber(p.Phone)
}

func (c *SMSChannel) IsAvailable(ctx context.Context) bool {
	return c.available(ctx)
}

// Send creates a PENDING delivery log and enqueues an SMSJob.
func (c *SMSChannel) Send(ctx context.Context, p Payload) SendResult {
	return c.send(ctx, p, func(r *Recipient) (any, error) {
		to := p.Phone
		if to == "" {
			to = r.Phone
		}
		if to == "" {
			return nil, fmt.Errorf("%w: user %s has no phone number", ErrNoDestination, p.UserID)
		}
		normalized, err := sms.NormalizeNumber(to)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidDestination, err)
		}

		return SMSJob{
			TenantID:       p.TenantID,
			UserID:         p.UserID,
			NotificationID: p.NotificationID,
			Category:       p.Category,
			Priority:       p.Priority,
			To:             normalized,
			Message:        sms.Truncate(smsText(p), sms.MaxLength),
		}, nil
	})
}

func smsText(p Payload) string {
	return p.Title + ": " + bodyFor(p)
}
