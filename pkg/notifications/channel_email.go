package notifications

import (
	"context"
	"fmt"

	"github.com/dmitrymomot/notifykit/pkg/email"
)

// EmailChannel accepts a notification by enqueuing an EmailJob.
type EmailChannel struct {
	asyncSender
}

// NewEmailChannel creates the email channel. Recipients without an address
// in the payload are looked up in recipients.
func NewEmailChannel(store DeliveryStore, recipients RecipientDirectory, enqueuer JobEnqueuer, opts ...ChannelOption) *EmailChannel {
	o := newChannelOptions(opts)
	return &EmailChannel{asyncSender{
		channel:    ChannelEmail,
		queue:      QueueEmail,
		store:      store,
		recipients: recipients,
		enqueuer:   enqueuer,
		log:        newChannelLog(ChannelEmail, o.logger),
		now:        o.now,
	}}
}

func (c *EmailChannel) Type() ChannelType { return ChannelEmail }

// Validate requires the common fields and, when the payload carries an
// address override, a well-formed address.
func (c *EmailChannel) Validate(p Payload) bool {
	if !validateCommon(p, c.now()) {
		return false
	}
	return p.Email == "" || email.ValidAddress(p.Email)
}

// IsAvailable reports whether the queue and the delivery log store respond.
func (c *EmailChannel) IsAvailable(ctx context.Context) bool {
	return c.available(ctx)
}

// Send creates a PENDING delivery log and enqueues an EmailJob. Success
// means queued, not delivered.
func (c *EmailChannel) Send(ctx context.Context, p Payload) SendResult {
	return c.send(ctx, p, func(r *Recipient) (any, error) {
		to := p.Email
		if to == "" {
			to = r.Email
		}
		if to == "" {
			return nil, fmt.Errorf("%w: user %s has no email address", ErrNoDestination, p.UserID)
		}
		if !email.ValidAddress(to) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidDestination, to)
		}

		job := EmailJob{
			TenantID:       p.TenantID,
			UserID:         p.UserID,
			NotificationID: p.NotificationID,
			Category:       p.Category,
			Priority:       p.Priority,
			To:             to,
			Subject:        p.Title,
			TemplateID:     p.TemplateID,
			Message:        bodyFor(p),
		}
		if !p.SensitiveData {
			job.TemplateVariables = templateVars(p)
		}
		return job, nil
	})
}

// templateVars exposes the payload to templates next to the caller's
// variables. Caller variables win.
func templateVars(p Payload) map[string]any {
	vars := map[string]any{
		"Title":    p.Title,
		"Message":  p.Message,
		"Category": p.Category,
		"Data":     p.Data,
	}
	for k, v := range p.TemplateVariables {
		vars[k] = v
	}
	return vars
}
