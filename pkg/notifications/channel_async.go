package notifications

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/queue"
)

// JobEnqueuer is satisfied by *queue.Enqueuer.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, payload any, opts ...queue.EnqueueOption) error
	Healthy(ctx context.Context) bool
}

// SensitivePlaceholder replaces the body of sensitive notifications on
// channels that leave the application.
const SensitivePlaceholder = "You have a new notification. Sign in to view the details."

// asyncSender is the enqueue half shared by the email and SMS channels.
type asyncSender struct {
	channel    ChannelType
	queue      string
	store      DeliveryStore
	recipients RecipientDirectory
	enqueuer   JobEnqueuer
	log        channelLog
	now        func() time.Time
}

func (a *asyncSender) available(ctx context.Context) bool {
	return a.enqueuer.Healthy(ctx) && a.store.Ping(ctx) == nil
}

// send acquires the delivery log, builds the job through build and
// enqueues it under a deterministic task id.
func (a *asyncSender) send(ctx context.Context, p Payload, build func(*Recipient) (any, error)) SendResult {
	a.log.attempt(ctx, p)

	dl, err := a.store.AcquireDeliveryLog(ctx, p.TenantID, p.NotificationID, a.channel)
	if err != nil {
		return a.log.failure(ctx, p, fmt.Errorf("acquire delivery log: %w", err))
	}
	taskID := JobID(a.channel, p.NotificationID)
	if dl.Status == DeliverySent {
		return a.log.success(ctx, p, SendResult{DeliveryLogID: dl.ID, MessageID: dl.ProviderMessageID})
	}

	var rcpt *Recipient
	if a.recipients != nil {
		if rcpt, err = a.recipients.Recipient(ctx, p.TenantID, p.UserID); err != nil && !errors.Is(err, ErrRecipientNotFound) {
			return a.fail(ctx, p, dl.ID, fmt.Errorf("resolve recipient: %w", err))
		}
	}
	if rcpt == nil {
		rcpt = &Recipient{}
	}
	job, err := build(rcpt)
	if err != nil {
		return a.fail(ctx, p, dl.ID, err)
	}

	err = a.enqueuer.Enqueue(ctx, job,
		queue.WithTaskID(taskID),
		queue.WithQueue(a.queue),
		queue.WithPriority(queuePriority(p.Priority)),
	)
	switch {
	case errors.Is(err, queue.ErrDuplicateTask):
		a.log.logger.DebugContext(ctx, "job already enqueued", logger.TaskID(taskID), logger.Queue(a.queue))
	case err != nil:
		return a.fail(ctx, p, dl.ID, fmt.Errorf("enqueue %s job: %w", a.channel, err))
	}

	return a.log.success(ctx, p, SendResult{DeliveryLogID: dl.ID, MessageID: taskID.String()})
}

func (a *asyncSender) fail(ctx context.Context, p Payload, logID uuid.UUID, err error) SendResult {
	if _, mErr := a.store.MarkDeliveryFailed(ctx, p.TenantID, logID, "", err.Error(), a.now()); mErr != nil {
		a.log.logger.ErrorContext(ctx, "failed to record delivery failure", logger.DeliveryLogID(logID.String()), logger.Error(mErr))
	}
	res := a.log.failure(ctx, p, err)
	res.DeliveryLogID = logID
	return res
}

func bodyFor(p Payload) string {
	if p.SensitiveData {
		return SensitivePlaceholder
	}
	return p.Message
}
