package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/email"
	"github.com/dmitrymomot/notifykit/pkg/eventbus"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/queue"
	"github.com/dmitrymomot/notifykit/pkg/sms"
	"github.com/dmitrymomot/notifykit/pkg/templates"
	"github.com/dmitrymomot/notifykit/pkg/tenant"
)

var errEmptyProviderResult = errors.New("provider returned no result")

// DeliveryWorker consumes EmailJob and SMSJob tasks. A returned error makes
// the queue retry the job; the delivery log row is reused across attempts.
type DeliveryWorker struct {
	logs      DeliveryLogStore
	providers ProviderResolver
	renderer  templates.Renderer
	events    eventbus.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// DeliveryWorkerOption configures a DeliveryWorker.
type DeliveryWorkerOption func(*DeliveryWorker)

// WithRenderer enables template rendering for email jobs with a template id.
func WithRenderer(r templates.Renderer) DeliveryWorkerOption {
	return func(w *DeliveryWorker) { w.renderer = r }
}

// WithWorkerPublisher sets where delivery events are published.
func WithWorkerPublisher(p eventbus.Publisher) DeliveryWorkerOption {
	return func(w *DeliveryWorker) {
		if p != nil {
			w.events = p
		}
	}
}

func WithDeliveryWorkerLogger(l *slog.Logger) DeliveryWorkerOption {
	return func(w *DeliveryWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

func WithWorkerClock(now func() time.Time) DeliveryWorkerOption {
	return func(w *DeliveryWorker) {
		if now != nil {
			w.now = now
		}
	}
}

// NewDeliveryWorker creates the handler set for the email and SMS queues.
func NewDeliveryWorker(logs DeliveryLogStore, providers ProviderResolver, opts ...DeliveryWorkerOption) *DeliveryWorker {
	w := &DeliveryWorker{
		logs:      logs,
		providers: providers,
		events:    eventbus.Nop{},
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(logger.Component("notifications.worker"))
	return w
}

// Handlers returns the queue handlers for both job types.
func (w *DeliveryWorker) Handlers() []queue.Handler {
	return []queue.Handler{
		queue.NewTaskHandler[EmailJob](w.HandleEmail),
		queue.NewTaskHandler[SMSJob](w.HandleSMS),
	}
}

// HandleEmail delivers one EmailJob. A returned error makes the queue retry.
func (w *DeliveryWorker) HandleEmail(ctx context.Context, job EmailJob) error {
	if err := job.validate(); err != nil {
		return err
	}
	ctx = tenant.WithID(ctx, job.TenantID)

	return w.process(ctx, ChannelEmail, job.TenantID, job.NotificationID, job.UserID, func(ctx context.Context) (string, string, error) {
		provider, err := w.providers.EmailProvider(ctx, job.TenantID)
		if err != nil {
			return "", "", fmt.Errorf("resolve email provider: %w", err)
		}
		content := w.render(ctx, job)
		res, err := provider.Send(ctx, email.Message{
			To:      job.To,
			Subject: content.Subject,
			HTML:    content.HTML,
			Text:    content.Text,
			Tag:     job.Category,
		})
		if err != nil {
			return provider.Name(), "", err
		}
		if res == nil {
			return provider.Name(), "", errEmptyProviderResult
		}
		return provider.Name(), res.MessageID, nil
	})
}

// HandleSMS delivers one SMSJob.
func (w *DeliveryWorker) HandleSMS(ctx context.Context, job SMSJob) error {
	if err := job.validate(); err != nil {
		return err
	}
	ctx = tenant.WithID(ctx, job.TenantID)

	return w.process(ctx, ChannelSMS, job.TenantID, job.NotificationID, job.UserID, func(ctx context.Context) (string, string, error) {
		provider, err := w.providers.SMSProvider(ctx, job.TenantID)
		if err != nil {
			return "", "", fmt.Errorf("resolve sms provider: %w", err)
		}
		res, err := provider.Send(ctx, sms.Message{
			To:   job.To,
			Body: sms.Truncate(job.Message, sms.MaxLength),
		})
		if err != nil {
			return provider.Name(), "", err
		}
		if res == nil {
			return provider.Name(), "", errEmptyProviderResult
		}
		return provider.Name(), res.MessageID, nil
	})
}

// render uses the job template when there is one and falls back to the
// plain message when rendering fails.
func (w *DeliveryWorker) render(ctx context.Context, job EmailJob) *templates.Rendered {
	if job.TemplateID != "" && w.renderer != nil {
		out, err := w.renderer.Render(ctx, job.TemplateID, job.TemplateVariables)
		if err == nil {
			if out.Subject == "" {
				out.Subject = job.Subject
			}
			return out
		}
		w.logger.WarnContext(ctx, "template render failed, sending plain message",
			slog.String("template_id", job.TemplateID),
			logger.NotificationID(job.NotificationID.String()),
			logger.Error(err),
		)
	}
	out, err := templates.Plain(ctx, job.Subject, job.Message)
	if err != nil {
		return &templates.Rendered{Subject: job.Subject, Text: job.Message}
	}
	return out
}

type sendFunc func(ctx context.Context) (provider, messageID string, err error)

func (w *DeliveryWorker) process(ctx context.Context, channel ChannelType, tenantID, notificationID uuid.UUID, userID string, send sendFunc) error {
	start := w.now()
	info, _ := queue.TaskInfoFromContext(ctx)
	success := false

	defer func() {
		took := w.now().Sub(start)
		w.logger.InfoContext(ctx, "queue processing completed",
			logger.Event("queue.processing.completed"),
			logger.Channel(string(channel)),
			logger.NotificationID(notificationID.String()),
			logger.Duration(took),
			slog.Bool("success", success),
			slog.Int("attempt", info.Attempt),
		)
		w.events.Publish(ctx, JobProcessed{
			TenantID:       tenantID,
			NotificationID: notificationID,
			Channel:        channel,
			Success:        success,
			Attempt:        info.Attempt,
			Duration:       took,
		})
	}()

	dl, err := w.logs.AcquireDeliveryLog(ctx, tenantID, notificationID, channel)
	if err != nil {
		return fmt.Errorf("acquire delivery log: %w", err)
	}
	if dl.Status == DeliverySent {
		success = true
		w.logger.DebugContext(ctx, "already delivered, skipping", logger.DeliveryLogID(dl.ID.String()))
		return nil
	}

	sendStart := w.now()
	provider, messageID, sendErr := safeSend(ctx, send)
	took := w.now().Sub(sendStart)

	if sendErr != nil {
		attempts := dl.Attempts + 1
		if updated, err := w.logs.MarkDeliveryFailed(ctx, tenantID, dl.ID, provider, sendErr.Error(), w.now()); err != nil {
			w.logger.ErrorContext(ctx, "failed to record delivery failure", logger.DeliveryLogID(dl.ID.String()), logger.Error(err))
		} else {
			attempts = updated.Attempts
		}
		w.events.Publish(ctx, DeliveryAttemptFailed{
			TenantID:       tenantID,
			NotificationID: notificationID,
			UserID:         userID,
			DeliveryLogID:  dl.ID,
			Channel:        channel,
			Provider:       provider,
			Error:          sendErr.Error(),
			Attempts:       attempts,
			Final:          info.Final(),
			Took:           took,
			At:             w.now(),
		})
		return fmt.Errorf("deliver %s via %q: %w", channel, provider, sendErr)
	}

	success = true
	sentAt := w.now()
	attempts := dl.Attempts + 1
	if updated, err := w.logs.MarkDeliverySent(ctx, tenantID, dl.ID, provider, messageID, sentAt); err != nil {
		// The provider accepted the message; retrying would send it twice.
		w.logger.ErrorContext(ctx, "delivered but failed to record", logger.DeliveryLogID(dl.ID.String()), logger.MessageID(messageID), logger.Error(err))
	} else {
		attempts = updated.Attempts
	}
	w.events.Publish(ctx, DeliverySucceeded{
		TenantID:       tenantID,
		NotificationID: notificationID,
		UserID:         userID,
		DeliveryLogID:  dl.ID,
		Channel:        channel,
		Provider:       provider,
		MessageID:      messageID,
		Attempts:       attempts,
		Took:           took,
		At:             sentAt,
	})
	return nil
}

func safeSend(ctx context.Context, send sendFunc) (provider, messageID string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("provider panic: %v", r)
		}
	}()
	return send(ctx)
}
