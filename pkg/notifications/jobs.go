package notifications

import (
	"strings"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/queue"
)

// Queues the async channels enqueue into.
const (
	QueueEmail = "notifications.email"
	QueueSMS   = "notifications.sms"
)

// jobNamespace seeds deterministic job ids.
var jobNamespace = uuid.MustParse("6f1c3e0a-8b7d-5e52-9a4f-2d6c1b0e7a93")

// JobID derives the idempotency key of the job delivering notificationID
// over channel. Enqueuing twice with the same id is collapsed by the queue.
func JobID(channel ChannelType, notificationID uuid.UUID) uuid.UUID {
	return uuid.NewSHA1(jobNamespace, []byte(string(channel)+":"+notificationID.String()))
}

func queuePriority(p Priority) queue.Priority {
	switch p {
	case PriorityUrgent:
		return queue.PriorityMax
	case PriorityHigh:
		return queue.PriorityHigh
	case PriorityLow:
		return queue.PriorityLow
	default:
		return queue.PriorityMedium
	}
}

// EmailJob is the queue payload delivered by DeliveryWorker.HandleEmail.
type EmailJob struct {
	TenantID          uuid.UUID      `json:"tenant_id"`
	UserID            string         `json:"user_id"`
	NotificationID    uuid.UUID      `json:"notification_id"`
	Category          string         `json:"category"`
	Priority          Priority       `json:"priority"`
	To                string         `json:"to"`
	Subject           string         `json:"subject"`
	TemplateID        string         `json:"template_id,omitempty"`
	TemplateVariables map[string]any `json:"template_variables,omitempty"`
	Message           string         `json:"message"`
}

func (j EmailJob) validate() error {
	switch {
	case j.TenantID == uuid.Nil || j.NotificationID == uuid.Nil:
		return errorf(ErrInvalidJob, "tenant and notification ids are required")
	case strings.TrimSpace(j.To) == "":
		return errorf(ErrInvalidJob, "recipient is required")
	}
	return nil
}

// SMSJob carries a message already truncated to sms.MaxLength.
type SMSJob struct {
	TenantID       uuid.UUID `json:"tenant_id"`
	UserID         string    `json:"user_id"`
	NotificationID uuid.UUID `json:"notification_id"`
	Category       string    `json:"category"`
	Priority       Priority  `json:"priority"`
	To             string    `json:"to"`
	Message        string    `json:"message"`
}

func (j SMSJob) validate() error {
	switch {
	case j.TenantID == uuid.Nil || j.NotificationID == uuid.Nil:
		return errorf(ErrInvalidJob, "tenant and notification ids are required")
	case strings.TrimSpace(j.To) == "" || strings.TrimSpace(j.Message) == "":
		return errorf(ErrInvalidJob, "recipient and message are required")
	}
	return nil
}
