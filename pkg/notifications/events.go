package notifications

import (
	"time"

	"github.com/google/uuid"
)

// Event names, used as eventbus topics.
const (
	EventNotificationCreated = "notifications.created"
	EventDeliverySent        = "notifications.delivery.sent"
	EventDeliveryFailed      = "notifications.delivery.failed"
	EventJobProcessed        = "notifications.job.processed"
)

// NotificationCreated is published after dispatch finished for a new
// notification.
type NotificationCreated struct {
	TenantID       uuid.UUID
	NotificationID uuid.UUID
	UserID         string
	Category       string
	Results        []ChannelResult
}

// EventName implements eventbus.Event.
func (NotificationCreated) EventName() string { return EventNotificationCreated }

// DeliverySucceeded is published by the worker when a provider accepted a message.
type DeliverySucceeded struct {
	TenantID       uuid.UUID
	NotificationID uuid.UUID
	UserID         string
	DeliveryLogID  uuid.UUID
	Channel        ChannelType
	Provider       string
	MessageID      string
	Attempts       int
	Took           time.Duration
	At             time.Time
}

func (DeliverySucceeded) EventName() string { return EventDeliverySent }

// DeliveryAttemptFailed is published on every failed provider attempt. Final is
// set when the queue will not retry.
type DeliveryAttemptFailed struct {
	TenantID       uuid.UUID
	NotificationID uuid.UUID
	UserID         string
	DeliveryLogID  uuid.UUID
	Channel        ChannelType
	Provider       string
	Error          string
	Attempts       int
	Final          bool
	Took           time.Duration
	At             time.Time
}

func (DeliveryAttemptFailed) EventName() string { return EventDeliveryFailed }

// JobProcessed is published once per processed job whatever the outcome.
type JobProcessed struct {
	TenantID       uuid.UUID
	NotificationID uuid.UUID
	Channel        ChannelType
	Success        bool
	Attempt        int
	Duration       time.Duration
}

func (JobProcessed) EventName() string { return EventJobProcessed }
