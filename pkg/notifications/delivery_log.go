package notifications

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DeliveryStatus is the state of one channel delivery.
type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "PENDING"
	DeliverySent    DeliveryStatus = "SENT"
	DeliveryFailed  DeliveryStatus = "FAILED"
)

// ProviderInApp is recorded on in-app delivery logs.
const ProviderInApp = "in_app"

// DeliveryLog tracks one (notification, channel) pair. Queue retries reuse
// the row: FAILED goes back to PENDING and Attempts grows.
type DeliveryLog struct {
	ID                uuid.UUID      `json:"id"`
	TenantID          uuid.UUID      `json:"tenant_id"`
	NotificationID    uuid.UUID      `json:"notification_id"`
	Channel           ChannelType    `json:"channel"`
	Status            DeliveryStatus `json:"status"`
	Provider          string         `json:"provider,omitempty"`
	ProviderMessageID string         `json:"provider_message_id,omitempty"`
	ErrorMessage      string         `json:"error_message,omitempty"`
	Attempts          int            `json:"attempts"`
	SentAt            *time.Time     `json:"sent_at,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// TransitionError reports a status change the delivery log state machine
// does not allow.
type TransitionError struct {
	ID   uuid.UUID
	From DeliveryStatus
	To   DeliveryStatus
}

// Error implements the error interface.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("delivery log %s: cannot move from %s to %s", e.ID, e.From, e.To)
}

// Unwrap lets errors.Is match ErrInvalidTransition.
func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

func canTransition(from, to DeliveryStatus) bool {
	switch from {
	case DeliveryPending:
		return to == DeliverySent || to == DeliveryFailed
	case DeliveryFailed:
		return to == DeliveryPending
	}
	return false
}

func (l *DeliveryLog) markSent(provider, messageID string, at time.Time) error {
	if !canTransition(l.Status, DeliverySent) {
		return &TransitionError{ID: l.ID, From: l.Status, To: DeliverySent}
	}
	l.Status = DeliverySent
	l.Provider = provider
	l.ProviderMessageID = messageID
	l.ErrorMessage = ""
	l.SentAt = &at
	l.Attempts++
	l.UpdatedAt = at
	return nil
}

func (l *DeliveryLog) markFailed(provider, reason string, at time.Time) error {
	if !canTransition(l.Status, DeliveryFailed) {
		return &TransitionError{ID: l.ID, From: l.Status, To: DeliveryFailed}
	}
	l.Status = DeliveryFailed
	if provider != "" {
		l.Provider = provider
	}
	l.ErrorMessage = reason
	l.Attempts++
	l.UpdatedAt = at
	return nil
}

// reopen prepares a failed log for another attempt. PENDING and SENT are
// left untouched.
func (l *DeliveryLog) reopen(at time.Time) {
	if l.Status == DeliveryFailed {
		l.Status = DeliveryPending
		l.UpdatedAt = at
	}
}
