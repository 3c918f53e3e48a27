package notifications

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Payload is what a channel needs to deliver one notification.
type Payload struct {
	TenantID          uuid.UUID
	UserID            string
	NotificationID    uuid.UUID
	Category          string
	Type              Type
	Priority          Priority
	Title             string
	Message           string
	Data              map[string]any
	ExpiresAt         *time.Time
	SensitiveData     bool
	Email             string // overrides the recipient directory
	Phone             string // overrides the recipient directory, E.164
	TemplateID        string
	TemplateVariables map[string]any
}

// SendResult is the outcome of Channel.Send. For async channels Success
// means accepted for delivery.
type SendResult struct {
	Success       bool
	Channel       ChannelType
	MessageID     string
	DeliveryLogID uuid.UUID
	Error         error
}

// Outcome is the result of one channel attempt.
type Outcome string

const (
	OutcomeSent    Outcome = "sent"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
)

// Skip reasons recorded by the orchestrator.
const (
	ReasonNotRegistered  = "not_registered"
	ReasonUnavailable    = "unavailable"
	ReasonInvalidPayload = "invalid_payload"
)

// ChannelResult describes what happened to one enabled channel.
type ChannelResult struct {
	Channel       ChannelType `json:"channel"`
	Outcome       Outcome     `json:"outcome"`
	Reason        string      `json:"reason,omitempty"`
	MessageID     string      `json:"message_id,omitempty"`
	DeliveryLogID uuid.UUID   `json:"delivery_log_id,omitempty"`
}

// CreateInput is the caller side of Manager.Create. The tenant comes from
// the context.
type CreateInput struct {
	UserID            string
	Category          string
	Type              Type
	Priority          Priority
	Title             string
	Message           string
	Data              map[string]any
	ExpiresAt         *time.Time
	RetentionDate     *time.Time
	SensitiveData     bool
	Email             string
	Phone             string
	TemplateID        string
	TemplateVariables map[string]any
}

func (in CreateInput) validate() error {
	switch {
	case strings.TrimSpace(in.UserID) == "":
		return errorf(ErrInvalidInput, "user id is required")
	case strings.TrimSpace(in.Category) == "":
		return errorf(ErrInvalidInput, "category is required")
	case in.Type != "" && !in.Type.Valid():
		return errorf(ErrInvalidInput, "unknown type %q", in.Type)
	case in.Priority != "" && !in.Priority.Valid():
		return errorf(ErrInvalidInput, "unknown priority %q", in.Priority)
	}
	return nil
}

func payloadFor(n *Notification, in CreateInput) Payload {
	return Payload{
		TenantID:          n.TenantID,
		UserID:            n.UserID,
		NotificationID:    n.ID,
		Category:          n.Category,
		Type:              n.Type,
		Priority:          n.Priority,
		Title:             n.Title,
		Message:           n.Message,
		Data:              n.Data,
		ExpiresAt:         n.ExpiresAt,
		SensitiveData:     n.SensitiveData,
		Email:             in.Email,
		Phone:             in.Phone,
		TemplateID:        in.TemplateID,
		TemplateVariables: in.TemplateVariables,
	}
}

// BulkResult summarizes SendToTenant.
type BulkResult struct {
	Total    int              `json:"total"`
	Created  []uuid.UUID      `json:"created"`
	Failures map[string]error `json:"-"` // by user id
}

// Failed returns the number of users that did not get a notification.
func (r *BulkResult) Failed() int { return len(r.Failures) }
