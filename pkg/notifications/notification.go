package notifications

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// Type represents the notification severity.
type Type string

const (
	// Notification types.
	TypeInfo    Type = "info"
	TypeSuccess Type = "success"
	TypeWarning Type = "warning"
	TypeError   Type = "error"
)

// Valid reports whether t is a known type.
func (t Type) Valid() bool {
	switch t {
	case TypeInfo, TypeSuccess, TypeWarning, TypeError:
		return true
	}
	return false
}

// Priority is the four-level urgency of a notification.
type Priority string

const (
	// Priority levels, lowest first.
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// ChannelType identifies a delivery channel.
type ChannelType string

const (
	// Supported channels.
	ChannelInApp ChannelType = "IN_APP"
	ChannelEmail ChannelType = "EMAIL"
	ChannelSMS   ChannelType = "SMS"
)

// ChannelOrder is the fixed order channels are attempted in.
var ChannelOrder = []ChannelType{ChannelInApp, ChannelEmail, ChannelSMS}

// Valid reports whether c is a supported channel.
func (c ChannelType) Valid() bool {
	return slices.Contains(ChannelOrder, c)
}

const (
	// Built-in categories. Callers may use any other category name.
	CategorySystem         = "system"
	CategorySecurity       = "security"
	CategoryBilling        = "billing"
	CategoryTeam           = "team"
	CategoryProductUpdates = "product_updates"
)

// KnownCategories are seeded by CreateDefaultPreferences.
var KnownCategories = []string{
	CategorySystem,
	CategorySecurity,
	CategoryBilling,
	CategoryTeam,
	CategoryProductUpdates,
}

// Notification is one logical event addressed to a single user of a tenant.
type Notification struct {
	ID            uuid.UUID      `json:"id"`
	TenantID      uuid.UUID      `json:"tenant_id"`
	UserID        string         `json:"user_id"`
	Category      string         `json:"category"`
	Type          Type           `json:"type"`
	Priority      Priority       `json:"priority"`
	Title         string         `json:"title"`
	Message       string         `json:"message"`
	Data          map[string]any `json:"data,omitempty"`
	ChannelsSent  []ChannelType  `json:"channels_sent"`
	SensitiveData bool           `json:"sensitive_data"`
	CreatedAt     time.Time      `json:"created_at"`
	ExpiresAt     *time.Time     `json:"expires_at,omitempty"`
	RetentionDate *time.Time     `json:"retention_date,omitempty"`
	ReadAt        *time.Time     `json:"read_at,omitempty"`
	DeletedAt     *time.Time     `json:"deleted_at,omitempty"`
	DeletedBy     string         `json:"deleted_by,omitempty"`
}

// IsExpired returns true if the notification has expired at now.
func (n *Notification) IsExpired(now time.Time) bool {
	return n.ExpiresAt != nil && now.After(*n.ExpiresAt)
}

// IsRead reports whether ReadAt is set.
func (n *Notification) IsRead() bool {
	return n.ReadAt != nil
}

// AddChannelsSent merges channels into ChannelsSent keeping ChannelOrder.
// Existing entries are never removed.
func (n *Notification) AddChannelsSent(channels ...ChannelType) {
	n.ChannelsSent = mergeChannels(n.ChannelsSent, channels)
}

func mergeChannels(current, add []ChannelType) []ChannelType {
	out := make([]ChannelType, 0, len(ChannelOrder))
	for _, c := range ChannelOrder {
		if slices.Contains(current, c) || slices.Contains(add, c) {
			out = append(out, c)
		}
	}
	return out
}
