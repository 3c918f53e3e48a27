package notifications

import (
	"time"

	"github.com/google/uuid"
)

// DefaultChannels apply when a user has no preference row for a category.
var DefaultChannels = []ChannelType{ChannelInApp, ChannelEmail}

// Preference holds a user's channel switches for one category.
type Preference struct {
	TenantID     uuid.UUID `json:"tenant_id"`
	UserID       string    `json:"user_id"`
	Category     string    `json:"category"`
	InAppEnabled bool      `json:"in_app_enabled"`
	EmailEnabled bool      `json:"email_enabled"`
	SMSEnabled   bool      `json:"sms_enabled"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func defaultPreference(tenantID uuid.UUID, userID, category string, now time.Time) Preference {
	return Preference{
		TenantID:     tenantID,
		UserID:       userID,
		Category:     category,
		InAppEnabled: true,
		EmailEnabled: true,
		SMSEnabled:   false,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Channels returns the enabled channels in ChannelOrder.
func (p Preference) Channels() []ChannelType {
	out := make([]ChannelType, 0, len(ChannelOrder))
	if p.InAppEnabled {
		out = append(out, ChannelInApp)
	}
	if p.EmailEnabled {
		out = append(out, ChannelEmail)
	}
	if p.SMSEnabled {
		out = append(out, ChannelSMS)
	}
	return out
}

// PreferenceUpdate changes only the fields that are set.
type PreferenceUpdate struct {
	InAppEnabled *bool `json:"in_app_enabled,omitempty"`
	EmailEnabled *bool `json:"email_enabled,omitempty"`
	SMSEnabled   *bool `json:"sms_enabled,omitempty"`
}

func (u PreferenceUpdate) apply(p *Preference) {
	if u.InAppEnabled != nil {
		p.InAppEnabled = *u.InAppEnabled
	}
	if u.EmailEnabled != nil {
		p.EmailEnabled = *u.EmailEnabled
	}
	if u.SMSEnabled != nil {
		p.SMSEnabled = *u.SMSEnabled
	}
}

func (u PreferenceUpdate) empty() bool {
	return u.InAppEnabled == nil && u.EmailEnabled == nil && u.SMSEnabled == nil
}
