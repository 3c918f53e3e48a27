package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// NotificationStore persists notifications. Every method filters by tenant.
type NotificationStore interface {
	CreateNotification(ctx context.Context, n *Notification) error
	// AddChannelsSent merges channels into channels_sent; entries are never removed.
	AddChannelsSent(ctx context.Context, tenantID, id uuid.UUID, channels []ChannelType) error
	GetNotification(ctx context.Context, tenantID uuid.UUID, userID string, id uuid.UUID) (*Notification, error)
	ListNotifications(ctx context.Context, tenantID uuid.UUID, userID string, opts ListOptions) ([]Notification, error)
	MarkRead(ctx context.Context, tenantID uuid.UUID, userID string, at time.Time, ids ...uuid.UUID) (int64, error)
	MarkAllRead(ctx context.Context, tenantID uuid.UUID, userID string, at time.Time) (int64, error)
	CountUnread(ctx context.Context, tenantID uuid.UUID, userID string) (int, error)
	// SoftDelete returns the ids it actually marked deleted. Rows of other
	// users or tenants and rows already deleted are left out.
	SoftDelete(ctx context.Context, tenantID uuid.UUID, userID, deletedBy string, at time.Time, ids ...uuid.UUID) ([]uuid.UUID, error)
	// PurgeRetention hard deletes rows whose retention date is before now,
	// across all tenants.
	PurgeRetention(ctx context.Context, now time.Time) (int64, error)
}

// DeliveryLogStore persists delivery logs, one row per notification and channel.
type DeliveryLogStore interface {
	// AcquireDeliveryLog returns the log for the pair, creating it PENDING
	// when absent and moving a FAILED log back to PENDING.
	AcquireDeliveryLog(ctx context.Context, tenantID, notificationID uuid.UUID, channel ChannelType) (*DeliveryLog, error)
	MarkDeliverySent(ctx context.Context, tenantID, id uuid.UUID, provider, messageID string, at time.Time) (*DeliveryLog, error)
	MarkDeliveryFailed(ctx context.Context, tenantID, id uuid.UUID, provider, reason string, at time.Time) (*DeliveryLog, error)
	GetDeliveryLog(ctx context.Context, tenantID, notificationID uuid.UUID, channel ChannelType) (*DeliveryLog, error)
	ListDeliveryLogs(ctx context.Context, tenantID, notificationID uuid.UUID) ([]DeliveryLog, error)
}

// PreferenceStore persists per-category channel preferences.
type PreferenceStore interface {
	GetPreference(ctx context.Context, tenantID uuid.UUID, userID, category string) (*Preference, error)
	ListPreferences(ctx context.Context, tenantID uuid.UUID, userID string) ([]Preference, error)
	// InsertPreferenceIfAbsent reports whether p was inserted.
	InsertPreferenceIfAbsent(ctx context.Context, p Preference) (bool, error)
	// UpsertPreference applies upd on top of the stored row, or on top of
	// the defaults when no row exists, in one atomic step.
	UpsertPreference(ctx context.Context, tenantID uuid.UUID, userID, category string, upd PreferenceUpdate) (*Preference, error)
}

// ProviderSettingsStore persists tenant provider overrides.
type ProviderSettingsStore interface {
	GetProviderSettings(ctx context.Context, tenantID uuid.UUID) (*ProviderSettings, error)
	SaveProviderSettings(ctx context.Context, s ProviderSettings) error
}

// Storage is the full persistence surface. MemoryStorage and PostgresStorage
// implement it.
type Storage interface {
	NotificationStore
	DeliveryLogStore
	PreferenceStore
	ProviderSettingsStore
	Ping(ctx context.Context) error
}

// ListOptions filters and paginates inbox listings.
type ListOptions struct {
	Limit      int        // 0 = no limit
	Offset     int
	OnlyUnread bool
	Types      []Type
	Categories []string
	Since      *time.Time // created strictly after
}

var (
	_ Storage = (*MemoryStorage)(nil)
	_ Storage = (*PostgresStorage)(nil)
)
