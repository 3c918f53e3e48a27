package notifications

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

type deliveryKey struct {
	notificationID uuid.UUID
	channel        ChannelType
}

type preferenceKey struct {
	tenantID uuid.UUID
	userID   string
	category string
}

// MemoryStorage implements Storage in memory.
// Suitable for development and testing.
type MemoryStorage struct {
	mu            sync.RWMutex
	notifications map[uuid.UUID]*Notification
	logs          map[deliveryKey]*DeliveryLog
	preferences   map[preferenceKey]Preference
	settings      map[uuid.UUID]ProviderSettings
}

// NewMemoryStorage creates an empty store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		notifications: make(map[uuid.UUID]*Notification),
		logs:          make(map[deliveryKey]*DeliveryLog),
		preferences:   make(map[preferenceKey]Preference),
		settings:      make(map[uuid.UUID]ProviderSettings),
	}
}

func (s *MemoryStorage) Ping(context.Context) error { return nil }

func (s *MemoryStorage) CreateNotification(_ context.Context, n *Notification) error {
	if n == nil || n.ID == uuid.Nil || n.TenantID == uuid.Nil || n.UserID == "" {
		return ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications[n.ID] = cloneNotification(n)
	return nil
}

func (s *MemoryStorage) AddChannelsSent(_ context.Context, tenantID, id uuid.UUID, channels []ChannelType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok || n.TenantID != tenantID {
		return ErrNotificationNotFound
	}
	n.AddChannelsSent(channels...)
	return nil
}

func (s *MemoryStorage) GetNotification(_ context.Context, tenantID uuid.UUID, userID string, id uuid.UUID) (*Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.notifications[id]
	if !ok || !owned(n, tenantID, userID) {
		return nil, ErrNotificationNotFound
	}
	return cloneNotification(n), nil
}

// ListNotifications filters, sorts newest first and pages.
func (s *MemoryStorage) ListNotifications(_ context.Context, tenantID uuid.UUID, userID string, opts ListOptions) ([]Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	var filtered []Notification
	for _, n := range s.notifications {
		if !owned(n, tenantID, userID) || n.IsExpired(now) {
			continue
		}
		if opts.OnlyUnread && n.IsRead() {
			continue
		}
		if len(opts.Types) > 0 && !slices.Contains(opts.Types, n.Type) {
			continue
		}
		if len(opts.Categories) > 0 && !slices.Contains(opts.Categories, n.Category) {
			continue
		}
		if opts.Since != nil && !n.CreatedAt.After(*opts.Since) {
			continue
		}
		filtered = append(filtered, *cloneNotification(n))
	}

	slices.SortFunc(filtered, func(a, b Notification) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	start := min(opts.Offset, len(filtered))
	end := len(filtered)
	if opts.Limit > 0 {
		end = min(start+opts.Limit, end)
	}
	return filtered[start:end], nil
}

func (s *MemoryStorage) MarkRead(_ context.Context, tenantID uuid.UUID, userID string, at time.Time, ids ...uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var updated int64
	for _, id := range ids {
		n, ok := s.notifications[id]
		if !ok || !owned(n, tenantID, userID) || n.IsRead() {
			continue
		}
		n.ReadAt = &at
		updated++
	}
	return updated, nil
}

func (s *MemoryStorage) MarkAllRead(_ context.Context, tenantID uuid.UUID, userID string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var updated int64
	for _, n := range s.notifications {
		if owned(n, tenantID, userID) && !n.IsRead() {
			n.ReadAt = &at
			updated++
		}
	}
	return updated, nil
}

func (s *MemoryStorage) CountUnread(_ context.Context, tenantID uuid.UUID, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := time.Now()
	count := 0
	for _, n := range s.notifications {
		if owned(n, tenantID, userID) && !n.IsRead() && !n.IsExpired(now) {
			count++
		}
	}
	return count, nil
}

// SoftDelete marks owned rows deleted and returns their ids.
func (s *MemoryStorage) SoftDelete(_ context.Context, tenantID uuid.UUID, userID, deletedBy string, at time.Time, ids ...uuid.UUID) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted []uuid.UUID
	for _, id := range ids {
		n, ok := s.notifications[id]
		if !ok || !owned(n, tenantID, userID) {
			continue
		}
		n.DeletedAt = &at
		n.DeletedBy = deletedBy
		deleted = append(deleted, id)
	}
	return deleted, nil
}

// PurgeRetention drops expired rows and their delivery logs.
func (s *MemoryStorage) PurgeRetention(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var purged int64
	for id, n := range s.notifications {
		if n.RetentionDate == nil || !n.RetentionDate.Before(now) {
			continue
		}
		delete(s.notifications, id)
		for _, c := range ChannelOrder {
			delete(s.logs, deliveryKey{id, c})
		}
		purged++
	}
	return purged, nil
}

// AcquireDeliveryLog creates the PENDING log or reopens a FAILED one.
func (s *MemoryStorage) AcquireDeliveryLog(_ context.Context, tenantID, notificationID uuid.UUID, channel ChannelType) (*DeliveryLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[notificationID]
	if !ok || n.TenantID != tenantID {
		return nil, ErrNotificationNotFound
	}

	now := time.Now()
	key := deliveryKey{notificationID, channel}
	l, ok := s.logs[key]
	if !ok {
		l = &DeliveryLog{
			ID:             uuid.New(),
			TenantID:       tenantID,
			NotificationID: notificationID,
			Channel:        channel,
			Status:         DeliveryPending,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		s.logs[key] = l
	}
	l.reopen(now)
	return cloneLog(l), nil
}

func (s *MemoryStorage) MarkDeliverySent(_ context.Context, tenantID, id uuid.UUID, provider, messageID string, at time.Time) (*DeliveryLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.findLog(tenantID, id)
	if l == nil {
		return nil, ErrDeliveryLogNotFound
	}
	if err := l.markSent(provider, messageID, at); err != nil {
		return nil, err
	}
	return cloneLog(l), nil
}

func (s *MemoryStorage) MarkDeliveryFailed(_ context.Context, tenantID, id uuid.UUID, provider, reason string, at time.Time) (*DeliveryLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.findLog(tenantID, id)
	if l == nil {
		return nil, ErrDeliveryLogNotFound
	}
	if err := l.markFailed(provider, reason, at); err != nil {
		return nil, err
	}
	return cloneLog(l), nil
}

func (s *MemoryStorage) GetDeliveryLog(_ context.Context, tenantID, notificationID uuid.UUID, channel ChannelType) (*DeliveryLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.logs[deliveryKey{notificationID, channel}]
	if !ok || l.TenantID != tenantID {
		return nil, ErrDeliveryLogNotFound
	}
	return cloneLog(l), nil
}

func (s *MemoryStorage) ListDeliveryLogs(_ context.Context, tenantID, notificationID uuid.UUID) ([]DeliveryLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]DeliveryLog, 0, len(ChannelOrder))
	for _, c := range ChannelOrder {
		if l, ok := s.logs[deliveryKey{notificationID, c}]; ok && l.TenantID == tenantID {
			out = append(out, *cloneLog(l))
		}
	}
	return out, nil
}

func (s *MemoryStorage) findLog(tenantID, id uuid.UUID) *DeliveryLog {
	for _, l := range s.logs {
		if l.ID == id && l.TenantID == tenantID {
			return l
		}
	}
	return nil
}

func (s *MemoryStorage) GetPreference(_ context.Context, tenantID uuid.UUID, userID, category string) (*Preference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.preferences[preferenceKey{tenantID, userID, category}]
	if !ok {
		return nil, ErrPreferenceNotFound
	}
	return &p, nil
}

func (s *MemoryStorage) ListPreferences(_ context.Context, tenantID uuid.UUID, userID string) ([]Preference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Preference
	for k, p := range s.preferences {
		if k.tenantID == tenantID && k.userID == userID {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b Preference) int {
		return cmp.Compare(a.Category, b.Category)
	})
	return out, nil
}

func (s *MemoryStorage) InsertPreferenceIfAbsent(_ context.Context, p Preference) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := preferenceKey{p.TenantID, p.UserID, p.Category}
	if _, ok := s.preferences[key]; ok {
		return false, nil
	}
	s.preferences[key] = p
	return true, nil
}

// UpsertPreference applies upd on top of the stored row or the defaults.
func (s *MemoryStorage) UpsertPreference(_ context.Context, tenantID uuid.UUID, userID, category string, upd PreferenceUpdate) (*Preference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	key := preferenceKey{tenantID, userID, category}
	p, ok := s.preferences[key]
	if !ok {
		p = defaultPreference(tenantID, userID, category, now)
	}
	upd.apply(&p)
	p.UpdatedAt = now
	s.preferences[key] = p
	return &p, nil
}

func (s *MemoryStorage) GetProviderSettings(_ context.Context, tenantID uuid.UUID) (*ProviderSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ps, ok := s.settings[tenantID]
	if !ok {
		return nil, ErrProviderSettingsNotFound
	}
	return &ps, nil
}

func (s *MemoryStorage) SaveProviderSettings(_ context.Context, ps ProviderSettings) error {
	if ps.TenantID == uuid.Nil {
		return ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ps.UpdatedAt = time.Now()
	s.settings[ps.TenantID] = ps
	return nil
}

// owned hides soft-deleted rows and rows of other tenants or users.
func owned(n *Notification, tenantID uuid.UUID, userID string) bool {
	return n.TenantID == tenantID && n.UserID == userID && n.DeletedAt == nil
}

func cloneNotification(n *Notification) *Notification {
	c := *n
	c.Data = maps.Clone(n.Data)
	c.ChannelsSent = slices.Clone(n.ChannelsSent)
	if c.ChannelsSent == nil {
		c.ChannelsSent = []ChannelType{}
	}
	return &c
}

func cloneLog(l *DeliveryLog) *DeliveryLog {
	c := *l
	return &c
}
