package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/audit"
	"github.com/dmitrymomot/notifykit/pkg/eventbus"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/tenant"
)

// ChannelResolver is satisfied by *PreferenceResolver.
type ChannelResolver interface {
	GetEnabledChannels(ctx context.Context, userID, category string) ([]ChannelType, error)
}

// RateGuard is satisfied by *ratelimit.Guard.
type RateGuard interface {
	EnforceNotification(ctx context.Context, tenantID, userID, category string) error
}

// ManagerStore is the storage the Manager needs.
type ManagerStore interface {
	NotificationStore
	DeliveryLogStore
}

// Manager creates notifications and fans them out to the enabled channels.
type Manager struct {
	store    ManagerStore
	registry *Registry
	resolver ChannelResolver
	guard    RateGuard
	users    tenant.UserDirectory
	events   eventbus.Publisher
	audit    audit.Logger
	emitter  Emitter
	logger   *slog.Logger
	now      func() time.Time
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithManagerLogger sets the logger.
func WithManagerLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithRateGuard enables per-category rate limiting in Create.
func WithRateGuard(g RateGuard) ManagerOption {
	return func(m *Manager) { m.guard = g }
}

// WithUserDirectory is required by SendToTenant.
func WithUserDirectory(d tenant.UserDirectory) ManagerOption {
	return func(m *Manager) { m.users = d }
}

// WithPublisher sets where NotificationCreated is published.
func WithPublisher(p eventbus.Publisher) ManagerOption {
	return func(m *Manager) {
		if p != nil {
			m.events = p
		}
	}
}

// WithAuditLogger records creations, reads and deletions.
func WithAuditLogger(a audit.Logger) ManagerOption {
	return func(m *Manager) { m.audit = a }
}

// WithManagerEmitter pushes unread counts after read and delete operations.
func WithManagerEmitter(e Emitter) ManagerOption {
	return func(m *Manager) {
		if e != nil {
			m.emitter = e
		}
	}
}

func WithManagerClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager creates a Manager. Only store, registry and resolver are
// required; events, push and audit default to no-ops.
func NewManager(store ManagerStore, registry *Registry, resolver ChannelResolver, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:    store,
		registry: registry,
		resolver: resolver,
		events:   eventbus.Nop{},
		emitter:  NopEmitter{},
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(logger.Component("notifications.manager"))
	return m
}

// Create persists a notification and dispatches it. See CreateWithResults.
func (m *Manager) Create(ctx context.Context, in CreateInput) (*Notification, error) {
	n, _, err := m.CreateWithResults(ctx, in)
	return n, err
}

// CreateWithResults persists a notification, attempts every enabled channel
// in order and records the successful ones in ChannelsSent. It fails only
// before the notification is written: missing tenant, invalid input, rate
// limit, preference lookup or the insert itself. Channel failures are
// reported in the results.
func (m *Manager) CreateWithResults(ctx context.Context, in CreateInput) (*Notification, []ChannelResult, error) {
	tenantID, err := tenant.RequireID(ctx)
	if err != nil {
		return nil, nil, err
	}
	if err := in.validate(); err != nil {
		return nil, nil, err
	}
	if m.guard != nil {
		if err := m.guard.EnforceNotification(ctx, tenantID.String(), in.UserID, in.Category); err != nil {
			return nil, nil, err
		}
	}

	channels, err := m.resolver.GetEnabledChannels(ctx, in.UserID, in.Category)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve channels: %w", err)
	}

	n := m.newNotification(tenantID, in)
	if err := m.store.CreateNotification(ctx, n); err != nil {
		return nil, nil, fmt.Errorf("failed to store notification: %w", err)
	}

	payload := payloadFor(n, in)
	results := make([]ChannelResult, 0, len(channels))
	var sent []ChannelType
	for _, ct := range channels {
		res := m.dispatch(ctx, ct, payload)
		results = append(results, res)
		if res.Outcome == OutcomeSent {
			sent = append(sent, ct)
		}
	}

	if len(sent) > 0 {
		// The row already exists; a failed update is logged, not returned.
		if err := m.store.AddChannelsSent(ctx, tenantID, n.ID, sent); err != nil {
			m.logger.ErrorContext(ctx, "failed to record sent channels",
				logger.NotificationID(n.ID.String()),
				logger.Error(err),
			)
		}
		n.AddChannelsSent(sent...)
	}

	m.events.Publish(ctx, NotificationCreated{
		TenantID:       tenantID,
		NotificationID: n.ID,
		UserID:         n.UserID,
		Category:       n.Category,
		Results:        results,
	})
	m.auditLog(ctx, "notification.created", n.ID, n.UserID,
		audit.WithMetadata("category", n.Category),
		audit.WithMetadata("channels_sent", channelNames(n.ChannelsSent)),
	)

	return n, results, nil
}

func (m *Manager) newNotification(tenantID uuid.UUID, in CreateInput) *Notification {
	n := &Notification{
		ID:            uuid.New(),
		TenantID:      tenantID,
		UserID:        in.UserID,
		Category:      in.Category,
		Type:          in.Type,
		Priority:      in.Priority,
		Title:         in.Title,
		Message:       in.Message,
		Data:          in.Data,
		ChannelsSent:  []ChannelType{},
		SensitiveData: in.SensitiveData,
		CreatedAt:     m.now(),
		ExpiresAt:     in.ExpiresAt,
		RetentionDate: in.RetentionDate,
	}
	if n.Type == "" {
		n.Type = TypeInfo
	}
	if n.Priority == "" {
		n.Priority = PriorityMedium
	}
	return n
}

// dispatch runs one channel. Nothing it does can escape as an error or panic.
func (m *Manager) dispatch(ctx context.Context, ct ChannelType, p Payload) (res ChannelResult) {
	res.Channel = ct
	defer func() {
		if r := recover(); r != nil {
			m.logger.ErrorContext(ctx, "channel panicked",
				logger.Event("channel.failure"),
				logger.Channel(string(ct)),
				logger.NotificationID(p.NotificationID.String()),
				slog.Any("panic", r),
			)
			res = ChannelResult{Channel: ct, Outcome: OutcomeFailed, Reason: fmt.Sprintf("panic: %v", r)}
		}
	}()

	ch, ok := m.registry.Get(ct)
	switch {
	case !ok:
		return m.skip(ctx, ct, p, ReasonNotRegistered)
	case !ch.IsAvailable(ctx):
		return m.skip(ctx, ct, p, ReasonUnavailable)
	case !ch.Validate(p):
		return m.skip(ctx, ct, p, ReasonInvalidPayload)
	}

	sr := ch.Send(ctx, p)
	res.MessageID = sr.MessageID
	res.DeliveryLogID = sr.DeliveryLogID
	if !sr.Success {
		res.Outcome = OutcomeFailed
		if sr.Error != nil {
			res.Reason = sr.Error.Error()
		}
		return res
	}
	res.Outcome = OutcomeSent
	return res
}

func (m *Manager) skip(ctx context.Context, ct ChannelType, p Payload, reason string) ChannelResult {
	m.logger.InfoContext(ctx, "channel skipped",
		logger.Event("channel.skipped"),
		logger.Channel(string(ct)),
		logger.NotificationID(p.NotificationID.String()),
		logger.Reason(reason),
	)
	return ChannelResult{Channel: ct, Outcome: OutcomeSkipped, Reason: reason}
}

// SendToTenant creates one notification per tenant user. Per-user failures
// are collected; the fan-out never stops early.
func (m *Manager) SendToTenant(ctx context.Context, in CreateInput) (*BulkResult, error) {
	tenantID, err := tenant.RequireID(ctx)
	if err != nil {
		return nil, err
	}
	if m.users == nil {
		return nil, errors.New("notifications: user directory is not configured")
	}
	userIDs, err := m.users.ListUserIDs(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list tenant users: %w", err)
	}

	res := &BulkResult{Total: len(userIDs), Failures: make(map[string]error)}
	for _, userID := range userIDs {
		input := in
		input.UserID = userID
		n, err := m.Create(ctx, input)
		if err != nil {
			res.Failures[userID] = err
			m.logger.WarnContext(ctx, "tenant fan-out failed for user", logger.UserID(userID), logger.Error(err))
			continue
		}
		res.Created = append(res.Created, n.ID)
	}

	m.logger.InfoContext(ctx, "tenant fan-out finished",
		logger.Category(in.Category),
		slog.Int("total", res.Total),
		slog.Int("created", len(res.Created)),
		slog.Int("failed", res.Failed()),
	)
	return res, nil
}

// Get returns one notification of the user in the tenant from ctx.
func (m *Manager) Get(ctx context.Context, userID string, id uuid.UUID) (*Notification, error) {
	tenantID, err := tenant.RequireID(ctx)
	if err != nil {
		return nil, err
	}
	return m.store.GetNotification(ctx, tenantID, userID, id)
}

// List returns the user's notifications, newest first. Expired and deleted
// rows are hidden.
func (m *Manager) List(ctx context.Context, userID string, opts ListOptions) ([]Notification, error) {
	tenantID, err := tenant.RequireID(ctx)
	if err != nil {
		return nil, err
	}
	return m.store.ListNotifications(ctx, tenantID, userID, opts)
}

func (m *Manager) CountUnread(ctx context.Context, userID string) (int, error) {
	tenantID, err := tenant.RequireID(ctx)
	if err != nil {
		return 0, err
	}
	return m.store.CountUnread(ctx, tenantID, userID)
}

// MarkRead marks the given notifications read and pushes the new unread
// count. Unknown ids are ignored.
func (m *Manager) MarkRead(ctx context.Context, userID string, ids ...uuid.UUID) error {
	tenantID, err := tenant.RequireID(ctx)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	updated, err := m.store.MarkRead(ctx, tenantID, userID, m.now(), ids...)
	if err != nil {
		return err
	}
	if updated > 0 {
		m.pushUnreadCount(ctx, tenantID, userID)
	}
	return nil
}

// MarkAllRead marks every unread notification of the user as read.
func (m *Manager) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	tenantID, err := tenant.RequireID(ctx)
	if err != nil {
		return 0, err
	}
	updated, err := m.store.MarkAllRead(ctx, tenantID, userID, m.now())
	if err != nil {
		return 0, err
	}
	if updated > 0 {
		m.pushUnreadCount(ctx, tenantID, userID)
	}
	return updated, nil
}

// Delete soft deletes notifications; deletedBy is recorded on each row.
func (m *Manager) Delete(ctx context.Context, userID, deletedBy string, ids ...uuid.UUID) (int64, error) {
	tenantID, err := tenant.RequireID(ctx)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	deleted, err := m.store.SoftDelete(ctx, tenantID, userID, deletedBy, m.now(), ids...)
	if err != nil {
		return 0, err
	}
	for _, id := range deleted {
		m.auditLog(ctx, "notification.deleted", id, userID, audit.WithMetadata("deleted_by", deletedBy))
	}
	if len(deleted) > 0 {
		m.pushUnreadCount(ctx, tenantID, userID)
	}
	return int64(len(deleted)), nil
}

// DeliveryLogs returns the per-channel delivery state of a notification.
func (m *Manager) DeliveryLogs(ctx context.Context, notificationID uuid.UUID) ([]DeliveryLog, error) {
	tenantID, err := tenant.RequireID(ctx)
	if err != nil {
		return nil, err
	}
	return m.store.ListDeliveryLogs(ctx, tenantID, notificationID)
}

// PurgeRetention hard deletes notifications past their retention date in
// every tenant. It backs the scheduled retention job.
func (m *Manager) PurgeRetention(ctx context.Context) (int64, error) {
	purged, err := m.store.PurgeRetention(ctx, m.now())
	if err != nil {
		return 0, fmt.Errorf("purge retention: %w", err)
	}
	m.logger.InfoContext(ctx, "retention purge finished", slog.Int64("purged", purged))
	return purged, nil
}

func (m *Manager) pushUnreadCount(ctx context.Context, tenantID uuid.UUID, userID string) {
	count, err := m.store.CountUnread(ctx, tenantID, userID)
	if err != nil {
		m.logger.WarnContext(ctx, "failed to count unread notifications", logger.UserID(userID), logger.Error(err))
		return
	}
	if err := m.emitter.EmitUnreadCount(ctx, userID, count); err != nil {
		m.logger.WarnContext(ctx, "unread count push failed", logger.UserID(userID), logger.Error(err))
	}
}

func (m *Manager) auditLog(ctx context.Context, action string, id uuid.UUID, userID string, opts ...audit.EventOption) {
	if m.audit == nil {
		return
	}
	opts = append(opts, audit.WithResource("notification", id.String()), audit.WithUserID(userID))
	if err := m.audit.Log(ctx, action, opts...); err != nil {
		m.logger.WarnContext(ctx, "audit log failed", slog.String("action", action), logger.Error(err))
	}
}

func channelNames(cs []ChannelType) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = string(c)
	}
	return out
}
