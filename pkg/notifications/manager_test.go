package notifications_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/audit"
	"github.com/dmitrymomot/notifykit/pkg/eventbus"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/ratelimit"
	"github.com/dmitrymomot/notifykit/pkg/tenant"
)

type managerFixture struct {
	store    *notifications.MemoryStorage
	registry *notifications.Registry
	resolver *notifications.PreferenceResolver
	manager  *notifications.Manager
	audit    *audit.MemoryStorage
	bus      *eventbus.Bus

	mu      sync.Mutex
	created []notifications.NotificationCreated
}

func newManagerFixture(t *testing.T, channels []notifications.Channel, opts ...notifications.ManagerOption) *managerFixture {
	t.Helper()
	f := &managerFixture{
		store:    notifications.NewMemoryStorage(),
		registry: notifications.NewRegistry(channels...),
		audit:    audit.NewMemoryStorage(),
		bus:      eventbus.New(eventbus.WithLogger(discardLogger())),
	}
	f.resolver = notifications.NewPreferenceResolver(f.store, notifications.WithPreferenceLogger(discardLogger()))
	eventbus.On(f.bus, func(_ context.Context, e notifications.NotificationCreated) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.created = append(f.created, e)
		return nil
	})

	auditLog, _ := audit.NewLogger(f.audit)
	base := []notifications.ManagerOption{
		notifications.WithManagerLogger(discardLogger()),
		notifications.WithPublisher(f.bus),
		notifications.WithAuditLogger(auditLog),
	}
	f.manager = notifications.NewManager(f.store, f.registry, f.resolver, append(base, opts...)...)
	return f
}

func (f *managerFixture) createdEvents() []notifications.NotificationCreated {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]notifications.NotificationCreated(nil), f.created...)
}

func input(userID string) notifications.CreateInput {
	return notifications.CreateInput{
		UserID:   userID,
		Category: notifications.CategorySystem,
		Title:    "Deploy finished",
		Message:  "Build 42 is live",
	}
}

func TestManager_Create(t *testing.T) {
	t.Parallel()

	t.Run("records only successful channels", func(t *testing.T) {
		t.Parallel()
		ctx, tid := tenantCtx(t)

		inApp := okChannel(notifications.ChannelInApp)
		mail := okChannel(notifications.ChannelEmail)
		mail.available = false
		f := newManagerFixture(t, []notifications.Channel{inApp, mail})

		n, results, err := f.manager.CreateWithResults(ctx, input("u1"))
		require.NoError(t, err)
		assert.Equal(t, tid, n.TenantID)
		assert.Equal(t, []notifications.ChannelType{notifications.ChannelInApp}, n.ChannelsSent)
		assert.Equal(t, notifications.TypeInfo, n.Type)
		assert.Equal(t, notifications.PriorityMedium, n.Priority)

		require.Len(t, results, 2)
		assert.Equal(t, notifications.OutcomeSent, results[0].Outcome)
		assert.Equal(t, notifications.OutcomeSkipped, results[1].Outcome)
		assert.Equal(t, notifications.ReasonUnavailable, results[1].Reason)
		assert.Equal(t, 0, mail.Sends())

		stored, err := f.store.GetNotification(ctx, tid, "u1", n.ID)
		require.NoError(t, err)
		assert.Equal(t, []notifications.ChannelType{notifications.ChannelInApp}, stored.ChannelsSent)

		events := f.createdEvents()
		require.Len(t, events, 1)
		assert.Equal(t, n.ID, events[0].NotificationID)

		entries, err := f.audit.Query(ctx, audit.Criteria{Action: "notification.created"})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, n.ID.String(), entries[0].ResourceID)
	})

	t.Run("disabled channel is never attempted", func(t *testing.T) {
		t.Parallel()
		ctx, _ := tenantCtx(t)

		inApp := okChannel(notifications.ChannelInApp)
		mail := okChannel(notifications.ChannelEmail)
		text := okChannel(notifications.ChannelSMS)
		f := newManagerFixture(t, []notifications.Channel{inApp, mail, text})

		_, err := f.resolver.UpdatePreference(ctx, "u1", notifications.CategorySystem,
			notifications.PreferenceUpdate{EmailEnabled: boolPtr(false)})
		require.NoError(t, err)

		n, err := f.manager.Create(ctx, input("u1"))
		require.NoError(t, err)
		assert.Equal(t, []notifications.ChannelType{notifications.ChannelInApp}, n.ChannelsSent)
		assert.Equal(t, 0, mail.Sends())
		assert.Equal(t, 0, text.Sends())
	})

	t.Run("oversized sms is skipped without enqueue", func(t *testing.T) {
		t.Parallel()
		ctx, tid := tenantCtx(t)

		store := notifications.NewMemoryStorage()
		enq := &mockEnqueuer{}
		enq.On("Healthy", mock.Anything).Return(true).Maybe()
		recipients := notifications.NewMemoryRecipients()
		recipients.Set(tid, "u1", notifications.Recipient{Phone: "+14155552671"})
		text := notifications.NewSMSChannel(store, recipients, enq, notifications.WithChannelLogger(discardLogger()))

		resolver := notifications.NewPreferenceResolver(store, notifications.WithPreferenceLogger(discardLogger()))
		_, err := resolver.UpdatePreference(ctx, "u1", notifications.CategorySystem,
			notifications.PreferenceUpdate{InAppEnabled: boolPtr(false), EmailEnabled: boolPtr(false), SMSEnabled: boolPtr(true)})
		require.NoError(t, err)
		manager := notifications.NewManager(store, notifications.NewRegistry(text), resolver,
			notifications.WithManagerLogger(discardLogger()))

		in := input("u1")
		in.Message = strings.Repeat("a", 1601)
		n, results, err := manager.CreateWithResults(ctx, in)
		require.NoError(t, err)

		require.Len(t, results, 1)
		assert.Equal(t, notifications.ChannelSMS, results[0].Channel)
		assert.Equal(t, notifications.OutcomeSkipped, results[0].Outcome)
		assert.Equal(t, notifications.ReasonInvalidPayload, results[0].Reason)
		assert.Empty(t, n.ChannelsSent)
		enq.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)

		_, err = store.GetDeliveryLog(ctx, tid, n.ID, notifications.ChannelSMS)
		assert.ErrorIs(t, err, notifications.ErrDeliveryLogNotFound)
	})

	t.Run("failed and invalid channels are excluded", func(t *testing.T) {
		t.Parallel()
		ctx, _ := tenantCtx(t)

		inApp := okChannel(notifications.ChannelInApp)
		inApp.valid = false
		mail := okChannel(notifications.ChannelEmail)
		mail.result = notifications.SendResult{Error: errors.New("smtp down")}
		f := newManagerFixture(t, []notifications.Channel{inApp, mail})

		n, results, err := f.manager.CreateWithResults(ctx, input("u1"))
		require.NoError(t, err)
		assert.Empty(t, n.ChannelsSent)
		assert.Equal(t, notifications.ReasonInvalidPayload, results[0].Reason)
		assert.Equal(t, notifications.OutcomeFailed, results[1].Outcome)
		assert.Equal(t, "smtp down", results[1].Reason)
	})

	t.Run("unregistered channel is skipped", func(t *testing.T) {
		t.Parallel()
		ctx, _ := tenantCtx(t)
		f := newManagerFixture(t, []notifications.Channel{okChannel(notifications.ChannelInApp)})

		n, results, err := f.manager.CreateWithResults(ctx, input("u1"))
		require.NoError(t, err)
		assert.Equal(t, []notifications.ChannelType{notifications.ChannelInApp}, n.ChannelsSent)
		assert.Equal(t, notifications.ReasonNotRegistered, results[1].Reason)
	})

	t.Run("channel panic is contained", func(t *testing.T) {
		t.Parallel()
		ctx, _ := tenantCtx(t)

		inApp := okChannel(notifications.ChannelInApp)
		inApp.panicMsg = "boom"
		mail := okChannel(notifications.ChannelEmail)
		f := newManagerFixture(t, []notifications.Channel{inApp, mail})

		n, results, err := f.manager.CreateWithResults(ctx, input("u1"))
		require.NoError(t, err)
		assert.Equal(t, []notifications.ChannelType{notifications.ChannelEmail}, n.ChannelsSent)
		assert.Equal(t, notifications.OutcomeFailed, results[0].Outcome)
		assert.Contains(t, results[0].Reason, "boom")
		assert.Equal(t, 1, mail.Sends())
	})

	t.Run("missing tenant has no side effects", func(t *testing.T) {
		t.Parallel()
		inApp := okChannel(notifications.ChannelInApp)
		f := newManagerFixture(t, []notifications.Channel{inApp})

		_, err := f.manager.Create(context.Background(), input("u1"))
		require.ErrorIs(t, err, tenant.ErrNoTenantInContext)
		assert.Equal(t, 0, inApp.Sends())
		assert.Empty(t, f.createdEvents())
	})

	t.Run("invalid input", func(t *testing.T) {
		t.Parallel()
		ctx, _ := tenantCtx(t)
		f := newManagerFixture(t, nil)

		in := input("u1")
		in.Priority = "critical"
		_, err := f.manager.Create(ctx, in)
		require.ErrorIs(t, err, notifications.ErrInvalidInput)

		_, err = f.manager.Create(ctx, notifications.CreateInput{Category: "system"})
		require.ErrorIs(t, err, notifications.ErrInvalidInput)
	})

	t.Run("store failure is returned", func(t *testing.T) {
		t.Parallel()
		ctx, _ := tenantCtx(t)
		inApp := okChannel(notifications.ChannelInApp)
		store := &failingStore{MemoryStorage: notifications.NewMemoryStorage(), err: errors.New("connection reset")}
		resolver := notifications.NewPreferenceResolver(store)
		m := notifications.NewManager(store, notifications.NewRegistry(inApp), resolver,
			notifications.WithManagerLogger(discardLogger()))

		_, err := m.Create(ctx, input("u1"))
		require.Error(t, err)
		assert.ErrorContains(t, err, "connection reset")
		assert.Equal(t, 0, inApp.Sends())
	})

	t.Run("rate limited", func(t *testing.T) {
		t.Parallel()
		ctx, _ := tenantCtx(t)

		sw, err := ratelimit.NewSlidingWindow(ratelimit.NewMemoryStore(), ratelimit.WithLogger(discardLogger()))
		require.NoError(t, err)
		var rejected int
		guard := ratelimit.NewGuard(sw,
			ratelimit.WithCategoryRule(notifications.CategorySystem, ratelimit.Rule{Window: time.Minute, MaxRequests: 2}),
			ratelimit.WithRejectionHook(func(context.Context, ratelimit.Domain, string) { rejected++ }),
			ratelimit.WithGuardLogger(discardLogger()),
		)
		inApp := okChannel(notifications.ChannelInApp)
		f := newManagerFixture(t, []notifications.Channel{inApp}, notifications.WithRateGuard(guard))

		for range 2 {
			_, err := f.manager.Create(ctx, input("u1"))
			require.NoError(t, err)
		}
		_, err = f.manager.Create(ctx, input("u1"))
		var exceeded *ratelimit.ExceededError
		require.ErrorAs(t, err, &exceeded)
		assert.Positive(t, exceeded.RetryAfterSeconds())
		assert.Equal(t, 1, rejected)
		assert.Equal(t, 2, inApp.Sends())

		// Other users keep their own window.
		_, err = f.manager.Create(ctx, input("u2"))
		require.NoError(t, err)
	})
}

type failingStore struct {
	*notifications.MemoryStorage
	err error
}

func (s *failingStore) CreateNotification(context.Context, *notifications.Notification) error {
	return s.err
}

type failingResolver struct{}

func (failingResolver) GetEnabledChannels(context.Context, string, string) ([]notifications.ChannelType, error) {
	return nil, errors.New("preferences unavailable")
}

func TestManager_Create_PreferenceFailure(t *testing.T) {
	t.Parallel()

	ctx, tid := tenantCtx(t)
	store := notifications.NewMemoryStorage()
	m := notifications.NewManager(store, notifications.NewRegistry(), failingResolver{},
		notifications.WithManagerLogger(discardLogger()))

	_, err := m.Create(ctx, input("u1"))
	require.ErrorContains(t, err, "preferences unavailable")

	list, err := store.ListNotifications(ctx, tid, "u1", notifications.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

type failingDirectory struct{}

func (failingDirectory) ListUserIDs(context.Context, uuid.UUID) ([]string, error) {
	return nil, errors.New("directory down")
}

func TestManager_SendToTenant(t *testing.T) {
	t.Parallel()

	t.Run("collects per-user failures", func(t *testing.T) {
		t.Parallel()
		ctx, tid := tenantCtx(t)

		dir := tenant.NewMemoryDirectory()
		dir.Add(tid, "u1", " ", "u3")
		dir.Add(uuid.New(), "other")

		inApp := okChannel(notifications.ChannelInApp)
		f := newManagerFixture(t, []notifications.Channel{inApp}, notifications.WithUserDirectory(dir))

		res, err := f.manager.SendToTenant(ctx, input(""))
		require.NoError(t, err)
		assert.Equal(t, 3, res.Total)
		assert.Len(t, res.Created, 2)
		assert.Equal(t, 1, res.Failed())
		assert.ErrorIs(t, res.Failures[" "], notifications.ErrInvalidInput)
		assert.Equal(t, 2, inApp.Sends())
	})

	t.Run("directory failure", func(t *testing.T) {
		t.Parallel()
		ctx, _ := tenantCtx(t)
		f := newManagerFixture(t, nil, notifications.WithUserDirectory(failingDirectory{}))

		_, err := f.manager.SendToTenant(ctx, input(""))
		require.ErrorContains(t, err, "directory down")
	})

	t.Run("requires tenant", func(t *testing.T) {
		t.Parallel()
		f := newManagerFixture(t, nil, notifications.WithUserDirectory(tenant.NewMemoryDirectory()))

		_, err := f.manager.SendToTenant(context.Background(), input(""))
		require.ErrorIs(t, err, tenant.ErrNoTenantInContext)
	})
}

func TestManager_Inbox(t *testing.T) {
	t.Parallel()

	ctx, tid := tenantCtx(t)
	f := newManagerFixture(t, []notifications.Channel{okChannel(notifications.ChannelInApp)})

	var ids []uuid.UUID
	for range 3 {
		n, err := f.manager.Create(ctx, input("u1"))
		require.NoError(t, err)
		ids = append(ids, n.ID)
	}
	_, err := f.manager.Create(ctx, input("u2"))
	require.NoError(t, err)

	count, err := f.manager.CountUnread(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	require.NoError(t, f.manager.MarkRead(ctx, "u1", ids[0]))
	unread, err := f.manager.List(ctx, "u1", notifications.ListOptions{OnlyUnread: true})
	require.NoError(t, err)
	assert.Len(t, unread, 2)

	// Marking another user's notification is a no-op.
	require.NoError(t, f.manager.MarkRead(ctx, "u2", ids[1]))
	n, err := f.manager.Get(ctx, "u1", ids[1])
	require.NoError(t, err)
	assert.False(t, n.IsRead())

	// Only rows that were actually deleted reach the audit trail.
	deleted, err := f.manager.Delete(ctx, "u1", "admin", ids[1], uuid.New())
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)
	_, err = f.manager.Get(ctx, "u1", ids[1])
	require.ErrorIs(t, err, notifications.ErrNotificationNotFound)

	deleted, err = f.manager.Delete(ctx, "u1", "admin", ids[1])
	require.NoError(t, err)
	assert.Zero(t, deleted)
	deleted, err = f.manager.Delete(ctx, "u2", "u2", ids[2])
	require.NoError(t, err)
	assert.Zero(t, deleted)

	entries, err := f.audit.Query(ctx, audit.Criteria{Action: "notification.deleted"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "admin", entries[0].Metadata["deleted_by"])
	assert.Equal(t, ids[1].String(), entries[0].ResourceID)

	updated, err := f.manager.MarkAllRead(ctx, "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, updated)

	count, err = f.manager.CountUnread(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, count)

	// Another tenant sees nothing.
	otherCtx := tenant.WithID(context.Background(), uuid.New())
	list, err := f.manager.List(otherCtx, "u1", notifications.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, list)

	all, err := f.manager.List(ctx, "u1", notifications.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
	for _, n := range all {
		assert.Equal(t, tid, n.TenantID)
	}
}

func TestManager_PurgeRetention(t *testing.T) {
	t.Parallel()

	ctx, tid := tenantCtx(t)
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	f := newManagerFixture(t, []notifications.Channel{okChannel(notifications.ChannelInApp)},
		notifications.WithManagerClock(func() time.Time { return now }))

	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	old := input("u1")
	old.RetentionDate = &past
	expired, err := f.manager.Create(ctx, old)
	require.NoError(t, err)

	keep := input("u1")
	keep.RetentionDate = &future
	kept, err := f.manager.Create(ctx, keep)
	require.NoError(t, err)

	purged, err := f.manager.PurgeRetention(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, purged)

	_, err = f.store.GetNotification(ctx, tid, "u1", expired.ID)
	require.ErrorIs(t, err, notifications.ErrNotificationNotFound)
	_, err = f.store.GetNotification(ctx, tid, "u1", kept.ID)
	require.NoError(t, err)
}
