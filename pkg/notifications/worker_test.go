package notifications_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/email"
	"github.com/dmitrymomot/notifykit/pkg/eventbus"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/queue"
	"github.com/dmitrymomot/notifykit/pkg/templates"
)

type recordedEvents struct {
	mu     sync.Mutex
	sent   []notifications.DeliverySucceeded
	failed []notifications.DeliveryAttemptFailed
	jobs   []notifications.JobProcessed
}

func recordEvents(bus *eventbus.Bus) *recordedEvents {
	r := &recordedEvents{}
	eventbus.On(bus, func(_ context.Context, e notifications.DeliverySucceeded) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.sent = append(r.sent, e)
		return nil
	})
	eventbus.On(bus, func(_ context.Context, e notifications.DeliveryAttemptFailed) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.failed = append(r.failed, e)
		return nil
	})
	eventbus.On(bus, func(_ context.Context, e notifications.JobProcessed) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.jobs = append(r.jobs, e)
		return nil
	})
	return r
}

func emailJob(n *notifications.Notification) notifications.EmailJob {
	return notifications.EmailJob{
		TenantID:       n.TenantID,
		UserID:         n.UserID,
		NotificationID: n.ID,
		Category:       n.Category,
		To:             "jane@example.com",
		Subject:        n.Title,
		Message:        n.Message,
	}
}

func TestDeliveryWorker_HandleEmail(t *testing.T) {
	t.Parallel()

	t.Run("provider error marks the log failed", func(t *testing.T) {
		t.Parallel()
		ctx, tid := tenantCtx(t)
		store := notifications.NewMemoryStorage()
		n := seedNotification(t, store, tid, "u1")

		bus := eventbus.New(eventbus.WithLogger(discardLogger()))
		events := recordEvents(bus)
		provider := &stubEmailProvider{name: "stub", errs: []error{errors.New("Provider API error")}}
		w := notifications.NewDeliveryWorker(store, staticProviders{email: provider},
			notifications.WithDeliveryWorkerLogger(discardLogger()),
			notifications.WithWorkerPublisher(bus),
		)

		err := w.HandleEmail(ctx, emailJob(n))
		require.Error(t, err)
		assert.ErrorContains(t, err, "Provider API error")

		dl, err := store.GetDeliveryLog(ctx, tid, n.ID, notifications.ChannelEmail)
		require.NoError(t, err)
		assert.Equal(t, notifications.DeliveryFailed, dl.Status)
		assert.Equal(t, "Provider API error", dl.ErrorMessage)
		assert.Equal(t, "stub", dl.Provider)
		assert.Equal(t, 1, dl.Attempts)

		require.Len(t, events.failed, 1)
		assert.Equal(t, dl.ID, events.failed[0].DeliveryLogID)
		require.Len(t, events.jobs, 1)
		assert.False(t, events.jobs[0].Success)
	})

	t.Run("retry reuses the log row", func(t *testing.T) {
		t.Parallel()
		ctx, tid := tenantCtx(t)
		store := notifications.NewMemoryStorage()
		n := seedNotification(t, store, tid, "u1")

		provider := &stubEmailProvider{name: "stub", errs: []error{errors.New("timeout")}}
		w := notifications.NewDeliveryWorker(store, staticProviders{email: provider},
			notifications.WithDeliveryWorkerLogger(discardLogger()))

		require.Error(t, w.HandleEmail(ctx, emailJob(n)))
		failed, err := store.GetDeliveryLog(ctx, tid, n.ID, notifications.ChannelEmail)
		require.NoError(t, err)

		require.NoError(t, w.HandleEmail(ctx, emailJob(n)))
		sent, err := store.GetDeliveryLog(ctx, tid, n.ID, notifications.ChannelEmail)
		require.NoError(t, err)
		assert.Equal(t, failed.ID, sent.ID)
		assert.Equal(t, notifications.DeliverySent, sent.Status)
		assert.Equal(t, 2, sent.Attempts)
		assert.Equal(t, "msg-jane@example.com", sent.ProviderMessageID)
		assert.Empty(t, sent.ErrorMessage)
		require.NotNil(t, sent.SentAt)

		// Delivered jobs are not sent again.
		require.NoError(t, w.HandleEmail(ctx, emailJob(n)))
		assert.Len(t, provider.Sent(), 2)
	})

	t.Run("provider panic is a failure", func(t *testing.T) {
		t.Parallel()
		ctx, tid := tenantCtx(t)
		store := notifications.NewMemoryStorage()
		n := seedNotification(t, store, tid, "u1")

		w := notifications.NewDeliveryWorker(store, staticProviders{email: panickingEmailProvider{}},
			notifications.WithDeliveryWorkerLogger(discardLogger()))

		err := w.HandleEmail(ctx, emailJob(n))
		require.ErrorContains(t, err, "provider panic")

		dl, err := store.GetDeliveryLog(ctx, tid, n.ID, notifications.ChannelEmail)
		require.NoError(t, err)
		assert.Equal(t, notifications.DeliveryFailed, dl.Status)
	})

	t.Run("invalid job", func(t *testing.T) {
		t.Parallel()
		ctx, tid := tenantCtx(t)
		store := notifications.NewMemoryStorage()
		n := seedNotification(t, store, tid, "u1")
		w := notifications.NewDeliveryWorker(store, staticProviders{}, notifications.WithDeliveryWorkerLogger(discardLogger()))

		job := emailJob(n)
		job.To = ""
		require.ErrorIs(t, w.HandleEmail(ctx, job), notifications.ErrInvalidJob)
	})
}

type panickingEmailProvider struct{}

func (panickingEmailProvider) Name() string { return "panicky" }

func (panickingEmailProvider) Send(context.Context, email.Message) (*email.Result, error) {
	panic("nil client")
}

func TestDeliveryWorker_Templates(t *testing.T) {
	t.Parallel()

	catalog, err := templates.ParseCatalog([]byte(`
welcome:
  subject: "Welcome, {{.Name}}"
  text: "Hello {{.Name}}, your workspace is ready."
`))
	require.NoError(t, err)

	tests := []struct {
		name        string
		templateID  string
		wantSubject string
		wantText    string
	}{
		{"rendered", "welcome", "Welcome, Jane", "Hello Jane, your workspace is ready."},
		{"unknown template falls back", "missing", "Hello", "World"},
		{"no template", "", "Hello", "World"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx, tid := tenantCtx(t)
			store := notifications.NewMemoryStorage()
			n := seedNotification(t, store, tid, "u1")
			provider := &stubEmailProvider{name: "stub"}
			w := notifications.NewDeliveryWorker(store, staticProviders{email: provider},
				notifications.WithRenderer(catalog),
				notifications.WithDeliveryWorkerLogger(discardLogger()),
			)

			job := emailJob(n)
			job.TemplateID = tt.templateID
			job.TemplateVariables = map[string]any{"Name": "Jane"}
			require.NoError(t, w.HandleEmail(ctx, job))

			sent := provider.Sent()
			require.Len(t, sent, 1)
			assert.Equal(t, tt.wantSubject, sent[0].Subject)
			assert.Equal(t, tt.wantText, sent[0].Text)
			assert.NotEmpty(t, sent[0].HTML)
			assert.Equal(t, notifications.CategorySystem, sent[0].Tag)
		})
	}
}

func TestDeliveryWorker_HandleSMS(t *testing.T) {
	t.Parallel()

	ctx, tid := tenantCtx(t)
	store := notifications.NewMemoryStorage()
	n := seedNotification(t, store, tid, "u1")
	provider := &stubSMSProvider{}
	w := notifications.NewDeliveryWorker(store, staticProviders{sms: provider},
		notifications.WithDeliveryWorkerLogger(discardLogger()))

	require.NoError(t, w.HandleSMS(ctx, notifications.SMSJob{
		TenantID:       tid,
		UserID:         "u1",
		NotificationID: n.ID,
		To:             "+14155552671",
		Message:        "Hello: World",
	}))

	require.Len(t, provider.sent, 1)
	assert.Equal(t, "+14155552671", provider.sent[0].To)
	assert.Equal(t, "Hello: World", provider.sent[0].Body)

	dl, err := store.GetDeliveryLog(ctx, tid, n.ID, notifications.ChannelSMS)
	require.NoError(t, err)
	assert.Equal(t, notifications.DeliverySent, dl.Status)
	assert.Equal(t, "stub-sms", dl.Provider)
	assert.Equal(t, "sms-1", dl.ProviderMessageID)
}

// drain claims and runs tasks until the queue is empty.
func drain(t *testing.T, qstore *queue.MemoryStorage, w *queue.Worker, queues ...string) int {
	t.Helper()
	runs := 0
	for {
		task, err := qstore.ClaimTask(context.Background(), w.ID(), queues, time.Minute)
		if errors.Is(err, queue.ErrNoTaskToClaim) {
			return runs
		}
		require.NoError(t, err)
		_ = w.ProcessTask(task)
		runs++
		require.Less(t, runs, 20, "queue did not drain")
	}
}

func TestEmailDelivery_ThroughQueue(t *testing.T) {
	t.Parallel()

	t.Run("double dispatch sends once", func(t *testing.T) {
		t.Parallel()
		ctx, tid := tenantCtx(t)
		store := notifications.NewMemoryStorage()
		qstore := queue.NewMemoryStorage(queue.WithMemoryBackoff(0))
		t.Cleanup(func() { _ = qstore.Close() })
		enq, err := queue.NewEnqueuer(qstore)
		require.NoError(t, err)

		provider := &stubEmailProvider{name: "stub"}
		dw := notifications.NewDeliveryWorker(store, staticProviders{email: provider},
			notifications.WithDeliveryWorkerLogger(discardLogger()))
		qw, err := queue.NewWorker(qstore, queue.WithQueues(notifications.QueueEmail), queue.WithWorkerLogger(discardLogger()))
		require.NoError(t, err)
		require.NoError(t, qw.RegisterHandlers(dw.Handlers()...))

		ch := notifications.NewEmailChannel(store, nil, enq, notifications.WithChannelLogger(discardLogger()))
		n := seedNotification(t, store, tid, "u1")
		p := validPayload(tid)
		p.NotificationID = n.ID
		p.Email = "jane@example.com"

		require.True(t, ch.Send(ctx, p).Success)
		require.True(t, ch.Send(ctx, p).Success)

		assert.Equal(t, 1, drain(t, qstore, qw, notifications.QueueEmail))
		assert.Len(t, provider.Sent(), 1)

		dl, err := store.GetDeliveryLog(ctx, tid, n.ID, notifications.ChannelEmail)
		require.NoError(t, err)
		assert.Equal(t, notifications.DeliverySent, dl.Status)
		assert.Equal(t, 1, dl.Attempts)
	})

	t.Run("transient failure is retried", func(t *testing.T) {
		t.Parallel()
		ctx, tid := tenantCtx(t)
		store := notifications.NewMemoryStorage()
		qstore := queue.NewMemoryStorage(queue.WithMemoryBackoff(0))
		t.Cleanup(func() { _ = qstore.Close() })
		enq, err := queue.NewEnqueuer(qstore)
		require.NoError(t, err)

		provider := &stubEmailProvider{name: "stub", errs: []error{errors.New("503 from upstream")}}
		dw := notifications.NewDeliveryWorker(store, staticProviders{email: provider},
			notifications.WithDeliveryWorkerLogger(discardLogger()))
		qw, err := queue.NewWorker(qstore, queue.WithQueues(notifications.QueueEmail), queue.WithWorkerLogger(discardLogger()))
		require.NoError(t, err)
		require.NoError(t, qw.RegisterHandlers(dw.Handlers()...))

		ch := notifications.NewEmailChannel(store, nil, enq, notifications.WithChannelLogger(discardLogger()))
		n := seedNotification(t, store, tid, "u1")
		p := validPayload(tid)
		p.NotificationID = n.ID
		p.Email = "jane@example.com"
		require.True(t, ch.Send(ctx, p).Success)

		assert.Equal(t, 2, drain(t, qstore, qw, notifications.QueueEmail))

		dl, err := store.GetDeliveryLog(ctx, tid, n.ID, notifications.ChannelEmail)
		require.NoError(t, err)
		assert.Equal(t, notifications.DeliverySent, dl.Status)
		assert.Equal(t, 2, dl.Attempts)
		assert.Empty(t, qstore.ListDLQ(ctx))
	})

	t.Run("exhausted retries dead-letter", func(t *testing.T) {
		t.Parallel()
		ctx, tid := tenantCtx(t)
		store := notifications.NewMemoryStorage()
		qstore := queue.NewMemoryStorage(queue.WithMemoryBackoff(0))
		t.Cleanup(func() { _ = qstore.Close() })
		enq, err := queue.NewEnqueuer(qstore)
		require.NoError(t, err)

		fail := errors.New("invalid api key")
		provider := &stubEmailProvider{name: "stub", errs: []error{fail, fail, fail}}
		bus := eventbus.New(eventbus.WithLogger(discardLogger()))
		events := recordEvents(bus)
		dw := notifications.NewDeliveryWorker(store, staticProviders{email: provider},
			notifications.WithDeliveryWorkerLogger(discardLogger()),
			notifications.WithWorkerPublisher(bus),
		)
		var dead int
		qw, err := queue.NewWorker(qstore,
			queue.WithQueues(notifications.QueueEmail),
			queue.WithWorkerLogger(discardLogger()),
			queue.WithDeadLetterHook(func(context.Context, *queue.Task, error) { dead++ }),
		)
		require.NoError(t, err)
		require.NoError(t, qw.RegisterHandlers(dw.Handlers()...))

		ch := notifications.NewEmailChannel(store, nil, enq, notifications.WithChannelLogger(discardLogger()))
		n := seedNotification(t, store, tid, "u1")
		p := validPayload(tid)
		p.NotificationID = n.ID
		p.Email = "jane@example.com"
		require.True(t, ch.Send(ctx, p).Success)

		assert.Equal(t, 3, drain(t, qstore, qw, notifications.QueueEmail))
		assert.Equal(t, 1, dead)
		assert.Len(t, qstore.ListDLQ(ctx), 1)

		dl, err := store.GetDeliveryLog(ctx, tid, n.ID, notifications.ChannelEmail)
		require.NoError(t, err)
		assert.Equal(t, notifications.DeliveryFailed, dl.Status)
		assert.Equal(t, 3, dl.Attempts)

		require.Len(t, events.failed, 3)
		assert.False(t, events.failed[0].Final)
		assert.True(t, events.failed[2].Final)
	})
}
