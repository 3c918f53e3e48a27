package notifications_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/email"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/queue"
	"github.com/dmitrymomot/notifykit/pkg/sms"
	"github.com/dmitrymomot/notifykit/pkg/tenant"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func tenantCtx(t *testing.T) (context.Context, uuid.UUID) {
	t.Helper()
	id := uuid.New()
	return tenant.WithID(context.Background(), id), id
}

func boolPtr(b bool) *bool { return &b }

// seedNotification stores a notification the worker can attach logs to.
func seedNotification(t *testing.T, store *notifications.MemoryStorage, tenantID uuid.UUID, userID string) *notifications.Notification {
	t.Helper()
	n := &notifications.Notification{
		ID:       uuid.New(),
		TenantID: tenantID,
		UserID:   userID,
		Category: notifications.CategorySystem,
		Type:     notifications.TypeInfo,
		Priority: notifications.PriorityMedium,
		Title:    "Hello",
		Message:  "World",
	}
	require.NoError(t, store.CreateNotification(context.Background(), n))
	return n
}

type mockEnqueuer struct {
	mock.Mock
}

func (m *mockEnqueuer) Enqueue(ctx context.Context, payload any, opts ...queue.EnqueueOption) error {
	args := m.Called(ctx, payload)
	return args.Error(0)
}

func (m *mockEnqueuer) Healthy(ctx context.Context) bool {
	return m.Called(ctx).Bool(0)
}

type stubChannel struct {
	typ       notifications.ChannelType
	available bool
	valid     bool
	result    notifications.SendResult
	panicMsg  string

	mu    sync.Mutex
	sends int
}

func (c *stubChannel) Type() notifications.ChannelType     { return c.typ }
func (c *stubChannel) Validate(notifications.Payload) bool { return c.valid }
func (c *stubChannel) IsAvailable(context.Context) bool    { return c.available }

func (c *stubChannel) Sends() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sends
}

func (c *stubChannel) Send(context.Context, notifications.Payload) notifications.SendResult {
	c.mu.Lock()
	c.sends++
	c.mu.Unlock()
	if c.panicMsg != "" {
		panic(c.panicMsg)
	}
	res := c.result
	res.Channel = c.typ
	return res
}

func okChannel(typ notifications.ChannelType) *stubChannel {
	return &stubChannel{typ: typ, available: true, valid: true, result: notifications.SendResult{Success: true}}
}

type stubEmailProvider struct {
	name string
	errs []error // consumed one per call; nil entries succeed

	mu   sync.Mutex
	sent []email.Message
}

func (p *stubEmailProvider) Name() string { return p.name }

func (p *stubEmailProvider) Send(_ context.Context, msg email.Message) (*email.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, msg)
	if len(p.errs) > 0 {
		err := p.errs[0]
		p.errs = p.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &email.Result{Provider: p.name, MessageID: "msg-" + msg.To}, nil
}

func (p *stubEmailProvider) Sent() []email.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]email.Message(nil), p.sent...)
}

type stubSMSProvider struct {
	err  error
	mu   sync.Mutex
	sent []sms.Message
}

func (p *stubSMSProvider) Name() string { return "stub-sms" }

func (p *stubSMSProvider) Send(_ context.Context, msg sms.Message) (*sms.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, msg)
	if p.err != nil {
		return nil, p.err
	}
	return &sms.Result{Provider: "stub-sms", MessageID: "sms-1"}, nil
}

type staticProviders struct {
	email email.Provider
	sms   sms.Provider
}

func (s staticProviders) EmailProvider(context.Context, uuid.UUID) (email.Provider, error) {
	if s.email == nil {
		return nil, errors.New("no email provider")
	}
	return s.email, nil
}

func (s staticProviders) SMSProvider(context.Context, uuid.UUID) (sms.Provider, error) {
	if s.sms == nil {
		return nil, errors.New("no sms provider")
	}
	return s.sms, nil
}
