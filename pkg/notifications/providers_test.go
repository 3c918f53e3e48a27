package notifications_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/email"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/sms"
)

type countingSettings struct {
	*notifications.MemoryStorage
	reads atomic.Int32
	err   error
}

func (s *countingSettings) GetProviderSettings(ctx context.Context, tenantID uuid.UUID) (*notifications.ProviderSettings, error) {
	s.reads.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return s.MemoryStorage.GetProviderSettings(ctx, tenantID)
}

// stalledSettings holds lookups for one tenant until release is closed.
type stalledSettings struct {
	*notifications.MemoryStorage
	stalled uuid.UUID
	entered chan struct{}
	release chan struct{}
}

func (s *stalledSettings) GetProviderSettings(ctx context.Context, tenantID uuid.UUID) (*notifications.ProviderSettings, error) {
	if tenantID == s.stalled {
		close(s.entered)
		<-s.release
	}
	return s.MemoryStorage.GetProviderSettings(ctx, tenantID)
}

func providerFactories() (notifications.EmailFactory, notifications.SMSFactory) {
	newEmail := func(cfg email.Config) (email.Provider, error) {
		if cfg.Provider == "broken" {
			return nil, errors.New("unsupported provider")
		}
		return &stubEmailProvider{name: cfg.Provider + ":" + cfg.SenderEmail}, nil
	}
	newSMS := func(cfg sms.Config) (sms.Provider, error) {
		return &stubSMSProvider{}, nil
	}
	return newEmail, newSMS
}

func TestTenantProviders(t *testing.T) {
	t.Parallel()

	newEmail, newSMS := providerFactories()
	defaults := email.Config{Provider: email.ProviderDev, SenderEmail: "noreply@example.com"}

	t.Run("defaults without settings", func(t *testing.T) {
		t.Parallel()
		store := &countingSettings{MemoryStorage: notifications.NewMemoryStorage()}
		tp, err := notifications.NewTenantProviders(store, defaults, sms.Config{},
			notifications.WithEmailFactory(newEmail), notifications.WithSMSFactory(newSMS),
			notifications.WithProvidersLogger(discardLogger()))
		require.NoError(t, err)

		tid := uuid.New()
		p, err := tp.EmailProvider(context.Background(), tid)
		require.NoError(t, err)
		assert.Equal(t, "dev:noreply@example.com", p.Name())

		_, err = tp.EmailProvider(context.Background(), tid)
		require.NoError(t, err)
		assert.EqualValues(t, 1, store.reads.Load())
	})

	t.Run("tenant override and invalidation", func(t *testing.T) {
		t.Parallel()
		store := &countingSettings{MemoryStorage: notifications.NewMemoryStorage()}
		tp, err := notifications.NewTenantProviders(store, defaults, sms.Config{},
			notifications.WithEmailFactory(newEmail), notifications.WithSMSFactory(newSMS),
			notifications.WithProvidersLogger(discardLogger()))
		require.NoError(t, err)

		tid := uuid.New()
		ctx := context.Background()
		p, _ := tp.EmailProvider(ctx, tid)
		assert.Equal(t, "dev:noreply@example.com", p.Name())

		require.NoError(t, tp.Save(ctx, notifications.ProviderSettings{
			TenantID:      tid,
			EmailProvider: email.ProviderPostmark,
			EmailAPIKey:   "server-token",
			EmailFrom:     "billing@acme.test",
		}))
		p, _ = tp.EmailProvider(ctx, tid)
		assert.Equal(t, "postmark:billing@acme.test", p.Name())

		other, _ := tp.EmailProvider(ctx, uuid.New())
		assert.Equal(t, "dev:noreply@example.com", other.Name())
	})

	t.Run("broken override keeps default", func(t *testing.T) {
		t.Parallel()
		store := &countingSettings{MemoryStorage: notifications.NewMemoryStorage()}
		tid := uuid.New()
		require.NoError(t, store.SaveProviderSettings(context.Background(), notifications.ProviderSettings{
			TenantID:      tid,
			EmailProvider: "broken",
		}))
		tp, err := notifications.NewTenantProviders(store, defaults, sms.Config{},
			notifications.WithEmailFactory(newEmail), notifications.WithSMSFactory(newSMS),
			notifications.WithProvidersLogger(discardLogger()))
		require.NoError(t, err)

		p, err := tp.EmailProvider(context.Background(), tid)
		require.NoError(t, err)
		assert.Equal(t, "dev:noreply@example.com", p.Name())
	})

	t.Run("store errors are not cached", func(t *testing.T) {
		t.Parallel()
		store := &countingSettings{MemoryStorage: notifications.NewMemoryStorage(), err: errors.New("db down")}
		tp, err := notifications.NewTenantProviders(store, defaults, sms.Config{},
			notifications.WithEmailFactory(newEmail), notifications.WithSMSFactory(newSMS),
			notifications.WithProvidersLogger(discardLogger()))
		require.NoError(t, err)

		tid := uuid.New()
		for range 2 {
			p, err := tp.SMSProvider(context.Background(), tid)
			require.NoError(t, err)
			assert.NotNil(t, p)
		}
		assert.EqualValues(t, 2, store.reads.Load())
	})

	t.Run("slow lookup for one tenant does not stall another", func(t *testing.T) {
		t.Parallel()
		store := &stalledSettings{
			MemoryStorage: notifications.NewMemoryStorage(),
			stalled:       uuid.New(),
			entered:       make(chan struct{}),
			release:       make(chan struct{}),
		}
		tp, err := notifications.NewTenantProviders(store, defaults, sms.Config{},
			notifications.WithEmailFactory(newEmail), notifications.WithSMSFactory(newSMS),
			notifications.WithProvidersLogger(discardLogger()))
		require.NoError(t, err)

		slowDone := make(chan struct{})
		go func() {
			defer close(slowDone)
			_, _ = tp.EmailProvider(context.Background(), store.stalled)
		}()
		<-store.entered

		start := time.Now()
		p, err := tp.SMSProvider(context.Background(), uuid.New())
		require.NoError(t, err)
		assert.NotNil(t, p)
		assert.Less(t, time.Since(start), time.Second)

		close(store.release)
		<-slowDone
	})

	t.Run("invalid default fails construction", func(t *testing.T) {
		t.Parallel()
		_, err := notifications.NewTenantProviders(notifications.NewMemoryStorage(),
			email.Config{Provider: "broken"}, sms.Config{},
			notifications.WithEmailFactory(newEmail), notifications.WithSMSFactory(newSMS))
		require.Error(t, err)
	})
}
