package notifications

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/dmitrymomot/notifykit/pkg/cache"
	"github.com/dmitrymomot/notifykit/pkg/email"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/sms"
)

// ProviderSettings is a tenant override of the default providers. Empty
// provider names keep the default for that channel.
type ProviderSettings struct {
	TenantID      uuid.UUID `json:"tenant_id"`
	EmailProvider string    `json:"email_provider,omitempty"`
	EmailAPIKey   string    `json:"-"`
	EmailFrom     string    `json:"email_from,omitempty"`
	SMSProvider   string    `json:"sms_provider,omitempty"`
	SMSAccountSID string    `json:"sms_account_sid,omitempty"`
	SMSAuthToken  string    `json:"-"`
	SMSFrom       string    `json:"sms_from,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ProviderResolver picks the provider a tenant's messages go through.
type ProviderResolver interface {
	EmailProvider(ctx context.Context, tenantID uuid.UUID) (email.Provider, error)
	SMSProvider(ctx context.Context, tenantID uuid.UUID) (sms.Provider, error)
}

// Factories build providers from a config. Tests swap them for stubs.
type (
	EmailFactory func(cfg email.Config) (email.Provider, error)
	SMSFactory   func(cfg sms.Config) (sms.Provider, error)
)

type tenantProviderSet struct {
	email email.Provider
	sms   sms.Provider
}

// TenantProviders resolves tenant overrides from ProviderSettingsStore and
// falls back to the defaults. Built providers are cached per tenant.
type TenantProviders struct {
	settings     ProviderSettingsStore
	emailCfg     email.Config
	smsCfg       sms.Config
	defaultEmail email.Provider
	defaultSMS   sms.Provider
	newEmail     EmailFactory
	newSMS       SMSFactory
	cache        *cache.LRU[uuid.UUID, tenantProviderSet]
	lookups      singleflight.Group
	logger       *slog.Logger
}

// TenantProvidersOption configures TenantProviders.
type TenantProvidersOption func(*tenantProvidersOptions)

type tenantProvidersOptions struct {
	newEmail  EmailFactory
	newSMS    SMSFactory
	cacheSize int
	logger    *slog.Logger
}

// WithEmailFactory replaces email.NewProvider.
func WithEmailFactory(f EmailFactory) TenantProvidersOption {
	return func(o *tenantProvidersOptions) { o.newEmail = f }
}

// WithSMSFactory replaces sms.NewProvider.
func WithSMSFactory(f SMSFactory) TenantProvidersOption {
	return func(o *tenantProvidersOptions) { o.newSMS = f }
}

// WithProviderCacheSize bounds the number of cached tenants. Default 1000.
func WithProviderCacheSize(n int) TenantProvidersOption {
	return func(o *tenantProvidersOptions) {
		if n > 0 {
			o.cacheSize = n
		}
	}
}

func WithProvidersLogger(l *slog.Logger) TenantProvidersOption {
	return func(o *tenantProvidersOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// NewTenantProviders builds the default providers from the configs. Tenant
// overrides start from the same configs with the tenant's credentials on top.
func NewTenantProviders(settings ProviderSettingsStore, emailCfg email.Config, smsCfg sms.Config, opts ...TenantProvidersOption) (*TenantProviders, error) {
	o := tenantProvidersOptions{cacheSize: 1000, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	log := o.logger.With(logger.Component("notifications.providers"))
	if o.newEmail == nil {
		o.newEmail = email.NewProvider
	}
	if o.newSMS == nil {
		o.newSMS = func(cfg sms.Config) (sms.Provider, error) { return sms.NewProvider(cfg, log) }
	}

	defEmail, err := o.newEmail(emailCfg)
	if err != nil {
		return nil, err
	}
	defSMS, err := o.newSMS(smsCfg)
	if err != nil {
		return nil, err
	}

	return &TenantProviders{
		settings:     settings,
		emailCfg:     emailCfg,
		smsCfg:       smsCfg,
		defaultEmail: defEmail,
		defaultSMS:   defSMS,
		newEmail:     o.newEmail,
		newSMS:       o.newSMS,
		cache:        cache.NewLRU[uuid.UUID, tenantProviderSet](o.cacheSize),
		logger:       log,
	}, nil
}

// EmailProvider returns the tenant's email provider. Lookup failures fall
// back to the default and are logged.
func (t *TenantProviders) EmailProvider(ctx context.Context, tenantID uuid.UUID) (email.Provider, error) {
	return t.resolve(ctx, tenantID).email, nil
}

// SMSProvider returns the tenant's SMS provider.
func (t *TenantProviders) SMSProvider(ctx context.Context, tenantID uuid.UUID) (sms.Provider, error) {
	return t.resolve(ctx, tenantID).sms, nil
}

// Save stores tenant settings and drops the cached providers.
func (t *TenantProviders) Save(ctx context.Context, s ProviderSettings) error {
	if err := t.settings.SaveProviderSettings(ctx, s); err != nil {
		return err
	}
	t.Invalidate(s.TenantID)
	return nil
}

// Invalidate drops the cached providers of a tenant.
func (t *TenantProviders) Invalidate(tenantID uuid.UUID) {
	t.cache.Remove(tenantID)
}

// resolve never holds the cache lock across the settings lookup. Concurrent
// misses for one tenant share a single lookup.
func (t *TenantProviders) resolve(ctx context.Context, tenantID uuid.UUID) tenantProviderSet {
	if set, ok := t.cache.Get(tenantID); ok {
		return set
	}

	defaults := tenantProviderSet{email: t.defaultEmail, sms: t.defaultSMS}
	v, err, _ := t.lookups.Do(tenantID.String(), func() (any, error) {
		if set, ok := t.cache.Get(tenantID); ok {
			return set, nil
		}
		s, err := t.settings.GetProviderSettings(ctx, tenantID)
		if errors.Is(err, ErrProviderSettingsNotFound) {
			t.cache.Put(tenantID, defaults)
			return defaults, nil
		}
		if err != nil {
			return nil, err
		}
		set := t.build(ctx, s, defaults)
		t.cache.Put(tenantID, set)
		return set, nil
	})
	if err != nil {
		// Not cached, so the next job tries the store again.
		t.logger.WarnContext(ctx, "provider settings lookup failed, using defaults", logger.TenantID(tenantID), logger.Error(err))
		return defaults
	}
	return v.(tenantProviderSet)
}

func (t *TenantProviders) build(ctx context.Context, s *ProviderSettings, set tenantProviderSet) tenantProviderSet {
	if s.EmailProvider != "" {
		cfg := t.emailCfg
		cfg.Provider = s.EmailProvider
		if s.EmailFrom != "" {
			cfg.SenderEmail = s.EmailFrom
		}
		switch s.EmailProvider {
		case email.ProviderPostmark:
			cfg.PostmarkServerToken = s.EmailAPIKey
		case email.ProviderSendGrid:
			cfg.SendGridAPIKey = s.EmailAPIKey
		}
		if p, err := t.newEmail(cfg); err != nil {
			t.logger.WarnContext(ctx, "tenant email provider override rejected", logger.TenantID(s.TenantID), logger.Provider(s.EmailProvider), logger.Error(err))
		} else {
			set.email = p
		}
	}

	if s.SMSProvider != "" {
		cfg := t.smsCfg
		cfg.Provider = s.SMSProvider
		if s.SMSFrom != "" {
			cfg.FromNumber = s.SMSFrom
		}
		if s.SMSProvider == sms.ProviderTwilio {
			cfg.TwilioAccountSID = s.SMSAccountSID
			cfg.TwilioAuthToken = s.SMSAuthToken
		}
		if p, err := t.newSMS(cfg); err != nil {
			t.logger.WarnContext(ctx, "tenant sms provider override rejected", logger.TenantID(s.TenantID), logger.Provider(s.SMSProvider), logger.Error(err))
		} else {
			set.sms = p
		}
	}
	return set
}
