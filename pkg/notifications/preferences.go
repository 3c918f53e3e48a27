package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/tenant"
)

// PreferenceResolver decides which channels a user wants for a category.
// The tenant is taken from the context.
type PreferenceResolver struct {
	store      PreferenceStore
	categories []string
	logger     *slog.Logger
}

// PreferenceOption configures a PreferenceResolver.
type PreferenceOption func(*PreferenceResolver)

func WithPreferenceLogger(l *slog.Logger) PreferenceOption {
	return func(r *PreferenceResolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithCategories replaces KnownCategories as the set seeded by
// CreateDefaultPreferences.
func WithCategories(categories ...string) PreferenceOption {
	return func(r *PreferenceResolver) {
		r.categories = categories
	}
}

// NewPreferenceResolver creates a resolver over store.
func NewPreferenceResolver(store PreferenceStore, opts ...PreferenceOption) *PreferenceResolver {
	r := &PreferenceResolver{
		store:      store,
		categories: KnownCategories,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(logger.Component("notifications.preferences"))
	return r
}

// GetEnabledChannels returns the enabled channels in IN_APP, EMAIL, SMS
// order. Without a stored row the result is DefaultChannels.
func (r *PreferenceResolver) GetEnabledChannels(ctx context.Context, userID, category string) ([]ChannelType, error) {
	tenantID, err := tenant.RequireID(ctx)
	if err != nil {
		return nil, err
	}
	p, err := r.store.GetPreference(ctx, tenantID, userID, category)
	if errors.Is(err, ErrPreferenceNotFound) {
		return append([]ChannelType(nil), DefaultChannels...), nil
	}
	if err != nil {
		return nil, fmt.Errorf("get preference: %w", err)
	}
	return p.Channels(), nil
}

// CreateDefaultPreferences seeds a default row for every known category.
// Existing rows are left alone, so concurrent calls are safe.
func (r *PreferenceResolver) CreateDefaultPreferences(ctx context.Context, userID string) (int, error) {
	tenantID, err := tenant.RequireID(ctx)
	if err != nil {
		return 0, err
	}
	if strings.TrimSpace(userID) == "" {
		return 0, errorf(ErrInvalidInput, "user id is required")
	}

	now := time.Now()
	created := 0
	for _, category := range r.categories {
		ok, err := r.store.InsertPreferenceIfAbsent(ctx, defaultPreference(tenantID, userID, category, now))
		if err != nil {
			return created, fmt.Errorf("seed preference %q: %w", category, err)
		}
		if ok {
			created++
		}
	}
	r.logger.DebugContext(ctx, "default preferences seeded", logger.UserID(userID), slog.Int("created", created))
	return created, nil
}

// UpdatePreference changes the set fields of upd and keeps the rest at
// their stored or default values.
func (r *PreferenceResolver) UpdatePreference(ctx context.Context, userID, category string, upd PreferenceUpdate) (*Preference, error) {
	tenantID, err := tenant.RequireID(ctx)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(category) == "" {
		return nil, errorf(ErrInvalidInput, "user id and category are required")
	}
	if upd.empty() {
		return nil, ErrEmptyPreferenceUpdate
	}
	p, err := r.store.UpsertPreference(ctx, tenantID, userID, category, upd)
	if err != nil {
		return nil, fmt.Errorf("upsert preference: %w", err)
	}
	return p, nil
}

// GetPreferences returns the stored rows of a user. Categories without a
// row use the defaults.
func (r *PreferenceResolver) GetPreferences(ctx context.Context, userID string) ([]Preference, error) {
	tenantID, err := tenant.RequireID(ctx)
	if err != nil {
		return nil, err
	}
	return r.store.ListPreferences(ctx, tenantID, userID)
}
