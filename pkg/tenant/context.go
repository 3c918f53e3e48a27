package tenant

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

type contextKey struct{}

// WithTenant stores the tenant in the context.
func WithTenant(ctx context.Context, t *Tenant) context.Context {
	return context.WithValue(ctx, contextKey{}, t)
}

// WithID stores a bare tenant id. Used by background workers that only know
// the id carried in a job payload.
func WithID(ctx context.Context, id uuid.UUID) context.Context {
	return WithTenant(ctx, &Tenant{ID: id, Active: true})
}

// FromContext retrieves the tenant from the context.
func FromContext(ctx context.Context) (*Tenant, bool) {
	t, ok := ctx.Value(contextKey{}).(*Tenant)
	return t, ok && t != nil
}

// IDFromContext retrieves the tenant id. The zero UUID counts as absent.
func IDFromContext(ctx context.Context) (uuid.UUID, bool) {
	t, ok := FromContext(ctx)
	if !ok || t.ID == uuid.Nil {
		return uuid.Nil, false
	}
	return t.ID, true
}

// RequireID returns the tenant id or ErrNoTenantInContext.
func RequireID(ctx context.Context) (uuid.UUID, error) {
	id, ok := IDFromContext(ctx)
	if !ok {
		return uuid.Nil, ErrNoTenantInContext
	}
	return id, nil
}

// LoggerExtractor adds tenant_id to every log record written with a tenant context.
func LoggerExtractor() func(ctx context.Context) (slog.Attr, bool) {
	return func(ctx context.Context) (slog.Attr, bool) {
		if id, ok := IDFromContext(ctx); ok {
			return slog.String("tenant_id", id.String()), true
		}
		return slog.Attr{}, false
	}
}
