package ratelimit_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/ratelimit"
)

func TestGuard(t *testing.T) {
	t.Parallel()

	newGuard := func(t *testing.T, opts ...ratelimit.GuardOption) *ratelimit.Guard {
		t.Helper()
		sw, err := ratelimit.NewSlidingWindow(ratelimit.NewMemoryStore())
		require.NoError(t, err)
		return ratelimit.NewGuard(sw, opts...)
	}

	t.Run("exceeded error carries retry after", func(t *testing.T) {
		t.Parallel()
		var rejected []ratelimit.Domain
		g := newGuard(t,
			ratelimit.WithRule(ratelimit.DomainTenantJoin, ratelimit.Rule{Window: 90 * time.Second, MaxRequests: 1}),
			ratelimit.WithRejectionHook(func(_ context.Context, d ratelimit.Domain, _ string) {
				rejected = append(rejected, d)
			}),
		)

		require.NoError(t, g.Enforce(context.Background(), ratelimit.DomainTenantJoin, "user-1"))
		err := g.Enforce(context.Background(), ratelimit.DomainTenantJoin, "user-1")
		require.Error(t, err)
		assert.ErrorIs(t, err, ratelimit.ErrRateLimitExceeded)

		var exceeded *ratelimit.ExceededError
		require.True(t, errors.As(err, &exceeded))
		assert.Equal(t, ratelimit.DomainTenantJoin, exceeded.Domain)
		assert.InDelta(t, 90, exceeded.RetryAfterSeconds(), 1)
		assert.Equal(t, []ratelimit.Domain{ratelimit.DomainTenantJoin}, rejected)
	})

	t.Run("colon in user id does not share a bucket", func(t *testing.T) {
		t.Parallel()
		g := newGuard(t, ratelimit.WithRule(ratelimit.DomainNotification, ratelimit.Rule{Window: time.Minute, MaxRequests: 1}))
		ctx := context.Background()
		require.NoError(t, g.EnforceNotification(ctx, "t1", "a:b", "c"))
		require.NoError(t, g.EnforceNotification(ctx, "t1", "a", "b:c"))
		require.Error(t, g.EnforceNotification(ctx, "t1", "a", "b:c"))
	})

	t.Run("domains do not share counters", func(t *testing.T) {
		t.Parallel()
		one := ratelimit.Rule{Window: time.Minute, MaxRequests: 1}
		g := newGuard(t,
			ratelimit.WithRule(ratelimit.DomainTenantCreation, one),
			ratelimit.WithRule(ratelimit.DomainInvitationAccept, one),
		)
		require.NoError(t, g.Enforce(context.Background(), ratelimit.DomainTenantCreation, "u"))
		require.NoError(t, g.Enforce(context.Background(), ratelimit.DomainInvitationAccept, "u"))
	})

	t.Run("unknown domain", func(t *testing.T) {
		t.Parallel()
		err := newGuard(t).Enforce(context.Background(), "nope", "u")
		assert.ErrorIs(t, err, ratelimit.ErrUnknownDomain)
	})

	t.Run("category rule overrides default", func(t *testing.T) {
		t.Parallel()
		g := newGuard(t,
			ratelimit.WithRule(ratelimit.DomainNotification, ratelimit.Rule{Window: time.Minute, MaxRequests: 100}),
			ratelimit.WithCategoryRule("security", ratelimit.Rule{Window: time.Minute, MaxRequests: 1}),
		)
		ctx := context.Background()
		require.NoError(t, g.EnforceNotification(ctx, "t", "u", "security"))
		assert.ErrorIs(t, g.EnforceNotification(ctx, "t", "u", "security"), ratelimit.ErrRateLimitExceeded)
		require.NoError(t, g.EnforceNotification(ctx, "t", "u", "billing"))
		require.NoError(t, g.EnforceNotification(ctx, "t", "other-user", "security"))
	})

	t.Run("no notification rule means unlimited", func(t *testing.T) {
		t.Parallel()
		g := newGuard(t)
		for range 5 {
			require.NoError(t, g.EnforceNotification(context.Background(), "t", "u", "system"))
		}
	})
}

func TestParseCategoryRules(t *testing.T) {
	t.Parallel()

	rules, err := ratelimit.ParseCategoryRules([]string{"security:10:1m", " ", "billing:2:1h"})
	require.NoError(t, err)
	assert.Equal(t, ratelimit.Rule{Window: time.Minute, MaxRequests: 10}, rules["security"])
	assert.Equal(t, ratelimit.Rule{Window: time.Hour, MaxRequests: 2}, rules["billing"])

	for _, bad := range []string{"security", "security:x:1m", "security:1:soon", "security:0:1m"} {
		_, err := ratelimit.ParseCategoryRules([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", ratelimit.Key())
	assert.Equal(t, "notification::t:u", ratelimit.Key("notification", "", "t", "u"))
	assert.Equal(t, `notification:t:a\:b:c`, ratelimit.Key("notification", "t", "a:b", "c"))
	assert.NotEqual(t,
		ratelimit.Key("notification", "t", "a:b", "c"),
		ratelimit.Key("notification", "t", "a", "b:c"))
	assert.NotEqual(t,
		ratelimit.Key("notification", "t", `a\`, "b"),
		ratelimit.Key("notification", "t", "a", `\b`))

	long := ratelimit.Key("notification", strings.Repeat("x", 80))
	assert.True(t, strings.HasPrefix(long, "notification:"))
	assert.Len(t, long, len("notification:")+32)
	assert.NotEqual(t, long, ratelimit.Key("notification", strings.Repeat("y", 80)))
}

func TestConfigRules(t *testing.T) {
	t.Parallel()

	cfg := ratelimit.Config{NotificationMax: 3, NotificationWindow: time.Minute}
	rules := cfg.Rules()
	assert.Equal(t, ratelimit.Rule{Window: time.Minute, MaxRequests: 3}, rules[ratelimit.DomainNotification])
	assert.Len(t, rules, 4)
}
