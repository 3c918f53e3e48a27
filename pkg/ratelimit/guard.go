package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/logger"
)

// Domain names an independent rate limit policy. Each domain has its own key
// prefix, so counts never leak between domains.
type Domain string

const (
	DomainTenantCreation   Domain = "tenant_creation"
	DomainTenantJoin       Domain = "tenant_join"
	DomainInvitationAccept Domain = "invitation_accept"
	DomainNotification     Domain = "notification"
)

// RejectionHook observes denied checks, e.g. to feed a metrics counter.
type RejectionHook func(ctx context.Context, domain Domain, subject string)

// Guard applies per-domain rules on top of a SlidingWindow.
type Guard struct {
	limiter    *SlidingWindow
	rules      map[Domain]Rule
	categories map[string]Rule
	onReject   []RejectionHook
	logger     *slog.Logger
}

type GuardOption func(*Guard)

func WithRule(domain Domain, rule Rule) GuardOption {
	return func(g *Guard) { g.rules[domain] = rule }
}

// WithCategoryRule overrides the notification rule for one category.
func WithCategoryRule(category string, rule Rule) GuardOption {
	return func(g *Guard) { g.categories[category] = rule }
}

func WithRejectionHook(h RejectionHook) GuardOption {
	return func(g *Guard) {
		if h != nil {
			g.onReject = append(g.onReject, h)
		}
	}
}

func WithGuardLogger(l *slog.Logger) GuardOption {
	return func(g *Guard) {
		if l != nil {
			g.logger = l
		}
	}
}

func NewGuard(limiter *SlidingWindow, opts ...GuardOption) *Guard {
	g := &Guard{
		limiter:    limiter,
		rules:      make(map[Domain]Rule),
		categories: make(map[string]Rule),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Enforce checks subject against the domain rule. It returns *ExceededError
// when the limit is hit and nil when the request may proceed.
func (g *Guard) Enforce(ctx context.Context, domain Domain, subject ...string) error {
	rule, ok := g.rules[domain]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDomain, domain)
	}
	return g.enforce(ctx, domain, rule, Key(append([]string{string(domain)}, subject...)...))
}

// EnforceNotification applies the category rule when one is configured and
// falls back to the notification domain rule otherwise.
func (g *Guard) EnforceNotification(ctx context.Context, tenantID, userID, category string) error {
	rule, ok := g.categories[category]
	if !ok {
		if rule, ok = g.rules[DomainNotification]; !ok {
			return nil
		}
	}
	return g.enforce(ctx, DomainNotification, rule, Key(string(DomainNotification), tenantID, userID, category))
}

func (g *Guard) enforce(ctx context.Context, domain Domain, rule Rule, key string) error {
	res, err := g.limiter.Check(ctx, key, rule)
	if err != nil {
		return err
	}
	if res.Allowed {
		return nil
	}

	g.logger.WarnContext(ctx, "rate limit exceeded",
		logger.Component("ratelimit"),
		slog.String("domain", string(domain)),
		slog.String("key", key),
		slog.Int("total_hits", res.TotalHits),
	)
	for _, h := range g.onReject {
		h(ctx, domain, key)
	}
	return &ExceededError{Domain: domain, RetryAfter: res.ResetAt.Sub(g.limiter.now())}
}

// ParseCategoryRules parses "category:max:window" entries.
func ParseCategoryRules(entries []string) (map[string]Rule, error) {
	rules := make(map[string]Rule, len(entries))
	for _, raw := range entries {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		parts := strings.Split(raw, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid category rule %q: want category:max:window", raw)
		}
		maxReq, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, fmt.Errorf("invalid category rule %q: %w", raw, err)
		}
		window, err := time.ParseDuration(parts[2])
		if err != nil {
			return nil, fmt.Errorf("invalid category rule %q: %w", raw, err)
		}
		rule := Rule{Window: window, MaxRequests: maxReq}
		if err := rule.validate(); err != nil {
			return nil, fmt.Errorf("invalid category rule %q: %w", raw, err)
		}
		rules[parts[0]] = rule
	}
	return rules, nil
}
