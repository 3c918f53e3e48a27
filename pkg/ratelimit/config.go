package ratelimit

import "time"

// Config holds the default rule for every guarded domain.
type Config struct {
	TenantCreationMax    int           `env:"RATE_LIMIT_TENANT_CREATION_MAX" envDefault:"5"`
	TenantCreationWindow time.Duration `env:"RATE_LIMIT_TENANT_CREATION_WINDOW" envDefault:"1h"`

	TenantJoinMax    int           `env:"RATE_LIMIT_TENANT_JOIN_MAX" envDefault:"10"`
	TenantJoinWindow time.Duration `env:"RATE_LIMIT_TENANT_JOIN_WINDOW" envDefault:"1h"`

	InvitationAcceptMax    int           `env:"RATE_LIMIT_INVITATION_ACCEPT_MAX" envDefault:"10"`
	InvitationAcceptWindow time.Duration `env:"RATE_LIMIT_INVITATION_ACCEPT_WINDOW" envDefault:"15m"`

	NotificationMax    int           `env:"RATE_LIMIT_NOTIFICATION_MAX" envDefault:"60"`
	NotificationWindow time.Duration `env:"RATE_LIMIT_NOTIFICATION_WINDOW" envDefault:"1m"`

	// CategoryRules overrides the notification rule per category,
	// formatted as "category:max:window" entries, e.g. "security:10:1m".
	CategoryRules []string `env:"RATE_LIMIT_NOTIFICATION_CATEGORIES" envSeparator:","`

	RedisKeyPrefix string `env:"RATE_LIMIT_REDIS_PREFIX" envDefault:"ratelimit:"`
}

// Rules converts the config into per-domain rules.
func (c Config) Rules() map[Domain]Rule {
	return map[Domain]Rule{
		DomainTenantCreation:   {Window: c.TenantCreationWindow, MaxRequests: c.TenantCreationMax},
		DomainTenantJoin:       {Window: c.TenantJoinWindow, MaxRequests: c.TenantJoinMax},
		DomainInvitationAccept: {Window: c.InvitationAcceptWindow, MaxRequests: c.InvitationAcceptMax},
		DomainNotification:     {Window: c.NotificationWindow, MaxRequests: c.NotificationMax},
	}
}
