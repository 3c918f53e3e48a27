package dispatch

import (
	"time"

	"github.com/dmitrymomot/notifykit/pkg/email"
	"github.com/dmitrymomot/notifykit/pkg/httpserver"
	"github.com/dmitrymomot/notifykit/pkg/queue"
	"github.com/dmitrymomot/notifykit/pkg/ratelimit"
	"github.com/dmitrymomot/notifykit/pkg/sms"
)

type Config struct {
	ServiceName string `env:"SERVICE_NAME" envDefault:"notifyd"`
	Environment string `env:"APP_ENV" envDefault:"development"`

	// Backing services. Disabled ones are replaced by in-memory stores.
	UsePostgres   bool `env:"DISPATCH_USE_POSTGRES" envDefault:"true"`
	UseRedis      bool `env:"DISPATCH_USE_REDIS" envDefault:"true"`
	UseMongo      bool `env:"DISPATCH_USE_MONGO" envDefault:"false"`
	UseOpenSearch bool `env:"DISPATCH_USE_OPENSEARCH" envDefault:"false"`

	AuditCollection   string        `env:"DISPATCH_AUDIT_COLLECTION" envDefault:"notification_audit"`
	TemplatesDir      string        `env:"DISPATCH_TEMPLATES_DIR"`
	RetentionSchedule string        `env:"DISPATCH_RETENTION_SCHEDULE" envDefault:"0 3 * * *"`
	TaskRetention     time.Duration `env:"DISPATCH_TASK_RETENTION" envDefault:"168h"`
	ProviderCacheSize int           `env:"DISPATCH_PROVIDER_CACHE_SIZE" envDefault:"1000"`
	EmailConcurrency  int           `env:"DISPATCH_EMAIL_CONCURRENCY" envDefault:"10"`
	SMSConcurrency    int           `env:"DISPATCH_SMS_CONCURRENCY" envDefault:"5"`
	ReadinessTimeout  time.Duration `env:"DISPATCH_READINESS_TIMEOUT" envDefault:"2s"`

	HTTP      httpserver.Config
	Queue     queue.Config
	Email     email.Config
	SMS       sms.Config
	RateLimit ratelimit.Config
}
