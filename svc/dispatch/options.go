package dispatch

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/tenant"
)

type Option func(*options)

type options struct {
	logger      *slog.Logger
	pool        *pgxpool.Pool
	redis       redis.UniversalClient
	mongo       *mongo.Database
	search      *opensearch.Client
	searchIndex string
	registry    *prometheus.Registry
	recipients  notifications.RecipientDirectory
	users       tenant.UserDirectory
	providers   []notifications.TenantProvidersOption
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithPostgres stores notifications, delivery logs, preferences and queue
// tasks in PostgreSQL. The schema must already be migrated.
func WithPostgres(pool *pgxpool.Pool) Option {
	return func(o *options) { o.pool = pool }
}

// WithRedis backs the rate limiter with Redis sorted sets.
func WithRedis(client redis.UniversalClient) Option {
	return func(o *options) { o.redis = client }
}

// WithMongo writes the audit trail to MongoDB.
func WithMongo(db *mongo.Database) Option {
	return func(o *options) { o.mongo = db }
}

// WithOpenSearch indexes delivery outcomes into index.
func WithOpenSearch(client *opensearch.Client, index string) Option {
	return func(o *options) {
		o.search = client
		o.searchIndex = index
	}
}

func WithMetricsRegistry(reg *prometheus.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// WithRecipients resolves user email addresses and phone numbers.
func WithRecipients(d notifications.RecipientDirectory) Option {
	return func(o *options) { o.recipients = d }
}

// WithUserDirectory enables Manager.SendToTenant.
func WithUserDirectory(d tenant.UserDirectory) Option {
	return func(o *options) { o.users = d }
}

// WithProviderOptions is passed through to notifications.NewTenantProviders.
func WithProviderOptions(opts ...notifications.TenantProvidersOption) Option {
	return func(o *options) { o.providers = append(o.providers, opts...) }
}
