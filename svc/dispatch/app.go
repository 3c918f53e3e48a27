package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/notifykit/pkg/audit"
	"github.com/dmitrymomot/notifykit/pkg/eventbus"
	"github.com/dmitrymomot/notifykit/pkg/httpserver"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/metrics"
	mongodb "github.com/dmitrymomot/notifykit/pkg/mongo"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
	search "github.com/dmitrymomot/notifykit/pkg/opensearch"
	"github.com/dmitrymomot/notifykit/pkg/pg"
	"github.com/dmitrymomot/notifykit/pkg/queue"
	"github.com/dmitrymomot/notifykit/pkg/ratelimit"
	rdb "github.com/dmitrymomot/notifykit/pkg/redis"
	"github.com/dmitrymomot/notifykit/pkg/templates"
	"github.com/dmitrymomot/notifykit/pkg/tenant"
)

// RetentionTaskName is the periodic task that purges expired notifications.
const RetentionTaskName = "notifications.retention"

// taskStore is implemented by queue.MemoryStorage and queue.PostgresStorage.
type taskStore interface {
	queue.EnqueuerRepository
	queue.WorkerRepository
	queue.SchedulerRepository
	queue.Pinger
	PurgeCompleted(ctx context.Context, before time.Time) (int64, error)
}

// App owns every long-lived component of the delivery engine.
type App struct {
	cfg    Config
	logger *slog.Logger

	store     notifications.Storage
	tasks     taskStore
	bus       *eventbus.Bus
	emitter   *notifications.BroadcastEmitter
	registry  *notifications.Registry
	resolver  *notifications.PreferenceResolver
	manager   *notifications.Manager
	providers *notifications.TenantProviders
	delivery  *notifications.DeliveryWorker
	metrics   *metrics.Recorder
	audit     audit.Logger

	workers   []*queue.Worker
	scheduler *queue.Scheduler
	server    *httpserver.Server
	router    http.Handler

	closers []func(context.Context) error
}

// New wires the engine. Nothing is started until Run.
func New(ctx context.Context, cfg Config, opts ...Option) (*App, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.recipients == nil {
		o.recipients = notifications.NewMemoryRecipients()
	}
	if o.users == nil {
		o.users = tenant.NewMemoryDirectory()
	}

	a := &App{
		cfg:     cfg,
		logger:  o.logger.With(logger.Component("dispatch")),
		metrics: metrics.New(o.registry),
	}

	a.initStorage(o)
	if err := a.initAudit(ctx, o); err != nil {
		return nil, err
	}

	guard, err := a.newGuard(o)
	if err != nil {
		return nil, err
	}

	a.bus = eventbus.New(eventbus.WithLogger(o.logger))
	a.emitter = notifications.NewBroadcastEmitter(notifications.WithEmitterLogger(o.logger))
	a.closers = append(a.closers, func(context.Context) error { return a.emitter.Close() })

	enqueuer, err := queue.NewEnqueuer(a.tasks, queue.WithDefaultMaxRetries(cfg.Queue.MaxRetries))
	if err != nil {
		return nil, fmt.Errorf("create enqueuer: %w", err)
	}

	chOpts := []notifications.ChannelOption{notifications.WithChannelLogger(o.logger)}
	a.registry = notifications.NewRegistry(
		notifications.NewInAppChannel(a.store, a.emitter, chOpts...),
		notifications.NewEmailChannel(a.store, o.recipients, enqueuer, chOpts...),
		notifications.NewSMSChannel(a.store, o.recipients, enqueuer, chOpts...),
	)
	a.resolver = notifications.NewPreferenceResolver(a.store, notifications.WithPreferenceLogger(o.logger))

	mgrOpts := []notifications.ManagerOption{
		notifications.WithManagerLogger(o.logger),
		notifications.WithRateGuard(guard),
		notifications.WithUserDirectory(o.users),
		notifications.WithPublisher(a.bus),
		notifications.WithManagerEmitter(a.emitter),
		notifications.WithAuditLogger(a.audit),
	}
	a.manager = notifications.NewManager(a.store, a.registry, a.resolver, mgrOpts...)

	providerOpts := append([]notifications.TenantProvidersOption{
		notifications.WithProviderCacheSize(cfg.ProviderCacheSize),
		notifications.WithProvidersLogger(o.logger),
	}, o.providers...)
	a.providers, err = notifications.NewTenantProviders(a.store, cfg.Email, cfg.SMS, providerOpts...)
	if err != nil {
		return nil, fmt.Errorf("create providers: %w", err)
	}

	workerOpts := []notifications.DeliveryWorkerOption{
		notifications.WithWorkerPublisher(a.bus),
		notifications.WithDeliveryWorkerLogger(o.logger),
	}
	if cfg.TemplatesDir != "" {
		catalog, err := templates.LoadCatalog(os.DirFS(cfg.TemplatesDir), ".")
		if err != nil {
			return nil, fmt.Errorf("load templates: %w", err)
		}
		workerOpts = append(workerOpts, notifications.WithRenderer(catalog))
	}
	a.delivery = notifications.NewDeliveryWorker(a.store, a.providers, workerOpts...)

	if err := a.initWorkers(o); err != nil {
		return nil, err
	}

	var indexer deliveryIndexer
	if o.search != nil {
		indexer = search.NewIndexer(o.search, o.searchIndex)
	}
	a.subscribe(indexer)

	a.server = httpserver.NewFromConfig(cfg.HTTP, httpserver.WithLogger(o.logger))
	a.router = a.newRouter(a.readinessChecks(o))

	return a, nil
}

func (a *App) initStorage(o options) {
	if o.pool != nil {
		a.store = notifications.NewPostgresStorage(o.pool)
		a.tasks = queue.NewPostgresStorage(o.pool, a.cfg.Queue.RetryBackoff)
		return
	}
	a.logger.Warn("postgres not configured, using in-memory storage")
	a.store = notifications.NewMemoryStorage()
	mem := queue.NewMemoryStorage(queue.WithMemoryBackoff(a.cfg.Queue.RetryBackoff))
	a.tasks = mem
	a.closers = append(a.closers, func(context.Context) error { return mem.Close() })
}

func (a *App) initAudit(ctx context.Context, o options) error {
	opts := []audit.Option{
		audit.WithTenantIDExtractor(func(ctx context.Context) (string, bool) {
			id, ok := tenant.IDFromContext(ctx)
			if !ok {
				return "", false
			}
			return id.String(), true
		}),
	}

	var storage audit.Storage = audit.NewMemoryStorage()
	if o.mongo != nil {
		ms := audit.NewMongoStorage(o.mongo, a.cfg.AuditCollection)
		if err := ms.EnsureIndexes(ctx); err != nil {
			return fmt.Errorf("audit indexes: %w", err)
		}
		storage = ms
		opts = append(opts, audit.WithAsync(audit.AsyncOptions{}))
	}

	var closeFn func(context.Context) error
	a.audit, closeFn = audit.NewLogger(storage, opts...)
	a.closers = append(a.closers, closeFn)
	return nil
}

func (a *App) newGuard(o options) (*ratelimit.Guard, error) {
	var store ratelimit.Store
	if o.redis != nil {
		store = ratelimit.NewRedisStore(o.redis, ratelimit.WithKeyPrefix(a.cfg.RateLimit.RedisKeyPrefix))
	} else {
		a.logger.Warn("redis not configured, rate limits are per process")
		store = ratelimit.NewMemoryStore()
	}

	sw, err := ratelimit.NewSlidingWindow(store, ratelimit.WithLogger(o.logger))
	if err != nil {
		return nil, fmt.Errorf("create rate limiter: %w", err)
	}

	opts := []ratelimit.GuardOption{
		ratelimit.WithGuardLogger(o.logger),
		ratelimit.WithRejectionHook(func(_ context.Context, d ratelimit.Domain, _ string) {
			a.metrics.RateLimitRejected(string(d))
		}),
	}
	// A zero rule disables the domain.
	for d, rule := range a.cfg.RateLimit.Rules() {
		if rule.MaxRequests > 0 && rule.Window > 0 {
			opts = append(opts, ratelimit.WithRule(d, rule))
		}
	}
	categories, err := ratelimit.ParseCategoryRules(a.cfg.RateLimit.CategoryRules)
	if err != nil {
		return nil, fmt.Errorf("parse category rules: %w", err)
	}
	for c, rule := range categories {
		opts = append(opts, ratelimit.WithCategoryRule(c, rule))
	}
	return ratelimit.NewGuard(sw, opts...), nil
}

func (a *App) initWorkers(o options) error {
	onDead := func(ctx context.Context, task *queue.Task, err error) {
		a.metrics.DeadLettered(task.Queue)
		a.logger.ErrorContext(ctx, "task moved to dead letter queue",
			logger.TaskID(task.ID),
			logger.Queue(task.Queue),
			logger.Error(err),
		)
	}

	specs := []struct {
		queue       string
		concurrency int
		handlers    []queue.Handler
	}{
		{notifications.QueueEmail, a.cfg.EmailConcurrency, a.delivery.Handlers()},
		{notifications.QueueSMS, a.cfg.SMSConcurrency, a.delivery.Handlers()},
		{queue.DefaultQueueName, 1, []queue.Handler{
			queue.NewPeriodicTaskHandler(RetentionTaskName, a.RunRetention),
		}},
	}
	for _, s := range specs {
		w, err := queue.NewWorker(a.tasks,
			queue.WithQueues(s.queue),
			queue.WithPullInterval(a.cfg.Queue.PollInterval),
			queue.WithLockTimeout(a.cfg.Queue.LockTimeout),
			queue.WithMaxConcurrentTasks(max(s.concurrency, 1)),
			queue.WithWorkerLogger(o.logger),
			queue.WithDeadLetterHook(onDead),
		)
		if err != nil {
			return fmt.Errorf("create %s worker: %w", s.queue, err)
		}
		if err := w.RegisterHandlers(s.handlers...); err != nil {
			return fmt.Errorf("register %s handlers: %w", s.queue, err)
		}
		a.workers = append(a.workers, w)
	}

	scheduler, err := queue.NewScheduler(a.tasks,
		queue.WithCheckInterval(a.cfg.Queue.SchedulerInterval),
		queue.WithSchedulerLogger(o.logger),
	)
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	schedule, err := queue.Cron(a.cfg.RetentionSchedule)
	if err != nil {
		return fmt.Errorf("retention schedule: %w", err)
	}
	if err := scheduler.AddTask(RetentionTaskName, schedule); err != nil {
		return fmt.Errorf("schedule retention: %w", err)
	}
	a.scheduler = scheduler
	return nil
}

// RunRetention drops notifications past their retention date and completed
// queue tasks older than TaskRetention.
func (a *App) RunRetention(ctx context.Context) error {
	if _, err := a.manager.PurgeRetention(ctx); err != nil {
		return err
	}
	if a.cfg.TaskRetention <= 0 {
		return nil
	}
	purged, err := a.tasks.PurgeCompleted(ctx, time.Now().Add(-a.cfg.TaskRetention))
	if err != nil {
		return fmt.Errorf("purge completed tasks: %w", err)
	}
	a.logger.InfoContext(ctx, "completed tasks purged", slog.Int64("purged", purged))
	return nil
}

func (a *App) readinessChecks(o options) []httpserver.Check {
	checks := []httpserver.Check{
		{Name: "storage", Ping: a.store.Ping},
		{Name: "queue", Ping: a.tasks.Ping},
	}
	if o.pool != nil {
		checks = append(checks, httpserver.Check{Name: "postgres", Ping: pg.Healthcheck(o.pool)})
	}
	if o.redis != nil {
		checks = append(checks, httpserver.Check{Name: "redis", Ping: rdb.Healthcheck(o.redis)})
	}
	if o.mongo != nil {
		checks = append(checks, httpserver.Check{Name: "mongo", Ping: mongodb.Healthcheck(o.mongo.Client())})
	}
	if o.search != nil {
		checks = append(checks, httpserver.Check{Name: "opensearch", Ping: search.Healthcheck(o.search)})
	}
	return checks
}

func (a *App) Manager() *notifications.Manager                { return a.manager }
func (a *App) Preferences() *notifications.PreferenceResolver { return a.resolver }
func (a *App) Emitter() *notifications.BroadcastEmitter       { return a.emitter }
func (a *App) Providers() *notifications.TenantProviders      { return a.providers }
func (a *App) Storage() notifications.Storage                 { return a.store }
func (a *App) Handler() http.Handler                          { return a.router }

// Run starts the workers, the scheduler and the ops server and blocks until
// ctx is cancelled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, w := range a.workers {
		g.Go(w.Run(ctx))
	}
	g.Go(a.scheduler.Run(ctx))
	g.Go(func() error { return a.server.Run(ctx, a.router) })

	a.logger.InfoContext(ctx, "dispatch started", slog.Int("workers", len(a.workers)))
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Close releases in-process resources in reverse creation order. Connections
// passed as options are owned by the caller.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
