package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/notifykit/migrations"
	"github.com/dmitrymomot/notifykit/pkg/config"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	mongodb "github.com/dmitrymomot/notifykit/pkg/mongo"
	search "github.com/dmitrymomot/notifykit/pkg/opensearch"
	"github.com/dmitrymomot/notifykit/pkg/pg"
	rdb "github.com/dmitrymomot/notifykit/pkg/redis"
	"github.com/dmitrymomot/notifykit/pkg/tenant"
	"github.com/dmitrymomot/notifykit/svc/dispatch"
)

const closeTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	config.LoadDotenv()

	var cfg dispatch.Config
	if err := config.Load(&cfg); err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(
		logger.WithEnvironment(cfg.Environment, cfg.ServiceName),
		logger.WithContextExtractors(tenant.LoggerExtractor(), requestIDExtractor),
	)
	logger.SetAsDefault(log)

	opts := []dispatch.Option{dispatch.WithLogger(log)}

	if cfg.UsePostgres {
		var pgCfg pg.Config
		if err := config.Load(&pgCfg); err != nil {
			return fmt.Errorf("load postgres config: %w", err)
		}
		pool, err := pg.Connect(ctx, pgCfg)
		if err != nil {
			return err
		}
		defer pool.Close()
		if pgCfg.AutoMigrate {
			if err := pg.Migrate(ctx, pool, migrations.FS, pgCfg, log); err != nil {
				return err
			}
		}
		opts = append(opts, dispatch.WithPostgres(pool))
	}

	if cfg.UseRedis {
		var redisCfg rdb.Config
		if err := config.Load(&redisCfg); err != nil {
			return fmt.Errorf("load redis config: %w", err)
		}
		client, err := rdb.Connect(ctx, redisCfg)
		if err != nil {
			// Rate limiting degrades to per-process counters.
			log.WarnContext(ctx, "redis unavailable, falling back to in-memory rate limits", logger.Error(err))
		} else {
			defer client.Close()
			opts = append(opts, dispatch.WithRedis(client))
		}
	}

	if cfg.UseMongo {
		var mongoCfg mongodb.Config
		if err := config.Load(&mongoCfg); err != nil {
			return fmt.Errorf("load mongo config: %w", err)
		}
		db, err := mongodb.ConnectDatabase(ctx, mongoCfg)
		if err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
			defer cancel()
			_ = db.Client().Disconnect(ctx)
		}()
		opts = append(opts, dispatch.WithMongo(db))
	}

	if cfg.UseOpenSearch {
		var searchCfg search.Config
		if err := config.Load(&searchCfg); err != nil {
			return fmt.Errorf("load opensearch config: %w", err)
		}
		client, err := search.New(ctx, searchCfg)
		if err != nil {
			return err
		}
		if err := search.NewIndexer(client, searchCfg.DeliveryIndex).EnsureIndex(ctx); err != nil {
			return err
		}
		opts = append(opts, dispatch.WithOpenSearch(client, searchCfg.DeliveryIndex))
	}

	app, err := dispatch.New(ctx, cfg, opts...)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if err := app.Close(ctx); err != nil {
			log.Error("close dispatch", logger.Error(err))
		}
	}()

	log.InfoContext(ctx, "notifyd starting", slog.String("addr", cfg.HTTP.Addr))
	return app.Run(ctx)
}

func requestIDExtractor(ctx context.Context) (slog.Attr, bool) {
	if id := middleware.GetReqID(ctx); id != "" {
		return slog.String("request_id", id), true
	}
	return slog.Attr{}, false
}
