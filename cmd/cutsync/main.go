package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/cutsync/modules/billing"
	"github.com/dmitrymomot/cutsync/pkg/config"
	"github.com/dmitrymomot/cutsync/pkg/httpserver"
	"github.com/dmitrymomot/cutsync/pkg/logger"
	"github.com/dmitrymomot/cutsync/pkg/pg"
	"github.com/dmitrymomot/cutsync/pkg/queue"
	"github.com/dmitrymomot/cutsync/pkg/redis"
	"github.com/dmitrymomot/cutsync/pkg/subscription"
	"github.com/dmitrymomot/cutsync/pkg/subscription/pgstore"
	"github.com/dmitrymomot/cutsync/pkg/webhook"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "cutsync: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	var cfg appConfig
	if err := config.Load(&cfg); err != nil {
		return err
	}

	log := logger.New(
		logger.WithEnvironment(cfg.Env, cfg.ServiceName),
		logger.WithContextExtractors(httpserver.RequestIDExtractor()),
	)
	slog.SetDefault(log)

	pool, err := pg.Connect(ctx, cfg.PG)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool, pgstore.Migrations(), cfg.PG, log); err != nil {
		return err
	}

	rdb, err := redis.Connect(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer rdb.Close()

	provider, err := subscription.NewStripeProvider(cfg.Stripe, cfg.Billing.WebhookTolerance)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := subscription.NewMetrics(reg)

	tasks := pgstore.NewQueueStorage(pool)
	enqueuer, err := queue.NewEnqueuer(tasks, queue.WithDefaultMaxAttempts(cfg.Queue.MaxAttempts))
	if err != nil {
		return err
	}
	worker, err := queue.NewWorker(tasks, queue.WithConfig(cfg.Queue), queue.WithWorkerLogger(log))
	if err != nil {
		return err
	}

	opts := []subscription.Option{
		subscription.WithLogger(log),
		subscription.WithMetrics(metrics),
		subscription.WithProviderTimeout(cfg.Billing.ProviderTimeout),
		subscription.WithCatalogCache(redis.NewJSONCache[subscription.CatalogEntry](rdb, "cutsync:catalog", cfg.Billing.CatalogCacheTTL)),
	}
	if cfg.Billing.RewardWebhookURL != "" {
		delivery := subscription.NewRewardDelivery(webhook.NewSender(), cfg.Billing.RewardWebhookURL, cfg.Billing.RewardWebhookSecret, opts...)
		if err := worker.RegisterHandler(delivery.Handler()); err != nil {
			return err
		}
		opts = append(opts, subscription.WithRewards(subscription.NewQueueRewards(enqueuer, cfg.Queue.MaxAttempts)))
	} else {
		log.WarnContext(ctx, "reward webhook url not set, loyalty rewards are disabled")
	}

	svc, components := subscription.Wire(provider, pgstore.New(pool), pgstore.NewAppointmentVerifier(pool), opts...)

	r := chi.NewRouter()
	r.Use(httpserver.RequestID, httpserver.Recoverer, httpserver.AccessLog(log))
	r.Get("/healthz", httpserver.HealthCheckHandler(log, 5*time.Second,
		httpserver.Check{Name: "postgres", Fn: pg.Healthcheck(pool)},
		httpserver.Check{Name: "redis", Fn: redis.Healthcheck(rdb)},
	))
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	r.Mount("/", billing.Router(billing.RouterOptions{
		Webhooks: billing.NewWebhookHandler(svc, billing.WithLogger(log)),
		API:      billing.NewAPIHandler(svc, billing.WithLogger(log)),
	}))

	srv := httpserver.NewFromConfig(cfg.HTTP, httpserver.WithLogger(log))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx, r) })
	g.Go(func() error { return components.Catalog.Run(gctx, cfg.Billing.CatalogSyncInterval) })
	if cfg.Billing.RewardWebhookURL != "" {
		g.Go(worker.Run(gctx))
	}

	return g.Wait()
}
