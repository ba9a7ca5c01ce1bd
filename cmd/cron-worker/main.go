package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/storefront-backend/internal/coupons"
	"github.com/angelmondragon/storefront-backend/internal/cron"
	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	product "github.com/angelmondragon/storefront-backend/internal/products"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/instance"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
	"github.com/angelmondragon/storefront-backend/pkg/money"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
	pkgstripe "github.com/angelmondragon/storefront-backend/pkg/stripe"
)

const serviceName = "cron-worker"

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceName})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.ForApp(serviceName, cfg.App)

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	reg := metrics.Registry()
	outboxRepo := outbox.NewRepository(dbClient.DB())

	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:        logg,
		DB:            dbClient,
		Repository:    outboxRepo,
		Metrics:       metrics.NewOutboxBacklog(reg),
		RetentionDays: cfg.Outbox.RetentionDays,
		MaxAttempts:   cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox retention job", err)
		os.Exit(1)
	}
	jobs := []cron.Job{retentionJob}

	if cfg.Stripe.Enabled() {
		reconcileJob, err := buildPaymentReconcileJob(cfg, logg, dbClient, outboxRepo, reg)
		if err != nil {
			logg.Error(context.Background(), "failed to create payment reconcile job", err)
			os.Exit(1)
		}
		jobs = append(jobs, reconcileJob)
	} else {
		logg.Warn(context.Background(), "stripe not configured, payment reconciliation disabled")
	}

	registry, err := cron.NewRegistry(jobs...)
	if err != nil {
		logg.Error(context.Background(), "failed to register cron jobs", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, serviceName+":"+lockScope(cfg.App.Env), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   registry,
		Lock:       lock,
		Metrics:    metrics.NewCronJobMetrics(reg),
		Interval:   cfg.Cron.Interval,
		JobTimeout: cfg.Cron.JobTimeout,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"instance": instance.ID(serviceName),
	})

	metricsSrv := &http.Server{
		Addr:              ":" + cfg.App.MetricsPort,
		Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "metrics server stopped", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}()

	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

// buildPaymentReconcileJob wires the order lifecycle the same way the API
// does so reconciled payments decrement stock through the usual path.
func buildPaymentReconcileJob(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, outboxRepo *outbox.Repository, reg prometheus.Registerer) (cron.Job, error) {
	ctx := context.Background()

	stripeClient, err := pkgstripe.NewClient(ctx, cfg.Stripe, logg)
	if err != nil {
		return nil, err
	}
	gateway, err := payments.NewGateway(stripeClient, cfg.Checkout.Currency)
	if err != nil {
		return nil, err
	}

	deliveryFee, err := money.ParseCents(cfg.Checkout.DeliveryFee)
	if err != nil {
		return nil, err
	}

	orderMetrics := metrics.NewOrderMetrics(reg)
	outboxService := outbox.NewService(outboxRepo, logg)

	inventoryService, err := inventory.NewService(inventory.ServiceParams{
		Repo:    inventory.NewRepository(dbClient.DB()),
		TX:      dbClient,
		Outbox:  outboxService,
		Metrics: orderMetrics,
		Logger:  logg,
	})
	if err != nil {
		return nil, err
	}

	catalog, err := product.NewService(product.NewRepository(dbClient.DB()), dbClient, inventoryService)
	if err != nil {
		return nil, err
	}

	couponService, err := coupons.NewService(coupons.NewRepository(dbClient.DB()))
	if err != nil {
		return nil, err
	}

	ordersRepo := orders.NewRepository(dbClient.DB())
	ordersService, err := orders.NewService(orders.ServiceParams{
		Repo:             ordersRepo,
		TX:               dbClient,
		Outbox:           outboxService,
		Inventory:        inventoryService,
		Catalog:          catalog,
		Coupons:          couponService,
		Gateway:          gateway,
		Metrics:          orderMetrics,
		Logger:           logg,
		DeliveryFeeCents: deliveryFee,
		Currency:         cfg.Checkout.Currency,
	})
	if err != nil {
		return nil, err
	}

	return cron.NewPaymentReconcileJob(cron.PaymentReconcileJobParams{
		Logger:       logg,
		Orders:       ordersRepo,
		Gateway:      gateway,
		Confirmer:    ordersService,
		PendingAfter: cfg.Cron.PaymentPendingAfter,
		BatchSize:    cfg.Cron.PaymentReconcileSize,
	})
}

func lockScope(env string) string {
	if env == "" {
		return "local"
	}
	return env
}
