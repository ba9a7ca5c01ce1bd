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

	"github.com/angelmondragon/storefront-backend/api/routes"
	"github.com/angelmondragon/storefront-backend/internal/auth"
	"github.com/angelmondragon/storefront-backend/internal/coupons"
	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/internal/ledger"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	product "github.com/angelmondragon/storefront-backend/internal/products"
	"github.com/angelmondragon/storefront-backend/internal/users"
	stripewebhook "github.com/angelmondragon/storefront-backend/internal/webhooks/stripe"
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

const serviceName = "api"

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

	if _, err := auth.EnsureStaff(context.Background(), dbClient, cfg.Admin, cfg.Password, logg); err != nil {
		logg.Error(context.Background(), "failed to seed staff account", err)
		os.Exit(1)
	}

	deps, err := buildDependencies(cfg, logg, dbClient, redisClient)
	if err != nil {
		logg.Error(context.Background(), "failed to wire api dependencies", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"addr":     addr,
		"instance": instance.ID(serviceName),
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Error(ctx, "api server shutdown failed", err)
	}
	logg.Info(ctx, "api server shutting down gracefully")
}

func buildDependencies(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) (routes.Dependencies, error) {
	ctx := context.Background()
	reg := metrics.Registry()
	orderMetrics := metrics.NewOrderMetrics(reg)

	deps := routes.Dependencies{
		Config:  cfg,
		Logger:  logg,
		DB:      dbClient,
		Redis:   redisClient,
		Metrics: reg,
		HTTP:    metrics.NewHTTPMetrics(reg),
	}

	authService, err := auth.NewService(auth.ServiceParams{
		UserRepo:       users.NewRepository(dbClient.DB()),
		JWTConfig:      cfg.JWT,
		PasswordConfig: cfg.Password,
		Logger:         logg,
	})
	if err != nil {
		return deps, err
	}
	registerService, err := auth.NewRegisterService(auth.RegisterServiceParams{
		DB:             dbClient,
		JWTConfig:      cfg.JWT,
		PasswordConfig: cfg.Password,
	})
	if err != nil {
		return deps, err
	}

	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	inventoryService, err := inventory.NewService(inventory.ServiceParams{
		Repo:    inventory.NewRepository(dbClient.DB()),
		TX:      dbClient,
		Outbox:  outboxService,
		Metrics: orderMetrics,
		Logger:  logg,
	})
	if err != nil {
		return deps, err
	}

	catalog, err := product.NewService(product.NewRepository(dbClient.DB()), dbClient, inventoryService)
	if err != nil {
		return deps, err
	}

	couponService, err := coupons.NewService(coupons.NewRepository(dbClient.DB()))
	if err != nil {
		return deps, err
	}

	ledgerService, err := ledger.NewService(ledger.NewRepository(dbClient.DB()))
	if err != nil {
		return deps, err
	}

	deliveryFee, err := money.ParseCents(cfg.Checkout.DeliveryFee)
	if err != nil {
		return deps, err
	}

	params := orders.ServiceParams{
		Repo:             orders.NewRepository(dbClient.DB()),
		TX:               dbClient,
		Outbox:           outboxService,
		Inventory:        inventoryService,
		Catalog:          catalog,
		Coupons:          couponService,
		Metrics:          orderMetrics,
		Logger:           logg,
		DeliveryFeeCents: deliveryFee,
		Currency:         cfg.Checkout.Currency,
	}

	var (
		stripeClient *pkgstripe.Client
		gateway      *payments.Gateway
	)
	if cfg.Stripe.Enabled() {
		stripeClient, err = pkgstripe.NewClient(ctx, cfg.Stripe, logg)
		if err != nil {
			return deps, err
		}
		gateway, err = payments.NewGateway(stripeClient, cfg.Checkout.Currency)
		if err != nil {
			return deps, err
		}
		params.Gateway = gateway
	} else {
		logg.Warn(ctx, "stripe not configured, card checkout disabled")
	}

	ordersService, err := orders.NewService(params)
	if err != nil {
		return deps, err
	}

	deps.Auth = authService
	deps.Register = registerService
	deps.Products = catalog
	deps.Inventory = inventoryService
	deps.Ledger = ledgerService
	deps.Coupons = couponService
	deps.Orders = ordersService

	if stripeClient == nil {
		return deps, nil
	}

	verifier, err := payments.NewVerifier(ordersService, ordersService, gateway, logg)
	if err != nil {
		return deps, err
	}
	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Confirmer: ordersService,
		Logger:    logg,
	})
	if err != nil {
		return deps, err
	}
	guard, err := stripewebhook.NewIdempotencyGuard(redisClient, cfg.Outbox.IdempotencyTTL)
	if err != nil {
		return deps, err
	}

	deps.Verifier = verifier
	deps.StripeClient = stripeClient
	deps.StripeWebhook = webhookService
	deps.StripeGuard = guard
	return deps, nil
}
