package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/storefront-backend/api/controllers"
	ordercontrollers "github.com/angelmondragon/storefront-backend/api/controllers/orders"
	webhookcontrollers "github.com/angelmondragon/storefront-backend/api/controllers/webhooks"
	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/internal/auth"
	"github.com/angelmondragon/storefront-backend/internal/coupons"
	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/internal/ledger"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	product "github.com/angelmondragon/storefront-backend/internal/products"
	stripewebhook "github.com/angelmondragon/storefront-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

// KeyValueStore is the Redis surface the HTTP layer needs.
type KeyValueStore interface {
	Ping(ctx context.Context) error
	Lookup(ctx context.Context, key string) (string, bool, error)
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	SwapIfValue(ctx context.Context, key, expect, next string, ttl time.Duration) (bool, error)
	DeleteIfValue(ctx context.Context, key, value string) (bool, error)
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	IdempotencyKey(scope, id string) string
}

// PaymentVerifier confirms card payments polled by the checkout return page.
type PaymentVerifier interface {
	Verify(ctx context.Context, orderID, userID uuid.UUID, clientSuccess bool) (bool, error)
}

// StripeEventGuard deduplicates Stripe webhook deliveries.
type StripeEventGuard interface {
	Claim(ctx context.Context, eventID string) (stripewebhook.Claim, error)
	Complete(ctx context.Context, eventID string) error
	Release(ctx context.Context, eventID string) error
}

// StripeSigner exposes the webhook signing secret.
type StripeSigner interface {
	SigningSecret() string
}

// Dependencies wires the router. The Stripe fields are nil when card
// payments are not configured; those routes are then not mounted.
type Dependencies struct {
	Config  *config.Config
	Logger  *logger.Logger
	DB      controllers.Pinger
	Redis   KeyValueStore
	Metrics prometheus.Gatherer
	HTTP    *metrics.HTTPMetrics

	Auth      auth.Service
	Register  auth.RegisterService
	Products  product.Service
	Inventory inventory.Service
	Ledger    ledger.Service
	Coupons   coupons.Service
	Orders    orders.Service

	Verifier      PaymentVerifier
	StripeClient  StripeSigner
	StripeWebhook webhookcontrollers.StripeWebhookService
	StripeGuard   StripeEventGuard
}

func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(logg),
		middleware.Recoverer(logg),
		middleware.Logging(logg, deps.HTTP),
		middleware.CORS(cfg.App),
	)

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)
	registerPolicy := middleware.NewAuthRateLimitPolicy(
		"register",
		cfg.AuthRateLimit.RegisterWindow,
		cfg.AuthRateLimit.RegisterIPLimit,
		cfg.AuthRateLimit.RegisterEmailLimit,
	)

	var rateStore interface {
		IncrWithTTL(context.Context, string, time.Duration) (int64, error)
	}
	readiness := map[string]controllers.Pinger{}
	if deps.DB != nil {
		readiness["database"] = deps.DB
	}
	if deps.Redis != nil {
		rateStore = deps.Redis
		readiness["redis"] = deps.Redis
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, readiness, logg))
	})

	if deps.Metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Metrics, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/user", func(r chi.Router) {
			r.With(middleware.AuthRateLimit(loginPolicy, rateStore, logg)).Post("/login", controllers.AuthLogin(deps.Auth, logg))
			r.With(middleware.AuthRateLimit(loginPolicy, rateStore, logg)).Post("/admin", controllers.AdminAuthLogin(deps.Auth, logg))
			r.With(middleware.AuthRateLimit(registerPolicy, rateStore, logg)).Post("/register", controllers.AuthRegister(deps.Register, logg))
		})

		r.Get("/product/list", controllers.ListProducts(deps.Products, logg))
		r.Get("/product/{productId}", controllers.GetProduct(deps.Products, logg))

		if deps.StripeWebhook != nil && deps.StripeClient != nil && deps.StripeGuard != nil {
			r.Post("/order/webhook/stripe", webhookcontrollers.StripeWebhook(deps.StripeWebhook, deps.StripeClient, deps.StripeGuard, logg))
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))
			if deps.Redis != nil {
				r.Use(middleware.Idempotency(deps.Redis, logg))
			}

			r.Post("/order/place", ordercontrollers.PlaceCOD(deps.Orders, logg))
			r.Post("/order/stripe", ordercontrollers.PlaceStripe(deps.Orders, logg))
			r.Post("/order/verifyStripe", ordercontrollers.VerifyStripe(deps.Verifier, logg))
			r.Post("/order/cancel", ordercontrollers.Cancel(deps.Orders, logg))
			r.Post("/order/userorders", ordercontrollers.UserOrders(deps.Orders, logg))

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireStaff(logg))

				r.Post("/order/status", ordercontrollers.UpdateStatus(deps.Orders, logg))
				r.Get("/order/list", ordercontrollers.List(deps.Orders, logg))
				r.Post("/inventory/adjust", controllers.AdjustStock(deps.Inventory, logg))
				r.Get("/inventory/ledger", controllers.ListLedger(deps.Ledger, logg))
				r.Post("/product/add", controllers.CreateProduct(deps.Products, logg))
				r.Post("/product/price", controllers.UpdateProductPrice(deps.Products, logg))
				r.Post("/coupon/add", controllers.CreateCoupon(deps.Coupons, logg))
			})
		})
	})

	return r
}
