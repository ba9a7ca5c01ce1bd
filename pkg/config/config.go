package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	Checkout      CheckoutConfig
	Stripe        StripeConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	Outbox        OutboxConfig
	Cron          CronConfig
	Admin         AdminConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if cfg.PubSub.Enabled && strings.TrimSpace(cfg.GCP.ProjectID) == "" {
		return nil, fmt.Errorf("%s is required when %s is enabled", EnvGCPProjectID, EnvPubSubEnabled)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"STOREFRONT_APP_ENV" required:"true"`
	Port         string `envconfig:"STOREFRONT_APP_PORT" default:"8080"`
	MetricsPort  string `envconfig:"STOREFRONT_METRICS_PORT" default:"9090"`
	LogLevel     string `envconfig:"STOREFRONT_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"STOREFRONT_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"STOREFRONT_LOG_WARN_STACK" default:"false"`
	FrontendURL  string `envconfig:"STOREFRONT_FRONTEND_URL" default:"http://localhost:5173"`
	CORSOrigins  string `envconfig:"STOREFRONT_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// AllowedOrigins splits the comma separated origin list, falling back to the frontend URL.
func (a AppConfig) AllowedOrigins() []string {
	origins := []string{}
	for _, raw := range strings.Split(a.CORSOrigins, ",") {
		if origin := strings.TrimSpace(raw); origin != "" {
			origins = append(origins, origin)
		}
	}
	if len(origins) == 0 && strings.TrimSpace(a.FrontendURL) != "" {
		origins = append(origins, strings.TrimSpace(a.FrontendURL))
	}
	return origins
}

type DBConfig struct {
	DSN        string `envconfig:"STOREFRONT_DB_DSN"`
	SQLitePath string `envconfig:"STOREFRONT_SQLITE_PATH" default:"storefront.db"`

	Host     string `envconfig:"STOREFRONT_DB_HOST"`
	Port     int    `envconfig:"STOREFRONT_DB_PORT" default:"5432"`
	User     string `envconfig:"STOREFRONT_DB_USER"`
	Password string `envconfig:"STOREFRONT_DB_PASSWORD"`
	Name     string `envconfig:"STOREFRONT_DB_NAME"`
	SSLMode  string `envconfig:"STOREFRONT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"STOREFRONT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STOREFRONT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"STOREFRONT_DB_SLOW_QUERY" default:"250ms"`

	UseSQLite bool `ignored:"true"`
}

type RedisConfig struct {
	URL          string        `envconfig:"STOREFRONT_REDIS_URL"`
	Address      string        `envconfig:"STOREFRONT_REDIS_ADDR" default:"localhost:6379"`
	Password     string        `envconfig:"STOREFRONT_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOREFRONT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOREFRONT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOREFRONT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOREFRONT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"STOREFRONT_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"STOREFRONT_JWT_ISSUER" default:"storefront"`
	ExpirationMinutes int    `envconfig:"STOREFRONT_JWT_EXPIRATION_MINUTES" default:"10080"`
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"STOREFRONT_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"STOREFRONT_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"STOREFRONT_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"STOREFRONT_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"STOREFRONT_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"STOREFRONT_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit    int           `envconfig:"STOREFRONT_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit       int           `envconfig:"STOREFRONT_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	RegisterWindow     time.Duration `envconfig:"STOREFRONT_AUTH_RATE_LIMIT_REGISTER_WINDOW" default:"5m"`
	RegisterEmailLimit int           `envconfig:"STOREFRONT_AUTH_RATE_LIMIT_REGISTER_EMAIL_LIMIT" default:"3"`
	RegisterIPLimit    int           `envconfig:"STOREFRONT_AUTH_RATE_LIMIT_REGISTER_IP_LIMIT" default:"20"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"STOREFRONT_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"STOREFRONT_AUTO_MIGRATE" default:"false"`
}

// CheckoutConfig holds the pricing knobs applied when an order is placed.
type CheckoutConfig struct {
	Currency    string `envconfig:"STOREFRONT_CURRENCY" default:"brl"`
	DeliveryFee string `envconfig:"STOREFRONT_DELIVERY_FEE" default:"10.00"`
}

type StripeConfig struct {
	APIKey     string `envconfig:"STOREFRONT_STRIPE_API_KEY"`
	Secret     string `envconfig:"STOREFRONT_STRIPE_WEBHOOK_SECRET"`
	Env        string `envconfig:"STOREFRONT_STRIPE_ENV" default:"test"`
	SuccessURL string `envconfig:"STOREFRONT_STRIPE_SUCCESS_URL"`
	CancelURL  string `envconfig:"STOREFRONT_STRIPE_CANCEL_URL"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

// Enabled reports whether card payments can be offered at all.
func (s StripeConfig) Enabled() bool {
	return strings.TrimSpace(s.APIKey) != ""
}

type GCPConfig struct {
	ProjectID              string `envconfig:"STOREFRONT_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"STOREFRONT_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"STOREFRONT_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	Enabled        bool   `envconfig:"STOREFRONT_PUBSUB_ENABLED" default:"false"`
	OrdersTopic    string `envconfig:"STOREFRONT_PUBSUB_ORDERS_TOPIC" default:"storefront-orders"`
	InventoryTopic string `envconfig:"STOREFRONT_PUBSUB_INVENTORY_TOPIC" default:"storefront-inventory"`
	// Ordered keys messages by aggregate id so one order's events arrive in sequence.
	Ordered bool `envconfig:"STOREFRONT_PUBSUB_ORDERED" default:"true"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"STOREFRONT_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"STOREFRONT_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"STOREFRONT_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int           `envconfig:"STOREFRONT_OUTBOX_RETENTION_DAYS" default:"30"`
	IdempotencyTTL time.Duration `envconfig:"STOREFRONT_STRIPE_EVENT_TTL" default:"720h"`
}

type CronConfig struct {
	Interval             time.Duration `envconfig:"STOREFRONT_CRON_INTERVAL" default:"5m"`
	JobTimeout           time.Duration `envconfig:"STOREFRONT_CRON_JOB_TIMEOUT" default:"2m"`
	PaymentPendingAfter  time.Duration `envconfig:"STOREFRONT_CRON_PAYMENT_PENDING_AFTER" default:"15m"`
	PaymentReconcileSize int           `envconfig:"STOREFRONT_CRON_PAYMENT_BATCH" default:"100"`
}

// AdminConfig seeds the staff account used by the dashboard.
type AdminConfig struct {
	Name     string `envconfig:"STOREFRONT_ADMIN_NAME" default:"Store Admin"`
	Email    string `envconfig:"STOREFRONT_ADMIN_EMAIL"`
	Password string `envconfig:"STOREFRONT_ADMIN_PASSWORD"`
}

func (a AdminConfig) Configured() bool {
	return strings.TrimSpace(a.Email) != "" && a.Password != ""
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	db.UseSQLite = useSQLite
	if useSQLite || db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range dbEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}
	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
