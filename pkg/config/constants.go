package config

const (
	EnvPrefix = "STOREFRONT"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv        = "STOREFRONT_APP_ENV"
	EnvDBDSN         = "STOREFRONT_DB_DSN"
	EnvDBHost        = "STOREFRONT_DB_HOST"
	EnvDBUser        = "STOREFRONT_DB_USER"
	EnvDBName        = "STOREFRONT_DB_NAME"
	EnvUseSQLite     = "STOREFRONT_USE_SQLITE"
	EnvJWTSecret     = "STOREFRONT_JWT_SECRET"
	EnvDeliveryFee   = "STOREFRONT_DELIVERY_FEE"
	EnvGCPProjectID  = "STOREFRONT_GCP_PROJECT_ID"
	EnvPubSubEnabled = "STOREFRONT_PUBSUB_ENABLED"
	EnvCORSOrigins   = "STOREFRONT_CORS_ORIGINS"
)

var dbEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
