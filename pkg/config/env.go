package config

// EnvPrefix is empty because every variable carries its full HANDMADE_ name.
const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"

	DefaultSQLiteDSN = "file:handmade.db?_foreign_keys=on"
)

const (
	EnvAppEnv                 = "HANDMADE_APP_ENV"
	EnvPort                   = "HANDMADE_APP_PORT"
	EnvLogLevel               = "HANDMADE_LOG_LEVEL"
	EnvDBDSN                  = "HANDMADE_DB_DSN"
	EnvDBDriver               = "HANDMADE_DB_DRIVER"
	EnvDBHost                 = "HANDMADE_DB_HOST"
	EnvDBUser                 = "HANDMADE_DB_USER"
	EnvDBPassword             = "HANDMADE_DB_PASSWORD"
	EnvDBName                 = "HANDMADE_DB_NAME"
	EnvRedisURL               = "HANDMADE_REDIS_URL"
	EnvJWTSecret              = "HANDMADE_JWT_SECRET"
	EnvJWTIssuer              = "HANDMADE_JWT_ISSUER"
	EnvJWTExpMins             = "HANDMADE_JWT_EXPIRATION_MINUTES"
	EnvRefreshTokenTTLMinutes = "HANDMADE_REFRESH_TOKEN_TTL_MINUTES"
	EnvCommissionRate         = "HANDMADE_COMMISSION_RATE_PERCENT"
	EnvGCPProjectID           = "HANDMADE_GCP_PROJECT_ID"
	EnvPubSubMarketplaceTopic = "HANDMADE_PUBSUB_MARKETPLACE_TOPIC"
	EnvOutboxRetention        = "HANDMADE_OUTBOX_RETENTION"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
