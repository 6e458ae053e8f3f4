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
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	Eventing      EventingConfig
	Commerce      CommerceConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	BigQuery      BigQueryConfig
	Outbox        OutboxConfig
	Cron          CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if cfg.Commerce.CommissionRatePercent < 0 || cfg.Commerce.CommissionRatePercent > 100 {
		return nil, fmt.Errorf("%s must be between 0 and 100", EnvCommissionRate)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"HANDMADE_APP_ENV" required:"true"`
	Port         string `envconfig:"HANDMADE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"HANDMADE_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"HANDMADE_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"HANDMADE_LOG_WARN_STACK" default:"false"`
	CORSOrigins  string `envconfig:"HANDMADE_CORS_ALLOWED_ORIGINS" default:"*"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// AllowedOrigins splits the comma separated CORS origin list.
func (a AppConfig) AllowedOrigins() []string {
	out := []string{}
	for _, origin := range strings.Split(a.CORSOrigins, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

type ServiceConfig struct {
	Kind string `envconfig:"HANDMADE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"HANDMADE_DB_DSN"`
	Driver string `envconfig:"HANDMADE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"HANDMADE_DB_HOST"`
	LegacyPort     int    `envconfig:"HANDMADE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"HANDMADE_DB_USER"`
	LegacyPassword string `envconfig:"HANDMADE_DB_PASSWORD"`
	LegacyName     string `envconfig:"HANDMADE_DB_NAME"`
	LegacySSLMode  string `envconfig:"HANDMADE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"HANDMADE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"HANDMADE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"HANDMADE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"HANDMADE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	// SlowQuery is the duration above which a statement is logged; 0 turns
	// slow query logging off.
	SlowQuery time.Duration `envconfig:"HANDMADE_DB_SLOW_QUERY" default:"500ms"`
}

// IsSQLite reports whether the sqlite dialector was selected.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"HANDMADE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"HANDMADE_REDIS_ADDR"`
	Password     string        `envconfig:"HANDMADE_REDIS_PASSWORD"`
	DB           int           `envconfig:"HANDMADE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"HANDMADE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"HANDMADE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"HANDMADE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"HANDMADE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"HANDMADE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret                 string `envconfig:"HANDMADE_JWT_SECRET" required:"true"`
	Issuer                 string `envconfig:"HANDMADE_JWT_ISSUER" required:"true"`
	ExpirationMinutes      int    `envconfig:"HANDMADE_JWT_EXPIRATION_MINUTES" required:"true"`
	RefreshTokenTTLMinutes int    `envconfig:"HANDMADE_REFRESH_TOKEN_TTL_MINUTES" default:"43200"`
}

// RefreshTokenTTL returns the refresh token TTL configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"HANDMADE_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"HANDMADE_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"HANDMADE_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"HANDMADE_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"HANDMADE_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"HANDMADE_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit    int           `envconfig:"HANDMADE_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit       int           `envconfig:"HANDMADE_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	RegisterWindow     time.Duration `envconfig:"HANDMADE_AUTH_RATE_LIMIT_REGISTER_WINDOW" default:"5m"`
	RegisterEmailLimit int           `envconfig:"HANDMADE_AUTH_RATE_LIMIT_REGISTER_EMAIL_LIMIT" default:"3"`
	RegisterIPLimit    int           `envconfig:"HANDMADE_AUTH_RATE_LIMIT_REGISTER_IP_LIMIT" default:"20"`
}

type FeatureFlagsConfig struct {
	AutoMigrate        bool `envconfig:"HANDMADE_AUTO_MIGRATE" default:"false"`
	AllowAdminRegister bool `envconfig:"HANDMADE_ALLOW_ADMIN_REGISTER" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"HANDMADE_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type CommerceConfig struct {
	CommissionRatePercent     int64 `envconfig:"HANDMADE_COMMISSION_RATE_PERCENT" default:"5"`
	AdminTransactionsLimit    int   `envconfig:"HANDMADE_ADMIN_TRANSACTIONS_DEFAULT_LIMIT" default:"100"`
	AdminTransactionsMaxLimit int   `envconfig:"HANDMADE_ADMIN_TRANSACTIONS_MAX_LIMIT" default:"500"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"HANDMADE_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"HANDMADE_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"HANDMADE_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	MarketplaceTopic      string `envconfig:"HANDMADE_PUBSUB_MARKETPLACE_TOPIC" default:"hm-marketplace-events"`
	AnalyticsSubscription string `envconfig:"HANDMADE_PUBSUB_ANALYTICS_SUBSCRIPTION" default:"hm-marketplace-analytics"`
}

type BigQueryConfig struct {
	Dataset                string `envconfig:"HANDMADE_BIGQUERY_DATASET" default:"handmade"`
	MarketplaceEventsTable string `envconfig:"HANDMADE_BIGQUERY_MARKETPLACE_TABLE" default:"marketplace_events"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"HANDMADE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"HANDMADE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"HANDMADE_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"HANDMADE_OUTBOX_RETENTION" default:"720h"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"HANDMADE_CRON_INTERVAL" default:"1h"`
	LockTTL  time.Duration `envconfig:"HANDMADE_CRON_LOCK_TTL" default:"10m"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		db.DSN = DefaultSQLiteDSN
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
