package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Storefront   StorefrontConfig
	Webhook      WebhookConfig
	Sync         SyncConfig
	Wallet       WalletConfig
	Cron         CronConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Webhook.validate(cfg.App); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"MARGINLEDGER_APP_ENV" required:"true"`
	Port         string `envconfig:"MARGINLEDGER_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"MARGINLEDGER_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"MARGINLEDGER_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"MARGINLEDGER_LOG_WARN_STACK" default:"false"`

	CORSOrigins []string `envconfig:"MARGINLEDGER_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"MARGINLEDGER_DB_DSN"`
	Driver string `envconfig:"MARGINLEDGER_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"MARGINLEDGER_DB_HOST"`
	LegacyPort     int    `envconfig:"MARGINLEDGER_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"MARGINLEDGER_DB_USER"`
	LegacyPassword string `envconfig:"MARGINLEDGER_DB_PASSWORD"`
	LegacyName     string `envconfig:"MARGINLEDGER_DB_NAME"`
	LegacySSLMode  string `envconfig:"MARGINLEDGER_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MARGINLEDGER_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MARGINLEDGER_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MARGINLEDGER_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MARGINLEDGER_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"MARGINLEDGER_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MARGINLEDGER_REDIS_URL" required:"true"`
	Address      string        `envconfig:"MARGINLEDGER_REDIS_ADDR"`
	Password     string        `envconfig:"MARGINLEDGER_REDIS_PASSWORD"`
	DB           int           `envconfig:"MARGINLEDGER_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MARGINLEDGER_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MARGINLEDGER_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MARGINLEDGER_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MARGINLEDGER_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MARGINLEDGER_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"MARGINLEDGER_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"MARGINLEDGER_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"MARGINLEDGER_JWT_EXPIRATION_MINUTES" default:"60"`
}

// StorefrontConfig drives the outbound platform client. DefaultAccessToken is only
// consulted when a store connection carries no token of its own (local development).
type StorefrontConfig struct {
	APIVersion         string        `envconfig:"MARGINLEDGER_STOREFRONT_API_VERSION" default:"2024-01"`
	LegacyAPIVersion   string        `envconfig:"MARGINLEDGER_STOREFRONT_LEGACY_API_VERSION" default:"2023-04"`
	Timeout            time.Duration `envconfig:"MARGINLEDGER_STOREFRONT_TIMEOUT" default:"15s"`
	ReadRetries        uint64        `envconfig:"MARGINLEDGER_STOREFRONT_READ_RETRIES" default:"2"`
	RetryBase          time.Duration `envconfig:"MARGINLEDGER_STOREFRONT_RETRY_BASE" default:"250ms"`
	PageSize           int           `envconfig:"MARGINLEDGER_STOREFRONT_PAGE_SIZE" default:"250"`
	Scheme             string        `envconfig:"MARGINLEDGER_STOREFRONT_SCHEME" default:"https"`
	DefaultAccessToken string        `envconfig:"MARGINLEDGER_STOREFRONT_ACCESS_TOKEN"`
}

type WebhookConfig struct {
	Secret         string        `envconfig:"MARGINLEDGER_WEBHOOK_SECRET"`
	AllowUnsigned  bool          `envconfig:"MARGINLEDGER_WEBHOOK_ALLOW_UNSIGNED" default:"false"`
	IdempotencyTTL time.Duration `envconfig:"MARGINLEDGER_WEBHOOK_IDEMPOTENCY_TTL" default:"72h"`
}

// AcceptsUnsigned reports whether unsigned webhook deliveries may be processed.
// A configured secret always wins over the flag.
func (w WebhookConfig) AcceptsUnsigned(app AppConfig) bool {
	return w.AllowUnsigned && strings.TrimSpace(w.Secret) == "" && app.IsDev()
}

func (w WebhookConfig) validate(app AppConfig) error {
	if strings.TrimSpace(w.Secret) != "" {
		return nil
	}
	if w.AllowUnsigned && app.IsDev() {
		return nil
	}
	if app.IsProd() {
		return fmt.Errorf("%s is required outside development", EnvWebhookSecret)
	}
	return nil
}

type SyncConfig struct {
	Interval    time.Duration `envconfig:"MARGINLEDGER_SYNC_INTERVAL" default:"15m"`
	Concurrency int           `envconfig:"MARGINLEDGER_SYNC_CONCURRENCY" default:"4"`
	Lookback    time.Duration `envconfig:"MARGINLEDGER_SYNC_LOOKBACK" default:"720h"`

	// ManualLimit caps admin-triggered syncs per caller within ManualWindow.
	ManualLimit  int           `envconfig:"MARGINLEDGER_SYNC_MANUAL_LIMIT" default:"5"`
	ManualWindow time.Duration `envconfig:"MARGINLEDGER_SYNC_MANUAL_WINDOW" default:"1m"`
}

type WalletConfig struct {
	RetryBatchSize   int           `envconfig:"MARGINLEDGER_WALLET_RETRY_BATCH_SIZE" default:"50"`
	RetryMaxAttempts int           `envconfig:"MARGINLEDGER_WALLET_RETRY_MAX_ATTEMPTS" default:"10"`
	CASRetries       uint64        `envconfig:"MARGINLEDGER_WALLET_CAS_RETRIES" default:"5"`
	CASRetryBase     time.Duration `envconfig:"MARGINLEDGER_WALLET_CAS_RETRY_BASE" default:"20ms"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"MARGINLEDGER_CRON_INTERVAL" default:"15m"`
	LockTTL  time.Duration `envconfig:"MARGINLEDGER_CRON_LOCK_TTL" default:"1h"`

	ReconcileEvery      time.Duration `envconfig:"MARGINLEDGER_CRON_RECONCILE_EVERY" default:"1h"`
	OutboxRetentionDays int           `envconfig:"MARGINLEDGER_CRON_OUTBOX_RETENTION_DAYS" default:"30"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"MARGINLEDGER_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
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
