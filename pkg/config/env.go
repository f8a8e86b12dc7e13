package config

// EnvPrefix is handed to envconfig; every field carries an explicit envconfig tag.
const EnvPrefix = "MARGINLEDGER"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv        = "MARGINLEDGER_APP_ENV"
	EnvPort          = "MARGINLEDGER_APP_PORT"
	EnvDBDSN         = "MARGINLEDGER_DB_DSN"
	EnvDBHost        = "MARGINLEDGER_DB_HOST"
	EnvDBUser        = "MARGINLEDGER_DB_USER"
	EnvDBName        = "MARGINLEDGER_DB_NAME"
	EnvRedisURL      = "MARGINLEDGER_REDIS_URL"
	EnvJWTSecret     = "MARGINLEDGER_JWT_SECRET"
	EnvJWTIssuer     = "MARGINLEDGER_JWT_ISSUER"
	EnvWebhookSecret = "MARGINLEDGER_WEBHOOK_SECRET"
	EnvWebhookUnsign = "MARGINLEDGER_WEBHOOK_ALLOW_UNSIGNED"
	EnvSyncInterval  = "MARGINLEDGER_SYNC_INTERVAL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
