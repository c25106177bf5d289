package config

// EnvPrefix is passed to envconfig; individual fields carry fully
// qualified envconfig tags so the prefix stays empty.
const EnvPrefix = ""

const (
	AppEnvDev  = "development"
	AppEnvProd = "production"
)

const (
	EnvAppEnv   = "FRETEPAY_APP_ENV"
	EnvPort     = "FRETEPAY_APP_PORT"
	EnvDBDSN    = "FRETEPAY_DB_DSN"
	EnvDBHost   = "FRETEPAY_DB_HOST"
	EnvDBUser   = "FRETEPAY_DB_USER"
	EnvDBName   = "FRETEPAY_DB_NAME"
	EnvRedisURL = "FRETEPAY_REDIS_URL"

	EnvGatewayMode            = "FRETEPAY_GATEWAY_MODE"
	EnvGatewayDefaultProvider = "FRETEPAY_GATEWAY_DEFAULT_PROVIDER"
	EnvGatewayCallTimeout     = "FRETEPAY_GATEWAY_CALL_TIMEOUT"

	EnvIuguAPIToken         = "FRETEPAY_IUGU_API_TOKEN"
	EnvIuguWebhookSecret    = "FRETEPAY_IUGU_WEBHOOK_SECRET"
	EnvPagarmeAPIKey        = "FRETEPAY_PAGARME_API_KEY"
	EnvPagarmeWebhookSecret = "FRETEPAY_PAGARME_WEBHOOK_SECRET"

	EnvSplitCourierPercent  = "FRETEPAY_SPLIT_COURIER_PERCENT"
	EnvSplitManagerPercent  = "FRETEPAY_SPLIT_MANAGER_PERCENT"
	EnvSplitPlatformPercent = "FRETEPAY_SPLIT_PLATFORM_PERCENT"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
