package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"

	"github.com/brunovalongo/fretepay-backend/pkg/enums"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	Gateway       GatewayConfig
	Iugu          IuguConfig
	Pagarme       PagarmeConfig
	Split         SplitConfig
	Consolidation ConsolidationConfig
	Retry         RetryConfig
}

// Load parses the environment and runs the fatal startup validations.
// Misconfigured split rates or provider credentials fail here, never
// per-request.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Gateway.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Split.validate(); err != nil {
		return nil, err
	}
	if cfg.Gateway.Mode() == enums.OperationModeProduction {
		if err := cfg.validateProductionSecrets(); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"FRETEPAY_APP_ENV" required:"true"`
	Port         string `envconfig:"FRETEPAY_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"FRETEPAY_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"FRETEPAY_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"FRETEPAY_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"FRETEPAY_DB_DSN"`
	Driver string `envconfig:"FRETEPAY_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"FRETEPAY_DB_HOST"`
	LegacyPort     int    `envconfig:"FRETEPAY_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"FRETEPAY_DB_USER"`
	LegacyPassword string `envconfig:"FRETEPAY_DB_PASSWORD"`
	LegacyName     string `envconfig:"FRETEPAY_DB_NAME"`
	LegacySSLMode  string `envconfig:"FRETEPAY_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"FRETEPAY_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"FRETEPAY_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"FRETEPAY_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"FRETEPAY_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	AutoMigrate bool `envconfig:"FRETEPAY_AUTO_MIGRATE" default:"false"`
}

type RedisConfig struct {
	URL          string        `envconfig:"FRETEPAY_REDIS_URL" required:"true"`
	Address      string        `envconfig:"FRETEPAY_REDIS_ADDR"`
	Password     string        `envconfig:"FRETEPAY_REDIS_PASSWORD"`
	DB           int           `envconfig:"FRETEPAY_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"FRETEPAY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"FRETEPAY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"FRETEPAY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"FRETEPAY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"FRETEPAY_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// GatewayConfig selects the operation mode, default provider, and the
// cross-provider call settings.
type GatewayConfig struct {
	ModeRaw         string        `envconfig:"FRETEPAY_GATEWAY_MODE" default:"sandbox"`
	DefaultProvider string        `envconfig:"FRETEPAY_GATEWAY_DEFAULT_PROVIDER" default:"pagarme"`
	CallTimeout     time.Duration `envconfig:"FRETEPAY_GATEWAY_CALL_TIMEOUT" default:"15s"`
	WebhookGuardTTL time.Duration `envconfig:"FRETEPAY_WEBHOOK_GUARD_TTL" default:"72h"`
}

// Mode returns the parsed operation mode; validate() rejected unknown
// values at Load time.
func (g GatewayConfig) Mode() enums.OperationMode {
	mode, err := enums.ParseOperationMode(strings.TrimSpace(strings.ToLower(g.ModeRaw)))
	if err != nil {
		return enums.OperationModeSandbox
	}
	return mode
}

// Default returns the configured default provider kind.
func (g GatewayConfig) Default() enums.GatewayKind {
	kind, err := enums.ParseGatewayKind(strings.TrimSpace(strings.ToLower(g.DefaultProvider)))
	if err != nil {
		return enums.GatewayKindPagarme
	}
	return kind
}

func (g GatewayConfig) validate() error {
	if _, err := enums.ParseOperationMode(strings.TrimSpace(strings.ToLower(g.ModeRaw))); err != nil {
		return fmt.Errorf("%s: %w", EnvGatewayMode, err)
	}
	kind, err := enums.ParseGatewayKind(strings.TrimSpace(strings.ToLower(g.DefaultProvider)))
	if err != nil {
		return fmt.Errorf("%s: %w", EnvGatewayDefaultProvider, err)
	}
	if kind == enums.GatewayKindDryRun {
		return fmt.Errorf("%s: dry_run is an operation mode, not a default provider", EnvGatewayDefaultProvider)
	}
	if g.CallTimeout <= 0 {
		return fmt.Errorf("%s must be positive", EnvGatewayCallTimeout)
	}
	return nil
}

type IuguConfig struct {
	APIToken      string `envconfig:"FRETEPAY_IUGU_API_TOKEN"`
	WebhookSecret string `envconfig:"FRETEPAY_IUGU_WEBHOOK_SECRET"`
	BaseURL       string `envconfig:"FRETEPAY_IUGU_BASE_URL"`
}

type PagarmeConfig struct {
	APIKey        string `envconfig:"FRETEPAY_PAGARME_API_KEY"`
	WebhookSecret string `envconfig:"FRETEPAY_PAGARME_WEBHOOK_SECRET"`
	BaseURL       string `envconfig:"FRETEPAY_PAGARME_BASE_URL"`
}

// SplitConfig carries the configured revenue split percentages.
type SplitConfig struct {
	CourierPercent  string `envconfig:"FRETEPAY_SPLIT_COURIER_PERCENT" default:"87"`
	ManagerPercent  string `envconfig:"FRETEPAY_SPLIT_MANAGER_PERCENT" default:"5"`
	PlatformPercent string `envconfig:"FRETEPAY_SPLIT_PLATFORM_PERCENT" default:"8"`
}

// Rates returns the parsed percentages in courier, manager, platform order.
func (s SplitConfig) Rates() (courier, manager, platform decimal.Decimal, err error) {
	courier, err = decimal.NewFromString(strings.TrimSpace(s.CourierPercent))
	if err != nil {
		return decimal.Zero, decimal.Zero, decimal.Zero, fmt.Errorf("courier percent: %w", err)
	}
	manager, err = decimal.NewFromString(strings.TrimSpace(s.ManagerPercent))
	if err != nil {
		return decimal.Zero, decimal.Zero, decimal.Zero, fmt.Errorf("manager percent: %w", err)
	}
	platform, err = decimal.NewFromString(strings.TrimSpace(s.PlatformPercent))
	if err != nil {
		return decimal.Zero, decimal.Zero, decimal.Zero, fmt.Errorf("platform percent: %w", err)
	}
	return courier, manager, platform, nil
}

func (s SplitConfig) validate() error {
	courier, manager, platform, err := s.Rates()
	if err != nil {
		return fmt.Errorf("split percentages: %w", err)
	}
	for name, rate := range map[string]decimal.Decimal{
		"courier":  courier,
		"manager":  manager,
		"platform": platform,
	} {
		if rate.IsNegative() {
			return fmt.Errorf("split percentages: %s rate is negative", name)
		}
	}
	hundred := decimal.NewFromInt(100)
	if sum := courier.Add(manager).Add(platform); !sum.Equal(hundred) {
		return fmt.Errorf("split percentages must sum to 100, got %s", sum)
	}
	return nil
}

type ConsolidationConfig struct {
	Enabled             bool          `envconfig:"FRETEPAY_CONSOLIDATION_ENABLED" default:"true"`
	Interval            time.Duration `envconfig:"FRETEPAY_CONSOLIDATION_INTERVAL" default:"4h"`
	Timezone            string        `envconfig:"FRETEPAY_CONSOLIDATION_TIMEZONE" default:"America/Sao_Paulo"`
	MaxOrdersPerInvoice int           `envconfig:"FRETEPAY_CONSOLIDATION_MAX_ORDERS" default:"10"`
	MinAmount           string        `envconfig:"FRETEPAY_CONSOLIDATION_MIN_AMOUNT" default:"1.00"`
	InvoiceExpiry       time.Duration `envconfig:"FRETEPAY_CONSOLIDATION_INVOICE_EXPIRY" default:"72h"`
	WorkerConcurrency   int           `envconfig:"FRETEPAY_CONSOLIDATION_WORKERS" default:"4"`
	RunTimeout          time.Duration `envconfig:"FRETEPAY_CONSOLIDATION_RUN_TIMEOUT" default:"5m"`
	ReconcileAfter      time.Duration `envconfig:"FRETEPAY_CONSOLIDATION_RECONCILE_AFTER" default:"30m"`
	LockTTL             time.Duration `envconfig:"FRETEPAY_CONSOLIDATION_LOCK_TTL" default:"10m"`
}

// MinAmountDecimal returns the minimum payable amount as a decimal.
func (c ConsolidationConfig) MinAmountDecimal() (decimal.Decimal, error) {
	minAmount, err := decimal.NewFromString(strings.TrimSpace(c.MinAmount))
	if err != nil {
		return decimal.Zero, fmt.Errorf("minimum amount: %w", err)
	}
	return minAmount, nil
}

type RetryConfig struct {
	MaxAttempts    int           `envconfig:"FRETEPAY_GATEWAY_RETRY_MAX_ATTEMPTS" default:"3"`
	InitialBackoff time.Duration `envconfig:"FRETEPAY_GATEWAY_RETRY_INITIAL_BACKOFF" default:"500ms"`
}

func (c *Config) validateProductionSecrets() error {
	if strings.TrimSpace(c.Iugu.APIToken) == "" {
		return fmt.Errorf("%s is required in production mode", EnvIuguAPIToken)
	}
	if strings.TrimSpace(c.Iugu.WebhookSecret) == "" {
		return fmt.Errorf("%s is required in production mode", EnvIuguWebhookSecret)
	}
	if c.Gateway.Default() == enums.GatewayKindPagarme {
		if strings.TrimSpace(c.Pagarme.APIKey) == "" {
			return fmt.Errorf("%s is required in production mode", EnvPagarmeAPIKey)
		}
		if strings.TrimSpace(c.Pagarme.WebhookSecret) == "" {
			return fmt.Errorf("%s is required in production mode", EnvPagarmeWebhookSecret)
		}
	}
	return nil
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
