package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

const (
	// EnvPrefix namespaces every environment variable consumed here.
	EnvPrefix = "PIESCROW"

	AppEnvDev  = "development"
	AppEnvProd = "production"
)

type Config struct {
	App    AppConfig
	DB     DBConfig
	Redis  RedisConfig
	Pi     PiConfig
	Orders OrdersConfig
	Payout PayoutConfig
	Cron   CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if _, err := cfg.Payout.GasFeeAmount(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"PIESCROW_APP_ENV" required:"true"`
	LogLevel     string `envconfig:"PIESCROW_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"PIESCROW_LOG_WARN_STACK" default:"false"`
	// AutoMigrate runs pending migrations at startup in dev mode only.
	AutoMigrate bool `envconfig:"PIESCROW_AUTO_MIGRATE" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"PIESCROW_DB_DSN"`
	Driver string `envconfig:"PIESCROW_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"PIESCROW_DB_HOST"`
	Port     int    `envconfig:"PIESCROW_DB_PORT" default:"5432"`
	User     string `envconfig:"PIESCROW_DB_USER"`
	Password string `envconfig:"PIESCROW_DB_PASSWORD"`
	Name     string `envconfig:"PIESCROW_DB_NAME"`
	SSLMode  string `envconfig:"PIESCROW_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PIESCROW_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PIESCROW_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PIESCROW_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PIESCROW_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// ensureDSN assembles a postgres DSN from the discrete parts when one is not
// provided directly.
func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.Host == "" || db.User == "" || db.Name == "" {
		return fmt.Errorf("either PIESCROW_DB_DSN or PIESCROW_DB_HOST/USER/NAME must be set")
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(db.User, db.Password),
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}
	q := u.Query()
	q.Set("sslmode", db.SSLMode)
	u.RawQuery = q.Encode()

	db.DSN = u.String()
	return nil
}

type RedisConfig struct {
	URL          string        `envconfig:"PIESCROW_REDIS_URL" required:"true"`
	Password     string        `envconfig:"PIESCROW_REDIS_PASSWORD"`
	DB           int           `envconfig:"PIESCROW_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PIESCROW_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PIESCROW_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PIESCROW_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PIESCROW_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PIESCROW_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// PiConfig points the backend at the Pi platform API.
type PiConfig struct {
	BaseURL string        `envconfig:"PIESCROW_PI_BASE_URL" default:"https://api.minepi.com"`
	APIKey  string        `envconfig:"PIESCROW_PI_API_KEY" required:"true"`
	Timeout time.Duration `envconfig:"PIESCROW_PI_TIMEOUT" default:"20s"`
}

type OrdersConfig struct {
	// CreateAttempts bounds the order-number collision retry loop.
	CreateAttempts int           `envconfig:"PIESCROW_ORDERS_CREATE_ATTEMPTS" default:"3"`
	ExpireAfter    time.Duration `envconfig:"PIESCROW_ORDERS_EXPIRE_AFTER" default:"240h"`
}

type PayoutConfig struct {
	GasFee      string        `envconfig:"PIESCROW_PAYOUT_GAS_FEE" default:"0.01"`
	MaxAttempts int           `envconfig:"PIESCROW_PAYOUT_MAX_ATTEMPTS" default:"3"`
	BatchWindow time.Duration `envconfig:"PIESCROW_PAYOUT_BATCH_WINDOW" default:"72h"`
	Memo        string        `envconfig:"PIESCROW_PAYOUT_MEMO" default:"Escrow payment for order"`
}

// GasFeeAmount parses the configured fixed network fee.
func (p PayoutConfig) GasFeeAmount() (decimal.Decimal, error) {
	fee, err := decimal.NewFromString(p.GasFee)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid PIESCROW_PAYOUT_GAS_FEE %q: %w", p.GasFee, err)
	}
	if fee.IsNegative() {
		return decimal.Zero, fmt.Errorf("PIESCROW_PAYOUT_GAS_FEE must not be negative")
	}
	return fee, nil
}

type CronConfig struct {
	Interval              time.Duration `envconfig:"PIESCROW_CRON_INTERVAL" default:"5m"`
	NotificationRetention time.Duration `envconfig:"PIESCROW_CRON_NOTIFICATION_RETENTION" default:"720h"`
}
