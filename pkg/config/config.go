package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "production"

	EnvAppEnv     = "KUKUSOKO_APP_ENV"
	EnvPort       = "KUKUSOKO_APP_PORT"
	EnvDBDSN      = "KUKUSOKO_DB_DSN"
	EnvDBHost     = "KUKUSOKO_DB_HOST"
	EnvDBUser     = "KUKUSOKO_DB_USER"
	EnvDBName     = "KUKUSOKO_DB_NAME"
	EnvRedisURL   = "KUKUSOKO_REDIS_URL"
	EnvJWTSecret  = "KUKUSOKO_JWT_SECRET"
	EnvJWTIssuer  = "KUKUSOKO_JWT_ISSUER"
	EnvJWTExpMins = "KUKUSOKO_JWT_EXPIRATION_MINUTES"
	EnvMpesaKey   = "KUKUSOKO_MPESA_API_KEY"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Orders       OrdersConfig
	Mpesa        MpesaConfig
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
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"KUKUSOKO_APP_ENV" required:"true"`
	Port         string `envconfig:"KUKUSOKO_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"KUKUSOKO_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"KUKUSOKO_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"KUKUSOKO_DB_DSN"`
	Driver string `envconfig:"KUKUSOKO_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"KUKUSOKO_DB_HOST"`
	LegacyPort     int    `envconfig:"KUKUSOKO_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"KUKUSOKO_DB_USER"`
	LegacyPassword string `envconfig:"KUKUSOKO_DB_PASSWORD"`
	LegacyName     string `envconfig:"KUKUSOKO_DB_NAME"`
	LegacySSLMode  string `envconfig:"KUKUSOKO_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"KUKUSOKO_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"KUKUSOKO_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"KUKUSOKO_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"KUKUSOKO_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"KUKUSOKO_REDIS_URL" required:"true"`
	Address      string        `envconfig:"KUKUSOKO_REDIS_ADDR"`
	Password     string        `envconfig:"KUKUSOKO_REDIS_PASSWORD"`
	DB           int           `envconfig:"KUKUSOKO_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"KUKUSOKO_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"KUKUSOKO_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"KUKUSOKO_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"KUKUSOKO_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"KUKUSOKO_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"KUKUSOKO_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"KUKUSOKO_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"KUKUSOKO_JWT_EXPIRATION_MINUTES" required:"true"`
}

type OrdersConfig struct {
	// CommitTimeout bounds the order creation transaction; it touches
	// products, vouchers, payments, and deliveries in one unit.
	CommitTimeout   time.Duration `envconfig:"KUKUSOKO_ORDER_COMMIT_TIMEOUT" default:"15s"`
	AmountTolerance float64       `envconfig:"KUKUSOKO_ORDER_AMOUNT_TOLERANCE" default:"1.0"`
	DeliveryFee     float64       `envconfig:"KUKUSOKO_ORDER_DELIVERY_FEE" default:"200.0"`
}

type MpesaConfig struct {
	BaseURL         string        `envconfig:"KUKUSOKO_MPESA_BASE_URL" default:"https://lipia-api.kreativelabske.com/api/v2"`
	APIKey          string        `envconfig:"KUKUSOKO_MPESA_API_KEY"`
	CallbackBaseURL string        `envconfig:"KUKUSOKO_MPESA_CALLBACK_BASE_URL"`
	RequestTimeout  time.Duration `envconfig:"KUKUSOKO_MPESA_REQUEST_TIMEOUT" default:"30s"`
	MaxRetries      int           `envconfig:"KUKUSOKO_MPESA_MAX_RETRIES" default:"2"`
	IdempotencyTTL  time.Duration `envconfig:"KUKUSOKO_MPESA_CALLBACK_IDEMPOTENCY_TTL" default:"72h"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"KUKUSOKO_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"KUKUSOKO_AUTO_MIGRATE" default:"false"`
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
