package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	pkgconfig "github.com/utafrali/ecommerce-pricing/pkg/config"
	"github.com/utafrali/ecommerce-pricing/pkg/database"
	"github.com/utafrali/ecommerce-pricing/pkg/tracing"
)

// ServiceName identifies the pricing service in logs, metrics and traces.
const ServiceName = "pricing-service"

// Config holds all configuration for the pricing service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"PRICING_HTTP_PORT" envDefault:"8010"`

	// PostgreSQL
	PostgresHost     string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort     int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser     string `env:"POSTGRES_USER" envDefault:"ecommerce"`
	PostgresPassword string `env:"POSTGRES_PASSWORD" envDefault:"ecommerce_secret"`
	PostgresDB       string `env:"PRICING_DB_NAME" envDefault:"pricing_db"`
	PostgresSSLMode  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	// Redis
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Active rule snapshot lifetime. A bare number is seconds.
	RuleCacheTTL time.Duration `env:"RULE_CACHE_TTL_SECONDS" envDefault:"60"`

	// Kafka
	KafkaBrokers         []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	KafkaConsumerEnabled bool     `env:"KAFKA_CONSUMER_ENABLED" envDefault:"true"`
	KafkaGroupID         string   `env:"KAFKA_GROUP_ID" envDefault:"pricing-service"`

	// Auth
	JWTSecret string `env:"JWT_SECRET" envDefault:"dev-secret-change-me"`

	// Product catalog, display names only
	CatalogURL       string `env:"CATALOG_SERVICE_URL" envDefault:"http://localhost:8001"`
	CatalogTimeoutMS int    `env:"CATALOG_TIMEOUT_MS" envDefault:"800"`

	// Pricing
	DefaultDeliveryFee decimal.Decimal `env:"DEFAULT_DELIVERY_FEE" envDefault:"29.90"`
	Currency           string          `env:"CURRENCY" envDefault:"TRY"`

	// Quote endpoint rate limit, per client IP
	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"20"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"40"`

	CORSOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:3000" envSeparator:","`

	// Profiling endpoints are served only to these prefixes. Empty disables them.
	PprofAllowedCIDRs []string `env:"PPROF_ALLOWED_CIDRS" envDefault:"127.0.0.0/8,::1/128" envSeparator:","`

	// Tracing
	OTelEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTelEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTelSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	SlowQueryThresholdMS int `env:"SLOW_QUERY_THRESHOLD_MS" envDefault:"200"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	return load(nil)
}

// LoadFrom reads configuration from environ instead of the process environment.
func LoadFrom(environ map[string]string) (*Config, error) {
	return load(environ)
}

func load(environ map[string]string) (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.LoadWithEnvironment(cfg, environ); err != nil {
		return nil, fmt.Errorf("load pricing config: %w", err)
	}
	return cfg, nil
}

// Validate checks configuration invariants. It runs as part of Load.
func (c *Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("invalid postgres port: %d", c.PostgresPort)
	}
	if c.PostgresHost == "" {
		return errors.New("POSTGRES_HOST is required")
	}
	if c.RedisAddr == "" {
		return errors.New("REDIS_ADDR is required")
	}
	if len(c.KafkaBrokers) == 0 {
		return errors.New("KAFKA_BROKERS is required")
	}
	if c.DefaultDeliveryFee.IsNegative() {
		return fmt.Errorf("DEFAULT_DELIVERY_FEE must not be negative: %s", c.DefaultDeliveryFee)
	}
	if c.RuleCacheTTL <= 0 {
		return fmt.Errorf("RULE_CACHE_TTL_SECONDS must be positive: %s", c.RuleCacheTTL)
	}
	if c.OTelSampleRate < 0 || c.OTelSampleRate > 1 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be within [0, 1]: %g", c.OTelSampleRate)
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst < 1 {
		return fmt.Errorf("invalid rate limit: %g rps, burst %d", c.RateLimitRPS, c.RateLimitBurst)
	}
	if len(strings.TrimSpace(c.Currency)) != 3 {
		return fmt.Errorf("CURRENCY must be a 3-letter code: %q", c.Currency)
	}
	if c.IsProduction() && c.JWTSecret == "dev-secret-change-me" {
		return errors.New("JWT_SECRET must be set in production")
	}
	return nil
}

// IsProduction reports whether the service runs in production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// DeliveryFee is the base fee applied when a quote request carries none.
func (c *Config) DeliveryFee() decimal.Decimal {
	return c.DefaultDeliveryFee
}

// CatalogTimeout bounds a single catalog lookup.
func (c *Config) CatalogTimeout() time.Duration {
	return time.Duration(c.CatalogTimeoutMS) * time.Millisecond
}

// SlowQueryThreshold is the duration above which queries are logged.
func (c *Config) SlowQueryThreshold() time.Duration {
	return time.Duration(c.SlowQueryThresholdMS) * time.Millisecond
}

// Postgres returns the connection pool settings.
func (c *Config) Postgres() *database.PostgresConfig {
	return &database.PostgresConfig{
		Host:            c.PostgresHost,
		Port:            c.PostgresPort,
		User:            c.PostgresUser,
		Password:        c.PostgresPassword,
		DBName:          c.PostgresDB,
		SSLMode:         c.PostgresSSLMode,
		MaxConns:        20,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}
}

// Redis returns the Redis client settings.
func (c *Config) Redis() database.RedisConfig {
	return database.RedisConfig{
		Addr:        c.RedisAddr,
		Password:    c.RedisPassword,
		DB:          c.RedisDB,
		DialTimeout: 5 * time.Second,
	}
}

// Tracing returns the span export settings.
func (c *Config) Tracing() tracing.Config {
	cfg := tracing.DefaultConfig(ServiceName)
	cfg.Environment = c.Environment
	cfg.OTLPEndpoint = c.OTelEndpoint
	cfg.SampleRate = c.OTelSampleRate
	cfg.Enabled = c.OTelEnabled
	return cfg
}
