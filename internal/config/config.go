package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

// Config holds application configuration values.
type Config struct {
	Secret   string        `envconfig:"SECRET" default:"dev_secret"`
	HTTPPort string        `envconfig:"HTTP_PORT" default:"8080"`
	TokenTTL time.Duration `envconfig:"TOKEN_TTL" default:"24h"`

	DatabaseDriver string `envconfig:"DATABASE_DRIVER" default:"sqlite"`
	DatabaseDSN    string `envconfig:"DATABASE_DSN"`
	DBHost         string `envconfig:"DB_HOST" default:"localhost"`
	DBPort         string `envconfig:"DB_PORT" default:"5432"`
	DBUser         string `envconfig:"DB_USER" default:"postgres"`
	DBPassword     string `envconfig:"DB_PASSWORD"`
	DBName         string `envconfig:"DB_NAME" default:"stockflow"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	SaleMaxRetries int           `envconfig:"SALE_MAX_RETRIES" default:"3"`
	SaleTxTimeout  time.Duration `envconfig:"SALE_TX_TIMEOUT" default:"5s"`

	OTLPEndpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName  string `envconfig:"SERVICE_NAME" default:"stockflow"`

	CatalogCSV    string `envconfig:"CATALOG_CSV"`
	AdminEmail    string `envconfig:"ADMIN_EMAIL" default:"admin@stockflow.com"`
	AdminPassword string `envconfig:"ADMIN_PASSWORD" default:"123456"`

	// Warnings collects values that were replaced by defaults.
	Warnings []string `ignored:"true"`
}

// Load reads configuration from environment variables with reasonable defaults.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}

	// Validate that port is numeric.
	if _, err := strconv.Atoi(cfg.HTTPPort); err != nil {
		cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("invalid HTTP_PORT value %q, defaulting to 8080", cfg.HTTPPort))
		cfg.HTTPPort = "8080"
	}

	if cfg.SaleMaxRetries < 0 {
		cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("invalid SALE_MAX_RETRIES value %d, defaulting to 0", cfg.SaleMaxRetries))
		cfg.SaleMaxRetries = 0
	}
	if cfg.SaleTxTimeout <= 0 {
		cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("invalid SALE_TX_TIMEOUT value %s, defaulting to 5s", cfg.SaleTxTimeout))
		cfg.SaleTxTimeout = 5 * time.Second
	}

	switch cfg.DatabaseDriver {
	case DriverSQLite:
		if cfg.DatabaseDSN == "" {
			cfg.DatabaseDSN = "stockflow.db"
		}
	case DriverPostgres:
		if cfg.DatabaseDSN == "" {
			cfg.DatabaseDSN = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
				cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)
		}
	default:
		return Config{}, fmt.Errorf("unsupported DATABASE_DRIVER %q (want %s or %s)", cfg.DatabaseDriver, DriverSQLite, DriverPostgres)
	}

	return cfg, nil
}
