package config

import (
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port     int
	LogLevel string

	// Database (empty URL → in-memory store)
	DatabaseURL      string
	DBMaxOpenConns   int
	DBConnectRetries int
	DBConnectBackoff time.Duration
	DBQueryTimeout   time.Duration

	// Catalog
	CatalogCacheTTL time.Duration
	CatalogSeedFile string

	// Settlement
	DemandRateMonthly decimal.Decimal // monthly rate paid on surplus months at close

	// Reports
	ReportMaxConcurrency int

	// Observability
	OTLPEndpoint string
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DatabaseURL:      getEnv("DATABASE_URL", ""),
		DBMaxOpenConns:   getEnvInt("DB_MAX_OPEN_CONNS", 20),
		DBConnectRetries: getEnvInt("DB_CONNECT_RETRIES", 5),
		DBConnectBackoff: getEnvDuration("DB_CONNECT_BACKOFF", 500*time.Millisecond),
		DBQueryTimeout:   getEnvDuration("DB_QUERY_TIMEOUT", 5*time.Second),

		CatalogCacheTTL: getEnvDuration("CATALOG_CACHE_TTL", 5*time.Minute),
		CatalogSeedFile: getEnv("CATALOG_SEED_FILE", ""),

		DemandRateMonthly: getEnvDecimal("DEMAND_RATE_MONTHLY", decimal.RequireFromString("0.0015")),

		ReportMaxConcurrency: getEnvInt("REPORT_MAX_CONCURRENCY", 4),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}
}

// UseDatabase reports whether a PostgreSQL URL was configured.
func (c *Config) UseDatabase() bool {
	return c.DatabaseURL != ""
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvDecimal(key string, fallback decimal.Decimal) decimal.Decimal {
	if v := os.Getenv(key); v != "" {
		if d, err := decimal.NewFromString(v); err == nil && !d.IsNegative() {
			return d
		}
	}
	return fallback
}
