package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/treeshop/treeshop-ops-go/internal/pricing"
)

// Store drivers accepted by STORE_DRIVER.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port     int
	LogLevel string

	// Persistence
	StoreDriver string
	SQLitePath  string
	DatabaseURL string

	// HTTP client
	HTTPTimeout time.Duration

	// Resilience
	MaxRetries     int
	InitialBackoff time.Duration
	MaxConcurrency int

	// Cache
	ReportCacheTTL time.Duration

	// Observability
	OTLPEndpoint string

	// Identity
	JWTSecret    string
	JWTIssuer    string
	AuthDisabled bool

	// Pricing defaults
	TierMultipliers   string
	BurdenMultipliers string
	DefaultTaxRate    float64
	FuelPrice         float64

	// Google Calendar
	GCalCredentialsFile string
	GCalCalendarID      string
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		StoreDriver: getEnv("STORE_DRIVER", StoreSQLite),
		SQLitePath:  getEnv("SQLITE_PATH", "treeshop.db"),
		DatabaseURL: getEnv("DATABASE_URL", ""),

		HTTPTimeout: getEnvDuration("HTTP_TIMEOUT", 10*time.Second),

		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		InitialBackoff: getEnvDuration("INITIAL_BACKOFF", 100*time.Millisecond),
		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 4),

		ReportCacheTTL: getEnvDuration("REPORT_CACHE_TTL", time.Minute),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),

		JWTSecret:    getEnv("JWT_SECRET", "treeshop-dev-secret-change-me"),
		JWTIssuer:    getEnv("JWT_ISSUER", "treeshop"),
		AuthDisabled: getEnvBool("AUTH_DISABLED", false),

		TierMultipliers:   getEnv("TIER_MULTIPLIERS", "1.6,1.7,1.8,2.0,2.2"),
		BurdenMultipliers: getEnv("BURDEN_MULTIPLIERS", "1.6,1.7,1.8,2.0,2.2"),
		DefaultTaxRate:    getEnvFloat("DEFAULT_TAX_RATE", 0),
		FuelPrice:         getEnvFloat("FUEL_PRICE", 3.50),

		GCalCredentialsFile: getEnv("GCAL_CREDENTIALS_FILE", ""),
		GCalCalendarID:      getEnv("GCAL_CALENDAR_ID", ""),
	}
}

// Validate rejects configuration the service cannot start with.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreMemory, StoreSQLite:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required with STORE_DRIVER=%s", StorePostgres)
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q (memory, sqlite, postgres)", c.StoreDriver)
	}
	if _, err := c.CompensationTable(); err != nil {
		return err
	}
	if c.DefaultTaxRate < 0 || c.DefaultTaxRate > 1 {
		return fmt.Errorf("DEFAULT_TAX_RATE must be between 0 and 1, got %v", c.DefaultTaxRate)
	}
	if c.FuelPrice < 0 {
		return fmt.Errorf("FUEL_PRICE must be non-negative, got %v", c.FuelPrice)
	}
	if !c.AuthDisabled && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required unless AUTH_DISABLED=true")
	}
	if (c.GCalCredentialsFile == "") != (c.GCalCalendarID == "") {
		return fmt.Errorf("GCAL_CREDENTIALS_FILE and GCAL_CALENDAR_ID must be set together")
	}
	return nil
}

// CompensationTable applies the configured tier and burden multipliers to
// the default premiums. The two lists are independent.
func (c *Config) CompensationTable() (pricing.CompensationTable, error) {
	table := pricing.DefaultCompensationTable()
	tiers, err := pricing.ParseMultipliers(c.TierMultipliers)
	if err != nil {
		return table, fmt.Errorf("TIER_MULTIPLIERS: %w", err)
	}
	burdens, err := pricing.ParseMultipliers(c.BurdenMultipliers)
	if err != nil {
		return table, fmt.Errorf("BURDEN_MULTIPLIERS: %w", err)
	}
	table.TierMultipliers = tiers
	table.BurdenMultipliers = burdens
	return table, nil
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

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
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
