// Package config provides configuration management functionality.
//
// This package handles loading configuration from environment variables,
// with an optional .env file loaded first via godotenv. There is no
// settings-database override layer: every value here is sourced once, at
// process start, from the environment.
//
// Configuration Loading Order:
// 1. Load from .env file (if exists)
// 2. Load from environment variables
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Default provider endpoints, overridable via environment variables.
// None require an API key except the primary macro source and the
// primary sovereign-yield source.
const (
	defaultFXBaseURL            = "https://api.exchangerate.host/latest/USD"
	defaultCryptoBaseURL        = "https://api.coingecko.com/api/v3/simple/price"
	defaultInflationBaseURL     = "https://api.worldbank.org/v2"
	defaultReservesBaseURL      = "https://api.worldbank.org/v2"
	defaultRiskFreeBaseURL      = "https://api.stlouisfed.org/fred"
	defaultSovereignPrimaryURL  = "https://api.stlouisfed.org/fred"
	defaultSovereignFallbackURL = "https://dataservices.imf.org/REST/SDMX_JSON.svc"
)

// Config holds application configuration.
type Config struct {
	DataDir string // base directory for the SQLite store, always absolute
	Port    int    // HTTP server port
	LogLevel string // zerolog level name (debug, info, warn, error)
	DevMode bool    // pretty console logging instead of JSON

	PrimarySourceAPIKey string // API key for the primary macro data source
	AltFXAPIKey         string // free-tier FX source API key
	AltCryptoAPIKey     string // free-tier crypto source API key

	FXBaseURL              string // free-tier daily-close FX provider
	FXParallelBaseURL      string // parallel-market FX quote provider (empty disables it)
	CryptoBaseURL          string // stablecoin/BTC market-cap ratio provider
	InflationBaseURL       string // annual CPI provider (World Bank style indicator API)
	ReservesBaseURL        string // total reserves provider (World Bank style indicator API)
	RiskFreeBaseURL        string // reference long-tenor yield provider (FRED style series API)
	SovereignPrimaryURL    string // primary sovereign-yield source (keyed, FRED-style series API)
	SovereignFallbackURL   string // fallback sovereign-yield source (IMF SDMX-style API)
	StablecoinQuoteURLs    []string // peer-to-peer exchange quote endpoints for the stablecoin-premium country

	SchedulerSharedSecret string // shared secret the HTTP scheduler-trigger endpoint requires

	ArchiveBucket          string // S3/R2 bucket for nightly snapshot archives (empty disables archiving)
	ArchiveEndpoint        string // S3-compatible endpoint URL (empty uses AWS default resolution)
	ArchiveRegion          string
	ArchiveAccessKeyID     string
	ArchiveSecretAccessKey string
}

// Load reads configuration from environment variables.
//
// dataDirOverride, if non-empty, takes priority over the DATA_DIR
// environment variable (used by CLI flags in the backfill/normalize
// entrypoints).
func Load(dataDirOverride ...string) (*Config, error) {
	_ = godotenv.Load()

	var dataDir string
	if len(dataDirOverride) > 0 && dataDirOverride[0] != "" {
		dataDir = dataDirOverride[0]
	} else {
		dataDir = getEnv("DATA_DIR", "./data")
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		Port:     getEnvAsInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		DevMode:  getEnvAsBool("DEV_MODE", false),

		PrimarySourceAPIKey: getEnv("PRIMARY_SOURCE_API_KEY", ""),
		AltFXAPIKey:         getEnv("ALT_FX_API_KEY", ""),
		AltCryptoAPIKey:     getEnv("ALT_CRYPTO_API_KEY", ""),

		FXBaseURL:            getEnv("FX_BASE_URL", defaultFXBaseURL),
		FXParallelBaseURL:    getEnv("FX_PARALLEL_BASE_URL", ""),
		CryptoBaseURL:        getEnv("CRYPTO_BASE_URL", defaultCryptoBaseURL),
		InflationBaseURL:     getEnv("INFLATION_BASE_URL", defaultInflationBaseURL),
		ReservesBaseURL:      getEnv("RESERVES_BASE_URL", defaultReservesBaseURL),
		RiskFreeBaseURL:      getEnv("RISK_FREE_BASE_URL", defaultRiskFreeBaseURL),
		SovereignPrimaryURL:  getEnv("SOVEREIGN_PRIMARY_URL", defaultSovereignPrimaryURL),
		SovereignFallbackURL: getEnv("SOVEREIGN_FALLBACK_URL", defaultSovereignFallbackURL),
		StablecoinQuoteURLs:  getEnvAsList("STABLECOIN_QUOTE_URLS", nil),

		SchedulerSharedSecret: getEnv("SCHEDULER_SHARED_SECRET", ""),

		ArchiveBucket:          getEnv("ARCHIVE_BUCKET", ""),
		ArchiveEndpoint:        getEnv("ARCHIVE_ENDPOINT", ""),
		ArchiveRegion:          getEnv("ARCHIVE_REGION", "auto"),
		ArchiveAccessKeyID:     getEnv("ARCHIVE_ACCESS_KEY_ID", ""),
		ArchiveSecretAccessKey: getEnv("ARCHIVE_SECRET_ACCESS_KEY", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks if required configuration is present. The scheduler
// shared secret is mandatory: an empty secret would make the HTTP trigger
// endpoint's constant-time comparison meaningless.
func (c *Config) Validate() error {
	if c.SchedulerSharedSecret == "" {
		return fmt.Errorf("SCHEDULER_SHARED_SECRET must be set")
	}
	return nil
}

// ArchiveEnabled reports whether enough configuration is present to wire
// the nightly S3/R2 snapshot archiver.
func (c *Config) ArchiveEnabled() bool {
	return c.ArchiveBucket != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated environment variable into a
// slice, trimming whitespace around each entry.
func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
