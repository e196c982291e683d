// Package config loads the recognized configuration keys from the
// environment: an optional .env file first, then plain environment variables,
// each with a hard-coded default so the process always starts with a complete,
// valid Config.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds the recognized configuration keys. It is threaded explicitly
// through the worker and API handlers rather than kept as a package-level
// singleton.
type Config struct {
	// BaseCurrency is the reporting currency for the TOTAL account.
	BaseCurrency string
	// DebounceMillis is the queue worker's event-batching window.
	DebounceMillis int
	// QuoteHistoryBufferDays is the pre-roll for new assets.
	QuoteHistoryBufferDays int
	// BackfillSafetyMarginDays is the hysteresis for NeedsBackfill classification.
	BackfillSafetyMarginDays int
	// ClosedGracePeriodDays is the RecentlyClosed horizon.
	ClosedGracePeriodDays int
	// ProviderTimeoutMillis bounds a single provider call.
	ProviderTimeoutMillis int
	// MVEscalationThreshold is the fraction of portfolio value above which an
	// Error health issue becomes Critical.
	MVEscalationThreshold float64
	// PortfolioTotalAccountID is the reserved id for the synthetic TOTAL account.
	PortfolioTotalAccountID string
	// LogLevel controls the process logger's verbosity.
	LogLevel string
	// DevMode disables response compression and enables pretty console
	// logging.
	DevMode bool
	// Port is the HTTP/WebSocket transport's listen port.
	Port int
	// DataDir holds the SQLite database file and backup staging area.
	DataDir string

	// BackupEnabled turns on the periodic S3 export.
	BackupEnabled bool
	// BackupS3Bucket is the destination bucket for ledger archive uploads.
	BackupS3Bucket string
	// BackupIntervalHours is the cron cadence between backup runs.
	BackupIntervalHours int
	// BackupRetentionDays is how long an uploaded backup is kept before
	// rotation deletes it; 0 keeps every backup.
	BackupRetentionDays int
}

// Load reads configuration from the environment, applying defaults for
// anything unset. It never fails: a missing or malformed .env file is
// ignored.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		BaseCurrency:             getEnv("BASE_CURRENCY", "USD"),
		DebounceMillis:           getEnvAsInt("DEBOUNCE_MS", 1000),
		QuoteHistoryBufferDays:   getEnvAsInt("QUOTE_HISTORY_BUFFER_DAYS", 45),
		BackfillSafetyMarginDays: getEnvAsInt("BACKFILL_SAFETY_MARGIN_DAYS", 7),
		ClosedGracePeriodDays:    getEnvAsInt("CLOSED_GRACE_PERIOD_DAYS", 30),
		ProviderTimeoutMillis:    getEnvAsInt("PROVIDER_TIMEOUT_MS", 10000),
		MVEscalationThreshold:    getEnvAsFloat("MV_ESCALATION_THRESHOLD", 0.10),
		PortfolioTotalAccountID:  getEnv("PORTFOLIO_TOTAL_ACCOUNT_ID", "TOTAL"),
		LogLevel:                 getEnv("LOG_LEVEL", "info"),
		DevMode:                  getEnvAsBool("DEV_MODE", false),
		Port:                     getEnvAsInt("PORT", 8080),
		DataDir:                  getEnv("DATA_DIR", "./data"),

		BackupEnabled:       getEnvAsBool("BACKUP_ENABLED", false),
		BackupS3Bucket:      getEnv("BACKUP_S3_BUCKET", ""),
		BackupIntervalHours: getEnvAsInt("BACKUP_INTERVAL_HOURS", 24),
		BackupRetentionDays: getEnvAsInt("BACKUP_RETENTION_DAYS", 30),
	}
}

func getEnvAsBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvAsFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
