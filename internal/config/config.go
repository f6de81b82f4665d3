// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir         string   // Base directory for all databases (always absolute)
	Port            int      // HTTP port
	LogLevel        string   // debug, info, warn, error
	DevMode         bool     // Pretty logging, relaxed CORS
	Symbols         []string // FX symbols ticked by default
	MockMode        bool     // Use synthetic market data and the simulated executor
	TickInterval    int      // Auto-tick interval in minutes (0 disables the cron tick)
	MarketDataURL   string   // Bar-series provider base URL
	MarketDataToken string   // Bearer token for the provider
	ExecutorURL     string   // Execution service base URL
	ExecutorWSURL   string   // Execution service lifecycle websocket URL
	EventWindows    string   // Scheduled releases as "LABEL|CCY|RFC3339" entries
	Backup          *BackupConfig
}

// BackupConfig holds ledger backup configuration for an S3-compatible bucket.
type BackupConfig struct {
	Enabled         bool
	Endpoint        string // e.g. R2 endpoint; empty means AWS S3
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("HELMSMAN_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:         absDataDir,
		Port:            getEnvAsInt("HELMSMAN_PORT", 8010),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		DevMode:         getEnvAsBool("DEV_MODE", false),
		Symbols:         splitSymbols(getEnv("HELMSMAN_SYMBOLS", "EURUSD,GBPUSD,USDJPY")),
		MockMode:        getEnvAsBool("HELMSMAN_MOCK_MODE", true),
		TickInterval:    getEnvAsInt("HELMSMAN_TICK_MINUTES", 15),
		MarketDataURL:   getEnv("MARKET_DATA_URL", ""),
		MarketDataToken: getEnv("MARKET_DATA_TOKEN", ""),
		ExecutorURL:     getEnv("EXECUTOR_URL", ""),
		ExecutorWSURL:   getEnv("EXECUTOR_WS_URL", ""),
		EventWindows:    getEnv("HELMSMAN_EVENT_WINDOWS", ""),
		Backup:          loadBackupConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if len(c.Symbols) == 0 {
		return fmt.Errorf("at least one symbol must be configured")
	}
	// Live mode needs both external services; mock mode needs neither.
	if !c.MockMode {
		if c.MarketDataURL == "" {
			return fmt.Errorf("MARKET_DATA_URL required when mock mode is disabled")
		}
		if c.ExecutorURL == "" {
			return fmt.Errorf("EXECUTOR_URL required when mock mode is disabled")
		}
	}
	return nil
}

func splitSymbols(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.ToUpper(strings.TrimSpace(p))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// loadBackupConfig loads backup settings; backup stays disabled unless a bucket is set.
func loadBackupConfig() *BackupConfig {
	bucket := getEnv("BACKUP_BUCKET", "")
	return &BackupConfig{
		Enabled:         bucket != "",
		Endpoint:        getEnv("BACKUP_ENDPOINT", ""),
		Region:          getEnv("BACKUP_REGION", "auto"),
		Bucket:          bucket,
		AccessKeyID:     getEnv("BACKUP_ACCESS_KEY_ID", ""),
		SecretAccessKey: getEnv("BACKUP_SECRET_ACCESS_KEY", ""),
	}
}

// Helper functions
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
