package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/fadedpez/balancewatch/pkg/entities"
)

// Storage backends
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
	StorageMySQL    = "mysql"
)

// Config holds all configuration for the application
type Config struct {
	// Environment
	Environment string // "development" or "production"
	LogLevel    string

	// Storage
	StorageType   string
	DataDir       string
	SQLitePath    string
	DatabaseDSN   string
	AutoMigrate   bool
	HistoryPath   string
	HistoryRetain time.Duration

	// Reconciliation
	Interval  time.Duration
	Workers   int
	Groups    []string
	Cutoff    string
	Epsilon   float64
	UTCOffset int

	// Sinks
	ExportDir        string
	MonitorURL       string
	DiscordToken     string
	DiscordChannelID string

	Elasticsearch ElasticsearchConfig

	// Coordination and API
	RedisAddress string
	HTTPAddr     string
}

// ElasticsearchConfig holds the result index connection settings
type ElasticsearchConfig struct {
	URL         string
	Username    string
	Password    string
	IndexPrefix string
}

// Load reads the configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		// Only return error if file exists but couldn't be loaded
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	dataDir := getEnvWithDefault("DATA_DIR", filepath.Join(wd, "data"))

	cfg := &Config{
		Environment:      getEnvWithDefault("ENVIRONMENT", "development"),
		LogLevel:         getEnvWithDefault("LOG_LEVEL", "info"),
		StorageType:      strings.ToLower(getEnvWithDefault("STORAGE_TYPE", StorageSQLite)),
		DataDir:          dataDir,
		SQLitePath:       getEnvWithDefault("SQLITE_PATH", filepath.Join(dataDir, "balances.db")),
		DatabaseDSN:      os.Getenv("DATABASE_DSN"),
		HistoryPath:      getEnvWithDefault("HISTORY_PATH", filepath.Join(dataDir, "executions.json")),
		Groups:           splitList(os.Getenv("RECONCILE_GROUPS")),
		Cutoff:           strings.TrimSpace(os.Getenv("RECONCILE_CUTOFF")),
		ExportDir:        os.Getenv("EXPORT_DIR"),
		MonitorURL:       strings.TrimRight(os.Getenv("MONITOR_URL"), "/"),
		DiscordToken:     os.Getenv("DISCORD_TOKEN"),
		DiscordChannelID: os.Getenv("DISCORD_CHANNEL_ID"),
		RedisAddress:     os.Getenv("REDIS_ADDRESS"),
		HTTPAddr:         os.Getenv("HTTP_ADDR"),
		Elasticsearch: ElasticsearchConfig{
			URL:         os.Getenv("ELASTICSEARCH_URL"),
			Username:    os.Getenv("ELASTICSEARCH_USERNAME"),
			Password:    os.Getenv("ELASTICSEARCH_PASSWORD"),
			IndexPrefix: getEnvWithDefault("ELASTICSEARCH_INDEX_PREFIX", "balancewatch"),
		},
	}

	if cfg.AutoMigrate, err = getEnvBool("DB_AUTO_MIGRATE", false); err != nil {
		return nil, err
	}
	if cfg.Interval, err = getEnvDuration("RECONCILE_INTERVAL", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.HistoryRetain, err = getEnvDuration("HISTORY_RETENTION", 30*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.Workers, err = getEnvInt("RECONCILE_WORKERS", 4); err != nil {
		return nil, err
	}
	if cfg.UTCOffset, err = getEnvInt("LEDGER_UTC_OFFSET_HOURS", -5); err != nil {
		return nil, err
	}
	if cfg.Epsilon, err = getEnvFloat("VARIANCE_EPSILON", 1e-9); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return cfg, nil
}

// validate checks that the combination of settings is usable
func (c *Config) validate() error {
	switch c.StorageType {
	case StorageMemory, StorageSQLite:
	case StoragePostgres, StorageMySQL:
		if c.DatabaseDSN == "" {
			return fmt.Errorf("DATABASE_DSN is required for STORAGE_TYPE=%s", c.StorageType)
		}
	default:
		return fmt.Errorf("unsupported STORAGE_TYPE %q", c.StorageType)
	}
	if c.Workers < 1 {
		return fmt.Errorf("RECONCILE_WORKERS must be at least 1")
	}
	if c.Interval <= 0 {
		return fmt.Errorf("RECONCILE_INTERVAL must be positive")
	}
	if c.Epsilon < 0 {
		return fmt.Errorf("VARIANCE_EPSILON must not be negative")
	}
	if _, err := c.CutoffTime(); err != nil {
		return err
	}
	if (c.DiscordToken == "") != (c.DiscordChannelID == "") {
		return fmt.Errorf("DISCORD_TOKEN and DISCORD_CHANNEL_ID must be set together")
	}
	return nil
}

// CutoffTime parses RECONCILE_CUTOFF. An empty value means no cutoff.
func (c *Config) CutoffTime() (*time.Time, error) {
	if c.Cutoff == "" {
		return nil, nil
	}
	t, err := entities.ParseTimestamp(c.Cutoff)
	if err != nil {
		return nil, fmt.Errorf("invalid RECONCILE_CUTOFF: %w", err)
	}
	return &t, nil
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// getEnvWithDefault returns environment variable value or default if not set
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
