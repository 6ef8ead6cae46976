package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/docgate/pkg/audit"
	"github.com/platinummonkey/docgate/pkg/cache"
	"github.com/platinummonkey/docgate/pkg/observability"
	"github.com/platinummonkey/docgate/pkg/vector"
)

// Config holds all application configuration
type Config struct {
	// Policy store (PostgreSQL)
	Store StoreConfig

	// Decision cache (Redis)
	Cache CacheConfig

	// Vector index
	Vector VectorConfig

	// Audit sink
	Audit AuditConfig

	// Engine behavior
	Engine EngineConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// StoreConfig holds PostgreSQL connection settings
type StoreConfig struct {
	PostgresURL  string
	MaxOpenConns int
	MaxIdleConns int
	ConnLifetime time.Duration
}

// CacheConfig holds Redis connection settings
type CacheConfig struct {
	RedisURL      string
	RedisPassword string
	RedisDB       int
	MaxRetries    int
	PoolSize      int
}

// VectorConfig holds vector index settings
type VectorConfig struct {
	Table      string
	Dimensions int
}

// AuditConfig holds audit sink settings
type AuditConfig struct {
	// FilePath enables an additional NDJSON file sink when set.
	FilePath      string
	FileMaxSize   int64
	FileMaxCount  int
	QueueSize     int
	RetentionDays int
	PurgeSchedule string
}

// EngineConfig holds permission engine behavior settings
type EngineConfig struct {
	CacheTTL time.Duration

	// ManagerOverrideDownloads extends the manager department override to
	// the download cascade.
	ManagerOverrideDownloads bool
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	retention := audit.DefaultRetentionPolicy()

	cfg := &Config{
		Store: StoreConfig{
			PostgresURL:  getEnv("DOCGATE_POSTGRES_URL", ""),
			MaxOpenConns: getEnvInt("DOCGATE_POSTGRES_MAX_CONNS", 25),
			MaxIdleConns: getEnvInt("DOCGATE_POSTGRES_IDLE_CONNS", 5),
			ConnLifetime: getEnvDuration("DOCGATE_POSTGRES_CONN_LIFETIME", 5*time.Minute),
		},
		Cache: CacheConfig{
			RedisURL:      getEnv("DOCGATE_REDIS_URL", "redis://localhost:6379/0"),
			RedisPassword: getEnv("DOCGATE_REDIS_PASSWORD", ""),
			RedisDB:       getEnvInt("DOCGATE_REDIS_DB", 0),
			MaxRetries:    getEnvInt("DOCGATE_REDIS_MAX_RETRIES", 3),
			PoolSize:      getEnvInt("DOCGATE_REDIS_POOL_SIZE", 10),
		},
		Vector: VectorConfig{
			Table:      getEnv("DOCGATE_VECTOR_TABLE", "document_points"),
			Dimensions: getEnvInt("DOCGATE_VECTOR_DIMENSIONS", vector.DefaultDimensions),
		},
		Audit: AuditConfig{
			FilePath:      getEnv("DOCGATE_AUDIT_FILE", ""),
			FileMaxSize:   getEnvInt64("DOCGATE_AUDIT_FILE_MAX_SIZE", 100*1024*1024),
			FileMaxCount:  getEnvInt("DOCGATE_AUDIT_FILE_MAX_COUNT", 5),
			QueueSize:     getEnvInt("DOCGATE_AUDIT_QUEUE_SIZE", 4096),
			RetentionDays: getEnvInt("DOCGATE_AUDIT_RETENTION_DAYS", retention.RetentionDays),
			PurgeSchedule: getEnv("DOCGATE_AUDIT_PURGE_SCHEDULE", retention.Schedule),
		},
		Engine: EngineConfig{
			CacheTTL:                 getEnvDuration("DOCGATE_CACHE_TTL", 300*time.Second),
			ManagerOverrideDownloads: getEnvBool("DOCGATE_MANAGER_OVERRIDE_DOWNLOADS", false),
		},
		Observability: ObservabilityConfig{
			LogLevel:       parseLogLevel(getEnv("DOCGATE_LOG_LEVEL", "info")),
			MetricsEnabled: getEnvBool("DOCGATE_METRICS_ENABLED", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// CacheClientConfig converts the Redis settings into a cache.Config.
func (c *Config) CacheClientConfig() cache.Config {
	return cache.Config{
		URL:        c.Cache.RedisURL,
		Password:   c.Cache.RedisPassword,
		DB:         c.Cache.RedisDB,
		MaxRetries: c.Cache.MaxRetries,
		PoolSize:   c.Cache.PoolSize,
	}
}

// RetentionPolicy converts the audit settings into an audit.RetentionPolicy.
func (c *Config) RetentionPolicy() audit.RetentionPolicy {
	return audit.RetentionPolicy{
		RetentionDays: c.Audit.RetentionDays,
		Schedule:      c.Audit.PurgeSchedule,
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Store.PostgresURL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Cache.RedisURL == "" {
		return fmt.Errorf("redis URL is required")
	}
	if c.Vector.Dimensions <= 0 {
		return fmt.Errorf("vector dimensions must be positive")
	}
	if c.Engine.CacheTTL <= 0 {
		return fmt.Errorf("cache TTL must be positive")
	}
	if c.Audit.RetentionDays <= 0 {
		return fmt.Errorf("audit retention days must be positive")
	}
	if c.Audit.QueueSize <= 0 {
		return fmt.Errorf("audit queue size must be positive")
	}
	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
