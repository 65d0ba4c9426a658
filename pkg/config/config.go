package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/labrinth-go/labrinth/pkg/observability"
	"github.com/labrinth-go/labrinth/pkg/storage/postgres"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Indexer       IndexerConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	// AdminRoutes registers the tag catalog mutation routes
	AdminRoutes     bool
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	URL         string
	ReplicaURLs []string
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
	// AutoMigrate applies pending schema migrations at startup
	AutoMigrate bool
}

// RedisConfig holds the projection retry queue connection. An empty URL
// disables the queue.
type RedisConfig struct {
	URL      string
	Password string
	DB       int
	QueueKey string
}

// IndexerConfig controls facet projection and the scheduled jobs
type IndexerConfig struct {
	ProjectionTimeout time.Duration
	RetrySchedule     string
	ReindexSchedule   string
	RetryBatchSize    int
	Workers           int
	// RetryDepthWarn is the retry backlog above which readiness is degraded
	RetryDepthWarn    int64
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string

	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
	OTelSampleRatio    float64
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Redis:         loadRedisConfig(),
		Indexer:       loadIndexerConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("LABRINTH_HOST", "0.0.0.0"),
		Port:            getEnv("LABRINTH_PORT", "8000"),
		ReadTimeout:     getEnvDuration("LABRINTH_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("LABRINTH_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("LABRINTH_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("LABRINTH_SHUTDOWN_TIMEOUT", 30*time.Second),
		AdminRoutes:     getEnvBool("LABRINTH_ADMIN_ROUTES", false),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL:         getEnv("LABRINTH_DATABASE_URL", ""),
		ReplicaURLs: postgres.ParseReplicaURLs(getEnv("LABRINTH_DATABASE_REPLICA_URLS", "")),
		MaxConns:    getEnvInt("LABRINTH_DATABASE_MAX_CONNS", 20),
		MinConns:    getEnvInt("LABRINTH_DATABASE_MIN_CONNS", 2),
		Timeout:     getEnvDuration("LABRINTH_DATABASE_TIMEOUT", 10*time.Second),
		MaxLifetime: getEnvDuration("LABRINTH_DATABASE_MAX_LIFETIME", 30*time.Minute),
		MaxIdleTime: getEnvDuration("LABRINTH_DATABASE_MAX_IDLE_TIME", 5*time.Minute),
		AutoMigrate: getEnvBool("LABRINTH_DATABASE_AUTO_MIGRATE", false),
	}
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		URL:      getEnv("LABRINTH_REDIS_URL", ""),
		Password: getEnv("LABRINTH_REDIS_PASSWORD", ""),
		DB:       getEnvInt("LABRINTH_REDIS_DB", 0),
		QueueKey: getEnv("LABRINTH_REDIS_QUEUE_KEY", "labrinth:facets:retry"),
	}
}

func loadIndexerConfig() IndexerConfig {
	return IndexerConfig{
		ProjectionTimeout: getEnvDuration("LABRINTH_PROJECTION_TIMEOUT", 10*time.Second),
		RetrySchedule:     getEnv("LABRINTH_RETRY_SCHEDULE", "@every 1m"),
		ReindexSchedule:   getEnv("LABRINTH_REINDEX_SCHEDULE", "0 4 * * *"),
		RetryBatchSize:    getEnvInt("LABRINTH_RETRY_BATCH_SIZE", 100),
		Workers:           getEnvInt("LABRINTH_INDEXER_WORKERS", 4),
		RetryDepthWarn:    int64(getEnvInt("LABRINTH_RETRY_DEPTH_WARN", 1000)),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           strings.ToLower(getEnv("LABRINTH_LOG_LEVEL", "info")),
		LogFormat:          strings.ToLower(getEnv("LABRINTH_LOG_FORMAT", "json")),
		MetricsEnabled:     getEnvBool("LABRINTH_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("LABRINTH_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("LABRINTH_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("LABRINTH_OTEL_SERVICE_NAME", "labrinth"),
		OTelServiceVersion: getEnv("LABRINTH_OTEL_SERVICE_VERSION", "dev"),
		OTelInsecure:       getEnvBool("LABRINTH_OTEL_INSECURE", true),
		OTelSampleRatio:    getEnvFloat("LABRINTH_OTEL_SAMPLE_RATIO", 1.0),
	}
}

// ConnectionConfig converts the database settings for the connection manager
func (d DatabaseConfig) ConnectionConfig() postgres.ConnectionConfig {
	return postgres.ConnectionConfig{
		PrimaryURL:  d.URL,
		ReplicaURLs: d.ReplicaURLs,
		MaxConns:    d.MaxConns,
		MinConns:    d.MinConns,
		Timeout:     d.Timeout,
		MaxLifetime: d.MaxLifetime,
		MaxIdleTime: d.MaxIdleTime,
	}
}

// OTelConfig converts the observability settings for the named binary
func (o ObservabilityConfig) OTelConfig(component string) observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        o.OTelEnabled,
		Endpoint:       o.OTelEndpoint,
		ServiceName:    o.OTelServiceName,
		ServiceVersion: o.OTelServiceVersion,
		Component:      component,
		Insecure:       o.OTelInsecure,
		SampleRatio:    o.OTelSampleRatio,
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("database URL is required")
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("database max connections must be positive")
	}
	if c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("database min connections (%d) exceeds max connections (%d)", c.Database.MinConns, c.Database.MaxConns)
	}

	if c.Redis.URL != "" && c.Redis.QueueKey == "" {
		return fmt.Errorf("redis queue key is required when redis is configured")
	}

	if c.Indexer.Workers < 1 {
		return fmt.Errorf("indexer workers must be positive")
	}
	if c.Indexer.RetryBatchSize < 1 {
		return fmt.Errorf("retry batch size must be positive")
	}

	switch c.Observability.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Observability.LogFormat)
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
		if c.Observability.OTelSampleRatio < 0 || c.Observability.OTelSampleRatio > 1 {
			return fmt.Errorf("OpenTelemetry sample ratio must be between 0 and 1")
		}
	}

	return nil
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

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
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
