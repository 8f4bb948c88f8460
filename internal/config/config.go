// Package config provides centralized configuration management for the importer.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"net"
	"strconv"
	"time"

	"github.com/cloudagrapher/fancy-planties-sub010/internal/core"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Import   ImportConfig
	Matching MatchingConfig
	Session  SessionConfig
	Rate     RateLimitConfig
	Kafka    KafkaConfig
	Redis    RedisConfig
	Security SecurityConfig
	Logging  LoggingConfig
	Metrics  MetricsConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" envDefault:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" envDefault:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 30s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"30s"`

	// WriteTimeout is the maximum duration for writing response (default: 5m)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"5m"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 5m)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" envDefault:"5m"`
}

// Entity store backends.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
	StoreRedis    = "redis"
)

// DatabaseConfig holds entity storage settings.
type DatabaseConfig struct {
	// Store selects the entity store: postgres or memory (default: postgres)
	Store string `env:"ENTITY_STORE" envDefault:"postgres"`

	// URL is the PostgreSQL connection string, required for the postgres store
	URL string `env:"DATABASE_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" envDefault:"20"`

	// MinConns is the minimum number of connections to keep open (default: 4)
	MinConns int `env:"DB_MIN_CONNS" envDefault:"4"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"30m"`

	// AutoMigrate applies pending migrations on startup (default: false)
	AutoMigrate bool `env:"DB_AUTO_MIGRATE" envDefault:"false"`
}

// ImportConfig holds batch parsing and commit settings.
type ImportConfig struct {
	// MaxFileSize is the maximum allowed file size in bytes (default: 32MB)
	MaxFileSize int64 `env:"IMPORT_MAX_FILE_SIZE" envDefault:"33554432"`

	// MaxRows is the maximum number of data rows per batch (default: 50000)
	MaxRows int `env:"IMPORT_MAX_ROWS" envDefault:"50000"`

	// MaxConcurrent is the maximum number of batches parsed at once (default: 5)
	MaxConcurrent int `env:"IMPORT_MAX_CONCURRENT" envDefault:"5"`

	// QueueWait is how long to wait for a parsing slot (default: 30s)
	QueueWait time.Duration `env:"IMPORT_QUEUE_WAIT" envDefault:"30s"`

	// Timeout bounds parsing and matching of one batch (default: 5m)
	Timeout time.Duration `env:"IMPORT_TIMEOUT" envDefault:"5m"`

	// CommitTimeout bounds one commit (default: 2m)
	CommitTimeout time.Duration `env:"COMMIT_TIMEOUT" envDefault:"2m"`

	// ProgressEvery is how many matched rows pass between progress updates (default: 100)
	ProgressEvery int `env:"PROGRESS_EVERY" envDefault:"100"`

	// MappingsFile is an optional YAML file of named column mapping profiles
	MappingsFile string `env:"IMPORT_MAPPINGS_FILE"`
}

// MatchingConfig holds similarity scoring and classification settings.
type MatchingConfig struct {
	AmbiguousThreshold  float64 `env:"MATCH_AMBIGUOUS_THRESHOLD" envDefault:"0.6"`
	ConfidenceThreshold float64 `env:"MATCH_CONFIDENCE_THRESHOLD" envDefault:"0.8"`
	Tolerance           float64 `env:"MATCH_TOLERANCE" envDefault:"0.05"`

	MaxResults     int `env:"MATCH_MAX_RESULTS" envDefault:"5"`
	CandidateLimit int `env:"MATCH_CANDIDATE_LIMIT" envDefault:"25"`
	Workers        int `env:"MATCH_WORKERS" envDefault:"4"`

	ExactWeight     float64 `env:"MATCH_EXACT_WEIGHT" envDefault:"0.4"`
	FuzzyWeight     float64 `env:"MATCH_FUZZY_WEIGHT" envDefault:"0.6"`
	MaxEditDistance int     `env:"MATCH_MAX_EDIT_DISTANCE" envDefault:"8"`
}

// Thresholds returns the classifier policy.
func (m MatchingConfig) Thresholds() core.Thresholds {
	return core.Thresholds{
		Ambiguous:  m.AmbiguousThreshold,
		Confidence: m.ConfidenceThreshold,
		Tolerance:  m.Tolerance,
	}
}

// Matcher returns the matcher settings.
func (m MatchingConfig) Matcher() core.MatcherConfig {
	return core.MatcherConfig{MaxResults: m.MaxResults, CandidateLimit: m.CandidateLimit, Workers: m.Workers}
}

// Similarity returns the field similarity scorer.
func (m MatchingConfig) Similarity() core.FieldSimilarity {
	return core.FieldSimilarity{ExactWeight: m.ExactWeight, FuzzyWeight: m.FuzzyWeight, MaxEditDistance: m.MaxEditDistance}
}

// SessionConfig holds import session storage settings.
type SessionConfig struct {
	// Store selects the session store: memory or redis (default: memory)
	Store string `env:"SESSION_STORE" envDefault:"memory"`

	// TTL evicts sessions idle for this long (default: 24h)
	TTL time.Duration `env:"SESSION_TTL" envDefault:"24h"`

	// Retention keeps completed and failed sessions for status polling (default: 10m)
	Retention time.Duration `env:"SESSION_RETENTION" envDefault:"10m"`

	// SweepInterval is how often the in-memory store is swept (default: 1m)
	SweepInterval time.Duration `env:"SESSION_SWEEP_INTERVAL" envDefault:"1m"`

	// LockTTL bounds how long one mutation may hold a redis session lock (default: 30s)
	LockTTL time.Duration `env:"SESSION_LOCK_TTL" envDefault:"30s"`

	// LockWait is how long a mutation waits for a busy redis session (default: 5s)
	LockWait time.Duration `env:"SESSION_LOCK_WAIT" envDefault:"5s"`
}

// Lifetime returns the session eviction policy.
func (s SessionConfig) Lifetime() core.Lifetime {
	return core.Lifetime{TTL: s.TTL, Retention: s.Retention}
}

// RateLimitConfig holds per-IP rate limiting settings.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" envDefault:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 300)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" envDefault:"300"`

	// ImportLimit is batch submissions per minute per IP (default: 10)
	ImportLimit int `env:"RATE_LIMIT_IMPORTS" envDefault:"10"`
}

// KafkaConfig holds post-commit event publishing settings.
type KafkaConfig struct {
	Enabled      bool          `env:"KAFKA_ENABLED" envDefault:"false"`
	Brokers      []string      `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`
	Topic        string        `env:"KAFKA_COMMIT_TOPIC" envDefault:"planties.imports"`
	AssetTopic   string        `env:"KAFKA_ASSET_TOPIC" envDefault:"planties.assets"`
	BatchSize    int           `env:"KAFKA_BATCH_SIZE" envDefault:"100"`
	BatchTimeout time.Duration `env:"KAFKA_BATCH_TIMEOUT" envDefault:"100ms"`
	RequiredAcks int           `env:"KAFKA_REQUIRED_ACKS" envDefault:"1"`
	Compression  string        `env:"KAFKA_COMPRESSION" envDefault:"snappy"`
}

// RedisConfig holds the redis connection used by the redis session store.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
	Prefix   string `env:"REDIS_PREFIX" envDefault:"planties:import:"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RequireAPIKey enables X-API-Key authentication on /api (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" envDefault:"false"`

	// APIKeys is a comma-separated list of accepted API keys
	APIKeys []string `env:"API_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" envDefault:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" envDefault:"text"`
}

// MetricsConfig holds the prometheus endpoint settings.
type MetricsConfig struct {
	Enabled bool   `env:"METRICS_ENABLED" envDefault:"true"`
	Path    string `env:"METRICS_PATH" envDefault:"/metrics"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
