package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// LoadEnv loads the env files that exist, in order, without overriding
// variables already set. It returns how many files were loaded.
func LoadEnv(envFiles ...string) (int, error) {
	existing := make([]string, 0, len(envFiles))
	for _, file := range envFiles {
		if _, err := os.Stat(file); err == nil {
			existing = append(existing, file)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return 0, fmt.Errorf("stat %s: %w", file, err)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	return len(existing), godotenv.Load(existing...)
}

// Load reads configuration from environment variables.
// It applies defaults for unset values and validates the result.
// Returns an error if required values are missing or validation fails.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}
	cfg.Security.TrustedProxies = trimAll(cfg.Security.TrustedProxies)
	cfg.Security.APIKeys = trimAll(cfg.Security.APIKeys)
	cfg.Kafka.Brokers = trimAll(cfg.Kafka.Brokers)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration and panics on error.
// Use this only in main() where early termination is desired.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// trimAll trims list entries and drops empty ones.
func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	// Entity store
	switch c.Database.Store {
	case StorePostgres:
		if c.Database.URL == "" {
			errs = append(errs, "DATABASE_URL is required when ENTITY_STORE=postgres")
		}
		if c.Database.MaxConns < c.Database.MinConns {
			errs = append(errs, fmt.Sprintf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)",
				c.Database.MaxConns, c.Database.MinConns))
		}
		if c.Database.MaxConns <= 0 {
			errs = append(errs, "DB_MAX_CONNS must be positive")
		}
		if c.Database.MinConns < 0 {
			errs = append(errs, "DB_MIN_CONNS must be non-negative")
		}
	case StoreMemory:
	default:
		errs = append(errs, fmt.Sprintf("ENTITY_STORE (%q) must be one of: postgres, memory", c.Database.Store))
	}

	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 {
		errs = append(errs, "SERVER_READ_TIMEOUT must be non-negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}

	// Import validation
	if c.Import.MaxFileSize <= 0 {
		errs = append(errs, "IMPORT_MAX_FILE_SIZE must be positive")
	}
	if c.Import.MaxRows <= 0 {
		errs = append(errs, "IMPORT_MAX_ROWS must be positive")
	}
	if c.Import.MaxConcurrent <= 0 {
		errs = append(errs, "IMPORT_MAX_CONCURRENT must be positive")
	}
	if c.Import.QueueWait <= 0 {
		errs = append(errs, "IMPORT_QUEUE_WAIT must be positive")
	}
	if c.Import.Timeout <= 0 {
		errs = append(errs, "IMPORT_TIMEOUT must be positive")
	}
	if c.Import.CommitTimeout <= 0 {
		errs = append(errs, "COMMIT_TIMEOUT must be positive")
	}

	// Matching validation
	if err := c.Matching.Thresholds().Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("MATCH thresholds: %v", err))
	}
	if c.Matching.MaxResults <= 0 {
		errs = append(errs, "MATCH_MAX_RESULTS must be positive")
	}
	if c.Matching.Workers <= 0 {
		errs = append(errs, "MATCH_WORKERS must be positive")
	}
	if c.Matching.ExactWeight < 0 || c.Matching.FuzzyWeight < 0 || c.Matching.ExactWeight+c.Matching.FuzzyWeight <= 0 {
		errs = append(errs, "MATCH_EXACT_WEIGHT and MATCH_FUZZY_WEIGHT must be non-negative and not both zero")
	}

	// Session validation
	switch c.Session.Store {
	case StoreMemory:
	case StoreRedis:
		if c.Redis.Addr == "" {
			errs = append(errs, "REDIS_ADDR is required when SESSION_STORE=redis")
		}
	default:
		errs = append(errs, fmt.Sprintf("SESSION_STORE (%q) must be one of: memory, redis", c.Session.Store))
	}
	if c.Session.TTL <= 0 {
		errs = append(errs, "SESSION_TTL must be positive")
	}
	if c.Session.Retention <= 0 {
		errs = append(errs, "SESSION_RETENTION must be positive")
	}

	// Rate limit validation
	if c.Rate.Enabled && c.Rate.RequestsPerMinute <= 0 {
		errs = append(errs, "RATE_LIMIT_REQUESTS_PER_MINUTE must be positive when rate limiting is enabled")
	}
	if c.Rate.Enabled && c.Rate.ImportLimit <= 0 {
		errs = append(errs, "RATE_LIMIT_IMPORTS must be positive when rate limiting is enabled")
	}

	// Kafka validation
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			errs = append(errs, "KAFKA_BROKERS is required when KAFKA_ENABLED is true")
		}
		if c.Kafka.Topic == "" {
			errs = append(errs, "KAFKA_COMMIT_TOPIC is required when KAFKA_ENABLED is true")
		}
	}

	// Security validation
	if c.Security.RequireAPIKey && len(c.Security.APIKeys) == 0 {
		errs = append(errs, "REQUIRE_API_KEY is true but API_KEYS is empty; configure at least one API key or disable auth")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// String returns a safe string representation of the config for logging.
// Sensitive values like database URLs are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	fmt.Fprintf(&b, "Server: {Host: %q, Port: %d}, ", c.Server.Host, c.Server.Port)
	fmt.Fprintf(&b, "Database: {Store: %q, URL: %s, MaxConns: %d, MinConns: %d}, ",
		c.Database.Store, mask(c.Database.URL), c.Database.MaxConns, c.Database.MinConns)
	fmt.Fprintf(&b, "Import: {MaxFileSize: %d, MaxRows: %d, MaxConcurrent: %d}, ",
		c.Import.MaxFileSize, c.Import.MaxRows, c.Import.MaxConcurrent)
	fmt.Fprintf(&b, "Matching: {Ambiguous: %g, Confidence: %g, Tolerance: %g}, ",
		c.Matching.AmbiguousThreshold, c.Matching.ConfidenceThreshold, c.Matching.Tolerance)
	fmt.Fprintf(&b, "Session: {Store: %q, TTL: %s, Retention: %s}, ",
		c.Session.Store, c.Session.TTL, c.Session.Retention)
	fmt.Fprintf(&b, "Rate: {Enabled: %v, RequestsPerMinute: %d}, ", c.Rate.Enabled, c.Rate.RequestsPerMinute)
	fmt.Fprintf(&b, "Redis: {Addr: %q, Password: %s}, ", c.Redis.Addr, mask(c.Redis.Password))
	fmt.Fprintf(&b, "Kafka: {Enabled: %v, Brokers: %v}, ", c.Kafka.Enabled, c.Kafka.Brokers)
	fmt.Fprintf(&b, "Security: {RequireAPIKey: %v, APIKeys: %d configured}, ",
		c.Security.RequireAPIKey, len(c.Security.APIKeys))
	fmt.Fprintf(&b, "Logging: {Level: %q, Format: %q}", c.Logging.Level, c.Logging.Format)
	b.WriteString("}")
	return b.String()
}

func mask(secret string) string {
	if secret == "" {
		return "[EMPTY]"
	}
	return "[MASKED]"
}
