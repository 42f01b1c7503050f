// Package config loads the gateway configuration from environment variables.
//
// Environment Variables:
//
// Application Settings:
//   - PORT: Server port (default: 8080)
//   - LOG_LEVEL: Logging level (default: info)
//   - LOG_FORMAT: json or console (default: json)
//   - LOG_FILE: Write logs to this file instead of stdout
//   - METRICS_ENABLED: Serve Prometheus metrics on /metrics (default: true)
//
// Upstream:
//   - UPSTREAM_URL: Base URL authenticated requests are forwarded to (required)
//   - PROTECTED_PATH_PREFIX: Path prefix that requires a signature (default: /api)
//   - DOWNSTREAM_TIMEOUT: Upstream response timeout (default: 30s)
//   - MAX_BODY_BYTES: Largest accepted request body (default: 10485760)
//
// Redis Configuration:
//   - REDIS_ADDRESS: Redis server address (default: localhost:6379)
//   - REDIS_PASSWORD: Redis password
//   - REDIS_DB: Redis database number 0-15 (default: 0)
//   - REDIS_POOL_SIZE: Redis connection pool size (default: 10)
//
// Credentials:
//   - CREDENTIAL_ORIGIN: "http" or "postgres" (default: http)
//   - CREDENTIAL_SERVICE_URL: API key service base URL (required for http)
//   - DATABASE_URL: PostgreSQL connection string (required for postgres)
//   - CREDENTIAL_CACHE_TYPE: "redis", "two_tier" or "local" (default: redis)
//   - CREDENTIAL_CACHE_TTL: Cached credential lifetime (default: 5m)
//   - SECRET_ENCRYPTION_KEY: Passphrase sealing cached secrets (required, minimum 16 characters)
//
// Signature Checks:
//   - TIMESTAMP_TOLERANCE_SECONDS: Accepted clock skew (default: 300)
//   - CLOCK_SKEW_WARNING_SECONDS: Skew logged as a warning (default: 180)
//   - CLOCK_SKEW_CRITICAL_SECONDS: Skew logged as critical (default: 600)
//   - SIGNATURE_BODY_MODE: "digest" or "canonical" (default: digest)
//   - ALLOW_LEGACY_ALGORITHMS: Accept HmacSHA1 and HmacMD5 (default: false)
//   - IP_ALLOWLIST_ENABLED: Enforce per-credential IP allow-lists (default: true)
//   - TRUSTED_PROXIES: Comma-separated addresses or CIDRs whose X-Forwarded-For
//     style headers are believed; "*" trusts every peer, "none" trusts no one
//     (default: loopback and private ranges)
//
// Idempotency:
//   - IDEMPOTENCY_BACKEND: "redis" or "local" (default: redis)
//   - IDEMPOTENCY_PENDING_TTL: Lifetime of an unfinished claim (default: 10m)
//   - IDEMPOTENCY_COMPLETED_TTL: Lifetime of a completed claim (default: 24h)
//
// Example usage:
//
//	cfg := config.Load()
//	if err := cfg.Validate(); err != nil {
//		log.Fatalf("Invalid configuration: %v", err)
//	}
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"hmac-gateway/internal/auth"
)

// Config holds all configuration values for the gateway.
type Config struct {
	// Application settings
	Port           string
	LogLevel       string
	LogFormat      string
	LogFile        string
	MetricsEnabled bool

	// Upstream
	UpstreamURL         string
	ProtectedPathPrefix string
	DownstreamTimeout   time.Duration
	MaxBodyBytes        int64

	// Redis configuration
	RedisAddress  string
	RedisPassword string
	RedisDB       int
	RedisPoolSize int

	// Credential lookup
	CredentialOrigin     string
	CredentialServiceURL string
	DatabaseURL          string
	CredentialCacheType  string
	CredentialCacheTTL   time.Duration
	SecretEncryptionKey  string

	// Signature checks
	TimestampToleranceSeconds int
	ClockSkewWarningSeconds   int
	ClockSkewCriticalSeconds  int
	SignatureBodyMode         string
	AllowLegacyAlgorithms     bool
	IPAllowlistEnabled        bool
	TrustedProxies            []string

	// Idempotency
	IdempotencyBackend      string
	IdempotencyPendingTTL   time.Duration
	IdempotencyCompletedTTL time.Duration

	// parse errors collected by Load and reported by Validate
	errs []string
}

// Load creates a Config from environment variables, using defaults for unset
// values. Unparsable values are reported by Validate.
func Load() *Config {
	c := &Config{
		Port:           getEnv("PORT", "8080"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "json"),
		LogFile:        getEnv("LOG_FILE", ""),
		MetricsEnabled: getBoolEnv("METRICS_ENABLED", true),

		UpstreamURL:         getEnv("UPSTREAM_URL", ""),
		ProtectedPathPrefix: getEnv("PROTECTED_PATH_PREFIX", "/api"),

		RedisAddress:  getEnv("REDIS_ADDRESS", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		CredentialOrigin:     strings.ToLower(getEnv("CREDENTIAL_ORIGIN", "http")),
		CredentialServiceURL: getEnv("CREDENTIAL_SERVICE_URL", ""),
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		CredentialCacheType:  strings.ToLower(getEnv("CREDENTIAL_CACHE_TYPE", "redis")),
		SecretEncryptionKey:  getEnv("SECRET_ENCRYPTION_KEY", ""),

		SignatureBodyMode:     strings.ToLower(getEnv("SIGNATURE_BODY_MODE", "digest")),
		AllowLegacyAlgorithms: getBoolEnv("ALLOW_LEGACY_ALGORITHMS", false),
		IPAllowlistEnabled:    getBoolEnv("IP_ALLOWLIST_ENABLED", true),
		TrustedProxies:        getListEnv("TRUSTED_PROXIES", auth.DefaultTrustedProxies),

		IdempotencyBackend: strings.ToLower(getEnv("IDEMPOTENCY_BACKEND", "redis")),
	}

	c.DownstreamTimeout = c.getDurationEnv("DOWNSTREAM_TIMEOUT", 30*time.Second)
	c.MaxBodyBytes = int64(c.getIntEnv("MAX_BODY_BYTES", 10<<20))
	c.RedisDB = c.getIntEnv("REDIS_DB", 0)
	c.RedisPoolSize = c.getIntEnv("REDIS_POOL_SIZE", 10)
	c.CredentialCacheTTL = c.getDurationEnv("CREDENTIAL_CACHE_TTL", 5*time.Minute)
	c.TimestampToleranceSeconds = c.getIntEnv("TIMESTAMP_TOLERANCE_SECONDS", 300)
	c.ClockSkewWarningSeconds = c.getIntEnv("CLOCK_SKEW_WARNING_SECONDS", 180)
	c.ClockSkewCriticalSeconds = c.getIntEnv("CLOCK_SKEW_CRITICAL_SECONDS", 600)
	c.IdempotencyPendingTTL = c.getDurationEnv("IDEMPOTENCY_PENDING_TTL", 10*time.Minute)
	c.IdempotencyCompletedTTL = c.getDurationEnv("IDEMPOTENCY_COMPLETED_TTL", 24*time.Hour)

	return c
}

// getEnv retrieves an environment variable value or returns a default value if not set.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getListEnv splits a comma-separated value; "none" yields an empty list.
func getListEnv(key, defaultValue string) []string {
	value := getEnv(key, defaultValue)
	if strings.EqualFold(strings.TrimSpace(value), "none") {
		return nil
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// getBoolEnv accepts the strconv.ParseBool spellings; anything else yields defaultValue.
func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func (c *Config) getIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		c.errs = append(c.errs, fmt.Sprintf("%s must be an integer, got %q", key, value))
		return defaultValue
	}
	return parsed
}

func (c *Config) getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		c.errs = append(c.errs, fmt.Sprintf("%s must be a valid duration (e.g., '30s', '5m'), got %q", key, value))
		return defaultValue
	}
	return parsed
}

// TimestampTolerance returns the accepted skew as a duration.
func (c *Config) TimestampTolerance() time.Duration {
	return time.Duration(c.TimestampToleranceSeconds) * time.Second
}

// Validate checks required fields, formats and cross-field dependencies.
func (c *Config) Validate() error {
	if len(c.errs) > 0 {
		return fmt.Errorf("%s", c.errs[0])
	}

	if port, err := strconv.Atoi(c.Port); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("PORT must be a valid port number between 1 and 65535")
	}

	if err := validateURL("UPSTREAM_URL", c.UpstreamURL); err != nil {
		return err
	}
	if !strings.HasPrefix(c.ProtectedPathPrefix, "/") {
		return fmt.Errorf("PROTECTED_PATH_PREFIX must start with '/'")
	}
	if c.DownstreamTimeout <= 0 {
		return fmt.Errorf("DOWNSTREAM_TIMEOUT must be positive")
	}
	if c.MaxBodyBytes < 1 {
		return fmt.Errorf("MAX_BODY_BYTES must be a positive number")
	}

	needsRedis := c.CredentialCacheType != "local" || c.IdempotencyBackend == "redis"
	if needsRedis {
		if c.RedisAddress == "" {
			return fmt.Errorf("REDIS_ADDRESS is required unless both the credential cache and idempotency backend are local")
		}
		if c.RedisDB < 0 || c.RedisDB > 15 {
			return fmt.Errorf("REDIS_DB must be a number between 0 and 15")
		}
		if c.RedisPoolSize < 1 {
			return fmt.Errorf("REDIS_POOL_SIZE must be a positive number")
		}
	}

	switch c.CredentialOrigin {
	case "http":
		if err := validateURL("CREDENTIAL_SERVICE_URL", c.CredentialServiceURL); err != nil {
			return err
		}
	case "postgres", "postgresql":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when CREDENTIAL_ORIGIN is postgres")
		}
	default:
		return fmt.Errorf("CREDENTIAL_ORIGIN must be 'http' or 'postgres'")
	}

	switch c.CredentialCacheType {
	case "redis", "two_tier", "local":
	default:
		return fmt.Errorf("CREDENTIAL_CACHE_TYPE must be 'redis', 'two_tier' or 'local'")
	}
	if c.CredentialCacheTTL <= 0 {
		return fmt.Errorf("CREDENTIAL_CACHE_TTL must be positive")
	}

	if c.SecretEncryptionKey == "" {
		return fmt.Errorf("SECRET_ENCRYPTION_KEY environment variable is required")
	}
	if len(c.SecretEncryptionKey) < 16 {
		return fmt.Errorf("SECRET_ENCRYPTION_KEY must be at least 16 characters long")
	}

	if c.TimestampToleranceSeconds < 1 {
		return fmt.Errorf("TIMESTAMP_TOLERANCE_SECONDS must be a positive number")
	}
	if c.ClockSkewWarningSeconds < 1 || c.ClockSkewCriticalSeconds < c.ClockSkewWarningSeconds {
		return fmt.Errorf("CLOCK_SKEW_CRITICAL_SECONDS must be at least CLOCK_SKEW_WARNING_SECONDS, and both positive")
	}

	if _, err := auth.ParseTrustedProxies(c.TrustedProxies); err != nil {
		return fmt.Errorf("TRUSTED_PROXIES: %w", err)
	}

	switch c.SignatureBodyMode {
	case "digest", "canonical":
	default:
		return fmt.Errorf("SIGNATURE_BODY_MODE must be 'digest' or 'canonical'")
	}

	switch c.IdempotencyBackend {
	case "redis", "local":
	default:
		return fmt.Errorf("IDEMPOTENCY_BACKEND must be 'redis' or 'local'")
	}
	if c.IdempotencyPendingTTL <= 0 || c.IdempotencyCompletedTTL <= 0 {
		return fmt.Errorf("IDEMPOTENCY_PENDING_TTL and IDEMPOTENCY_COMPLETED_TTL must be positive")
	}
	if c.IdempotencyCompletedTTL < c.IdempotencyPendingTTL {
		return fmt.Errorf("IDEMPOTENCY_COMPLETED_TTL must not be shorter than IDEMPOTENCY_PENDING_TTL")
	}

	return nil
}

func validateURL(key, value string) error {
	if value == "" {
		return fmt.Errorf("%s environment variable is required", key)
	}
	u, err := url.Parse(value)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s must be an absolute URL", key)
	}
	return nil
}
