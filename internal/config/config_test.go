package config

import (
	"strings"
	"testing"
	"time"
)

var testEnvVars = []string{
	"PORT", "LOG_LEVEL", "LOG_FORMAT", "LOG_FILE", "METRICS_ENABLED",
	"UPSTREAM_URL", "PROTECTED_PATH_PREFIX", "DOWNSTREAM_TIMEOUT", "MAX_BODY_BYTES",
	"REDIS_ADDRESS", "REDIS_PASSWORD", "REDIS_DB", "REDIS_POOL_SIZE",
	"CREDENTIAL_ORIGIN", "CREDENTIAL_SERVICE_URL", "DATABASE_URL", "CREDENTIAL_CACHE_TYPE",
	"CREDENTIAL_CACHE_TTL", "SECRET_ENCRYPTION_KEY",
	"TIMESTAMP_TOLERANCE_SECONDS", "CLOCK_SKEW_WARNING_SECONDS", "CLOCK_SKEW_CRITICAL_SECONDS",
	"SIGNATURE_BODY_MODE", "ALLOW_LEGACY_ALGORITHMS", "IP_ALLOWLIST_ENABLED", "TRUSTED_PROXIES",
	"IDEMPOTENCY_BACKEND", "IDEMPOTENCY_PENDING_TTL", "IDEMPOTENCY_COMPLETED_TTL",
}

// clearTestEnvVars blanks every variable Load reads; getEnv treats empty as unset.
func clearTestEnvVars(t *testing.T) {
	t.Helper()
	for _, key := range testEnvVars {
		t.Setenv(key, "")
	}
}

func TestLoad(t *testing.T) {
	clearTestEnvVars(t)

	config := Load()

	if config.Port != "8080" {
		t.Errorf("Load() Port = %v, want %v", config.Port, "8080")
	}
	if config.LogLevel != "info" {
		t.Errorf("Load() LogLevel = %v, want %v", config.LogLevel, "info")
	}
	if !config.MetricsEnabled {
		t.Errorf("Load() MetricsEnabled = %v, want true", config.MetricsEnabled)
	}
	if config.ProtectedPathPrefix != "/api" {
		t.Errorf("Load() ProtectedPathPrefix = %v, want /api", config.ProtectedPathPrefix)
	}
	if config.DownstreamTimeout != 30*time.Second {
		t.Errorf("Load() DownstreamTimeout = %v, want 30s", config.DownstreamTimeout)
	}
	if config.MaxBodyBytes != 10<<20 {
		t.Errorf("Load() MaxBodyBytes = %v, want %v", config.MaxBodyBytes, 10<<20)
	}
	if config.RedisAddress != "localhost:6379" {
		t.Errorf("Load() RedisAddress = %v, want %v", config.RedisAddress, "localhost:6379")
	}
	if config.RedisDB != 0 || config.RedisPoolSize != 10 {
		t.Errorf("Load() RedisDB/RedisPoolSize = %v/%v, want 0/10", config.RedisDB, config.RedisPoolSize)
	}
	if config.CredentialOrigin != "http" {
		t.Errorf("Load() CredentialOrigin = %v, want http", config.CredentialOrigin)
	}
	if config.CredentialCacheType != "redis" {
		t.Errorf("Load() CredentialCacheType = %v, want redis", config.CredentialCacheType)
	}
	if config.CredentialCacheTTL != 5*time.Minute {
		t.Errorf("Load() CredentialCacheTTL = %v, want 5m", config.CredentialCacheTTL)
	}
	if config.TimestampToleranceSeconds != 300 || config.TimestampTolerance() != 5*time.Minute {
		t.Errorf("Load() TimestampToleranceSeconds = %v, want 300", config.TimestampToleranceSeconds)
	}
	if config.ClockSkewWarningSeconds != 180 || config.ClockSkewCriticalSeconds != 600 {
		t.Errorf("Load() clock skew thresholds = %v/%v, want 180/600", config.ClockSkewWarningSeconds, config.ClockSkewCriticalSeconds)
	}
	if config.SignatureBodyMode != "digest" {
		t.Errorf("Load() SignatureBodyMode = %v, want digest", config.SignatureBodyMode)
	}
	if config.AllowLegacyAlgorithms {
		t.Errorf("Load() AllowLegacyAlgorithms = true, want false")
	}
	if !config.IPAllowlistEnabled {
		t.Errorf("Load() IPAllowlistEnabled = false, want true")
	}
	if len(config.TrustedProxies) != 6 || config.TrustedProxies[0] != "127.0.0.0/8" {
		t.Errorf("Load() TrustedProxies = %v, want loopback and private ranges", config.TrustedProxies)
	}
	if config.IdempotencyBackend != "redis" {
		t.Errorf("Load() IdempotencyBackend = %v, want redis", config.IdempotencyBackend)
	}
	if config.IdempotencyPendingTTL != 10*time.Minute || config.IdempotencyCompletedTTL != 24*time.Hour {
		t.Errorf("Load() idempotency TTLs = %v/%v, want 10m/24h", config.IdempotencyPendingTTL, config.IdempotencyCompletedTTL)
	}
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	clearTestEnvVars(t)
	t.Setenv("PORT", "9090")
	t.Setenv("UPSTREAM_URL", "http://payments:8080")
	t.Setenv("DOWNSTREAM_TIMEOUT", "5s")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("CREDENTIAL_ORIGIN", "POSTGRES")
	t.Setenv("DATABASE_URL", "postgres://gateway@db/keys")
	t.Setenv("CREDENTIAL_CACHE_TYPE", "two_tier")
	t.Setenv("CREDENTIAL_CACHE_TTL", "90s")
	t.Setenv("TIMESTAMP_TOLERANCE_SECONDS", "60")
	t.Setenv("ALLOW_LEGACY_ALGORITHMS", "true")
	t.Setenv("IP_ALLOWLIST_ENABLED", "false")
	t.Setenv("IDEMPOTENCY_BACKEND", "local")

	config := Load()

	if config.Port != "9090" {
		t.Errorf("Port = %v, want 9090", config.Port)
	}
	if config.UpstreamURL != "http://payments:8080" {
		t.Errorf("UpstreamURL = %v", config.UpstreamURL)
	}
	if config.DownstreamTimeout != 5*time.Second {
		t.Errorf("DownstreamTimeout = %v, want 5s", config.DownstreamTimeout)
	}
	if config.RedisDB != 3 {
		t.Errorf("RedisDB = %v, want 3", config.RedisDB)
	}
	if config.CredentialOrigin != "postgres" {
		t.Errorf("CredentialOrigin = %v, want postgres", config.CredentialOrigin)
	}
	if config.CredentialCacheType != "two_tier" {
		t.Errorf("CredentialCacheType = %v, want two_tier", config.CredentialCacheType)
	}
	if config.CredentialCacheTTL != 90*time.Second {
		t.Errorf("CredentialCacheTTL = %v, want 90s", config.CredentialCacheTTL)
	}
	if config.TimestampTolerance() != time.Minute {
		t.Errorf("TimestampTolerance() = %v, want 1m", config.TimestampTolerance())
	}
	if !config.AllowLegacyAlgorithms {
		t.Errorf("AllowLegacyAlgorithms = false, want true")
	}
	if config.IPAllowlistEnabled {
		t.Errorf("IPAllowlistEnabled = true, want false")
	}
	if config.IdempotencyBackend != "local" {
		t.Errorf("IdempotencyBackend = %v, want local", config.IdempotencyBackend)
	}
}

func TestLoad_TrustedProxies(t *testing.T) {
	clearTestEnvVars(t)
	t.Setenv("TRUSTED_PROXIES", " 10.1.0.0/16 , ,192.0.2.7")
	config := Load()
	if len(config.TrustedProxies) != 2 || config.TrustedProxies[0] != "10.1.0.0/16" || config.TrustedProxies[1] != "192.0.2.7" {
		t.Errorf("TrustedProxies = %v", config.TrustedProxies)
	}

	t.Setenv("TRUSTED_PROXIES", "none")
	if got := Load().TrustedProxies; len(got) != 0 {
		t.Errorf("TrustedProxies = %v, want empty", got)
	}
}

func TestLoad_InvalidNumbersFailValidation(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"REDIS_DB", "zero"},
		{"TIMESTAMP_TOLERANCE_SECONDS", "5m"},
		{"CREDENTIAL_CACHE_TTL", "300"},
		{"IDEMPOTENCY_PENDING_TTL", "ten minutes"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			clearTestEnvVars(t)
			setValidEnv(t)
			t.Setenv(tt.key, tt.value)

			err := Load().Validate()
			if err == nil {
				t.Fatalf("Validate() error = nil, want error for %s=%q", tt.key, tt.value)
			}
			if !strings.Contains(err.Error(), tt.key) {
				t.Errorf("Validate() error = %v, want it to mention %s", err, tt.key)
			}
		})
	}
}

func setValidEnv(t *testing.T) {
	t.Helper()
	t.Setenv("UPSTREAM_URL", "http://upstream:8080")
	t.Setenv("CREDENTIAL_SERVICE_URL", "http://api-keys:8081")
	t.Setenv("SECRET_ENCRYPTION_KEY", "sixteen-chars-ok")
}

func TestLoad_ValidEnvironment(t *testing.T) {
	clearTestEnvVars(t)
	setValidEnv(t)

	if err := Load().Validate(); err != nil {
		t.Fatalf("Validate() error = %v, want nil", err)
	}
}

func TestGetBoolEnv(t *testing.T) {
	tests := []struct {
		name         string
		envValue     string
		defaultValue bool
		expected     bool
	}{
		{"true value", "true", false, true},
		{"numeric true", "1", false, true},
		{"false value", "false", true, false},
		{"invalid value", "maybe", true, true},
		{"unset", "", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_BOOL_KEY", tt.envValue)
			if result := getBoolEnv("TEST_BOOL_KEY", tt.defaultValue); result != tt.expected {
				t.Errorf("getBoolEnv() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func validConfig() *Config {
	return &Config{
		Port:                      "8080",
		UpstreamURL:               "http://upstream:8080",
		ProtectedPathPrefix:       "/api",
		DownstreamTimeout:         30 * time.Second,
		MaxBodyBytes:              1 << 20,
		RedisAddress:              "localhost:6379",
		RedisDB:                   0,
		RedisPoolSize:             10,
		CredentialOrigin:          "http",
		CredentialServiceURL:      "http://api-keys:8081",
		CredentialCacheType:       "redis",
		CredentialCacheTTL:        5 * time.Minute,
		SecretEncryptionKey:       "this-is-a-valid-sealing-passphrase",
		TimestampToleranceSeconds: 300,
		ClockSkewWarningSeconds:   180,
		ClockSkewCriticalSeconds:  600,
		SignatureBodyMode:         "digest",
		IPAllowlistEnabled:        true,
		IdempotencyBackend:        "redis",
		IdempotencyPendingTTL:     10 * time.Minute,
		IdempotencyCompletedTTL:   24 * time.Hour,
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name          string
		modify        func(c *Config)
		errorContains string
	}{
		{name: "valid config"},
		{
			name: "valid postgres origin",
			modify: func(c *Config) {
				c.CredentialOrigin = "postgres"
				c.CredentialServiceURL = ""
				c.DatabaseURL = "postgres://gateway@db/keys"
			},
		},
		{
			name: "local only needs no redis",
			modify: func(c *Config) {
				c.CredentialCacheType = "local"
				c.IdempotencyBackend = "local"
				c.RedisAddress = ""
			},
		},
		{
			name:          "invalid port",
			modify:        func(c *Config) { c.Port = "invalid" },
			errorContains: "PORT must be a valid port number",
		},
		{
			name:          "port out of range",
			modify:        func(c *Config) { c.Port = "70000" },
			errorContains: "PORT must be a valid port number",
		},
		{
			name:          "missing upstream",
			modify:        func(c *Config) { c.UpstreamURL = "" },
			errorContains: "UPSTREAM_URL environment variable is required",
		},
		{
			name:          "relative upstream",
			modify:        func(c *Config) { c.UpstreamURL = "upstream:8080/x" },
			errorContains: "UPSTREAM_URL must be an absolute URL",
		},
		{
			name:          "prefix without slash",
			modify:        func(c *Config) { c.ProtectedPathPrefix = "api" },
			errorContains: "PROTECTED_PATH_PREFIX",
		},
		{
			name:          "redis db out of range",
			modify:        func(c *Config) { c.RedisDB = 16 },
			errorContains: "REDIS_DB must be a number between 0 and 15",
		},
		{
			name:          "redis required for shared idempotency",
			modify:        func(c *Config) { c.RedisAddress = "" },
			errorContains: "REDIS_ADDRESS is required",
		},
		{
			name:          "unknown origin",
			modify:        func(c *Config) { c.CredentialOrigin = "ldap" },
			errorContains: "CREDENTIAL_ORIGIN must be",
		},
		{
			name:          "http origin without url",
			modify:        func(c *Config) { c.CredentialServiceURL = "" },
			errorContains: "CREDENTIAL_SERVICE_URL environment variable is required",
		},
		{
			name: "postgres origin without url",
			modify: func(c *Config) {
				c.CredentialOrigin = "postgres"
			},
			errorContains: "DATABASE_URL is required",
		},
		{
			name:          "unknown cache type",
			modify:        func(c *Config) { c.CredentialCacheType = "memcached" },
			errorContains: "CREDENTIAL_CACHE_TYPE must be",
		},
		{
			name:          "missing sealing key",
			modify:        func(c *Config) { c.SecretEncryptionKey = "" },
			errorContains: "SECRET_ENCRYPTION_KEY environment variable is required",
		},
		{
			name:          "short sealing key",
			modify:        func(c *Config) { c.SecretEncryptionKey = "short" },
			errorContains: "SECRET_ENCRYPTION_KEY must be at least 16 characters",
		},
		{
			name:          "bad trusted proxy",
			modify:        func(c *Config) { c.TrustedProxies = []string{"10.0.0.0/8", "lb.internal"} },
			errorContains: "TRUSTED_PROXIES",
		},
		{
			name:   "no trusted proxies",
			modify: func(c *Config) { c.TrustedProxies = nil },
		},
		{
			name:          "zero tolerance",
			modify:        func(c *Config) { c.TimestampToleranceSeconds = 0 },
			errorContains: "TIMESTAMP_TOLERANCE_SECONDS",
		},
		{
			name:          "critical below warning",
			modify:        func(c *Config) { c.ClockSkewCriticalSeconds = 60 },
			errorContains: "CLOCK_SKEW_CRITICAL_SECONDS",
		},
		{
			name:          "unknown body mode",
			modify:        func(c *Config) { c.SignatureBodyMode = "raw" },
			errorContains: "SIGNATURE_BODY_MODE",
		},
		{
			name:          "unknown idempotency backend",
			modify:        func(c *Config) { c.IdempotencyBackend = "etcd" },
			errorContains: "IDEMPOTENCY_BACKEND",
		},
		{
			name:          "completed shorter than pending",
			modify:        func(c *Config) { c.IdempotencyCompletedTTL = time.Minute },
			errorContains: "IDEMPOTENCY_COMPLETED_TTL must not be shorter",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := validConfig()
			if tt.modify != nil {
				tt.modify(config)
			}

			err := config.Validate()
			if tt.errorContains == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() error = nil, want error containing %q", tt.errorContains)
			}
			if !strings.Contains(err.Error(), tt.errorContains) {
				t.Errorf("Validate() error = %q, want it to contain %q", err.Error(), tt.errorContains)
			}
		})
	}
}

func BenchmarkValidate(b *testing.B) {
	config := validConfig()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = config.Validate()
	}
}
