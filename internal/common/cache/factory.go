package cache

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// Type represents the cache backend type
type Type string

const (
	TypeLocal   Type = "local"
	TypeRedis   Type = "redis"
	TypeTwoTier Type = "two_tier"
)

// ParseType normalizes a configured backend name.
func ParseType(s string) (Type, error) {
	switch t := Type(strings.ToLower(strings.TrimSpace(s))); t {
	case TypeLocal, TypeRedis, TypeTwoTier:
		return t, nil
	default:
		return "", fmt.Errorf("unknown cache type: %q", s)
	}
}

// Config holds cache configuration
type Config struct {
	Type Type `json:"type"`
	// TTL is the default expiry of the local tier; for two_tier it caps L1.
	TTL             time.Duration `json:"ttl"`
	CleanupInterval time.Duration `json:"cleanup_interval,omitempty"`
	KeyPrefix       string        `json:"key_prefix,omitempty"`
	RedisClient     redis.Cmdable `json:"-"`
}

// DefaultConfig returns default cache configuration
func DefaultConfig() Config {
	return Config{
		Type:            TypeRedis,
		TTL:             time.Minute,
		CleanupInterval: 10 * time.Minute,
	}
}

// New creates a cache instance based on configuration
func New(config Config) (Cache, error) {
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 10 * time.Minute
	}

	switch config.Type {
	case TypeLocal:
		return NewLocalCache(config.TTL, config.CleanupInterval), nil

	case TypeRedis:
		if config.RedisClient == nil {
			return nil, fmt.Errorf("redis client required for redis cache")
		}
		return NewRedisCache(config.RedisClient, config.KeyPrefix), nil

	case TypeTwoTier:
		if config.RedisClient == nil {
			return nil, fmt.Errorf("redis client required for two-tier cache")
		}
		if config.TTL <= 0 {
			return nil, fmt.Errorf("two-tier cache requires a positive L1 ttl")
		}
		return NewTwoTierCache(config.TTL, config.CleanupInterval, config.RedisClient, config.KeyPrefix), nil

	default:
		return nil, fmt.Errorf("unknown cache type: %s", config.Type)
	}
}
