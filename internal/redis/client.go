// Package redis owns the gateway's connection to the shared Redis instance
// that backs idempotency claims and the credential cache.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	apperrors "hmac-gateway/internal/common/errors"
)

type Client struct {
	rdb    *redis.Client
	config *Config
}

type Config struct {
	Address      string        `json:"address"`
	Password     string        `json:"password"`
	DB           int           `json:"db"`
	PoolSize     int           `json:"pool_size"`
	DialTimeout  time.Duration `json:"dial_timeout"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

func NewClient(config *Config) (*Client, error) {
	if config == nil {
		return nil, fmt.Errorf("redis config is required")
	}

	if config.Address == "" {
		config.Address = "localhost:6379"
	}
	if config.PoolSize == 0 {
		config.PoolSize = 10
	}
	if config.DialTimeout == 0 {
		config.DialTimeout = 5 * time.Second
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = 3 * time.Second
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = 3 * time.Second
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         config.Address,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		// Claims and lookups must not be silently replayed.
		MaxRetries: -1,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, apperrors.ConnectionError("failed to connect to Redis", err).
			WithContext("address", config.Address)
	}

	return &Client{
		rdb:    rdb,
		config: config,
	}, nil
}

// Cmdable exposes the command surface for the cache backends.
func (c *Client) Cmdable() redis.Cmdable {
	return c.rdb
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

// Health pings Redis, bounded by ctx and at most five seconds.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return apperrors.ConnectionError("redis ping failed", err)
	}
	return nil
}

// PoolStats reports connection pool usage for the health endpoint.
func (c *Client) PoolStats() *redis.PoolStats {
	return c.rdb.PoolStats()
}
