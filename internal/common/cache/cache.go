package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	gocache "github.com/patrickmn/go-cache"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache: miss")

// Cache defines the interface for cache operations. Values are opaque bytes;
// callers own serialization. Any error other than ErrMiss means the backend
// could not answer and must not be treated as a miss.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
}

// LocalCache wraps patrickmn/go-cache for in-memory caching
type LocalCache struct {
	cache *gocache.Cache
}

// NewLocalCache creates a new local cache instance
func NewLocalCache(defaultTTL, cleanupInterval time.Duration) *LocalCache {
	return &LocalCache{
		cache: gocache.New(defaultTTL, cleanupInterval),
	}
}

// Get retrieves a value from the local cache
func (l *LocalCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, found := l.cache.Get(key)
	if !found {
		return nil, ErrMiss
	}
	return val.([]byte), nil
}

// Set stores a value in the local cache
func (l *LocalCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	l.cache.Set(key, value, ttl)
	return nil
}

// SetNX stores the value only if the key is absent. go-cache's Add holds the
// cache lock for the check and the write, so concurrent callers race safely.
func (l *LocalCache) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if err := l.cache.Add(key, value, ttl); err != nil {
		return false, nil
	}
	return true, nil
}

// Delete removes a value from the local cache
func (l *LocalCache) Delete(ctx context.Context, key string) error {
	l.cache.Delete(key)
	return nil
}

// RedisCache wraps go-redis for distributed caching
type RedisCache struct {
	client    redis.Cmdable
	keyPrefix string
}

// NewRedisCache creates a new Redis cache instance
func NewRedisCache(client redis.Cmdable, keyPrefix string) *RedisCache {
	return &RedisCache{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// Get retrieves a value from Redis
func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, r.keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, nil
}

// Set stores a value in Redis
func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.keyPrefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// SetNX sets a value only if the key doesn't exist
func (r *RedisCache) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.keyPrefix+key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx %s: %w", key, err)
	}
	return ok, nil
}

// Delete removes a value from Redis
func (r *RedisCache) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.keyPrefix+key).Err()
}

// TwoTierCache combines a process-local L1 with Redis as L2 and source of truth
type TwoTierCache struct {
	l1       *LocalCache
	l2       *RedisCache
	maxL1TTL time.Duration
}

// NewTwoTierCache creates a cache with local L1 and Redis L2. Entries never
// live in L1 longer than maxL1TTL.
func NewTwoTierCache(maxL1TTL, cleanupInterval time.Duration, redisClient redis.Cmdable, keyPrefix string) *TwoTierCache {
	return &TwoTierCache{
		l1:       NewLocalCache(maxL1TTL, cleanupInterval),
		l2:       NewRedisCache(redisClient, keyPrefix),
		maxL1TTL: maxL1TTL,
	}
}

// Get checks L1 first, then L2
func (t *TwoTierCache) Get(ctx context.Context, key string) ([]byte, error) {
	if val, err := t.l1.Get(ctx, key); err == nil {
		return val, nil
	}

	val, err := t.l2.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	_ = t.l1.Set(ctx, key, val, t.maxL1TTL)
	return val, nil
}

// Set stores in both L1 and L2
func (t *TwoTierCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := t.l2.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	return t.l1.Set(ctx, key, value, t.l1TTL(ttl))
}

// SetNX is decided by L2 alone so that every instance sees the same winner.
func (t *TwoTierCache) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	acquired, err := t.l2.SetNX(ctx, key, value, ttl)
	if err != nil || !acquired {
		return acquired, err
	}
	_ = t.l1.Set(ctx, key, value, t.l1TTL(ttl))
	return true, nil
}

// Delete removes from both L1 and L2
func (t *TwoTierCache) Delete(ctx context.Context, key string) error {
	_ = t.l1.Delete(ctx, key)
	return t.l2.Delete(ctx, key)
}

func (t *TwoTierCache) l1TTL(ttl time.Duration) time.Duration {
	if ttl <= 0 || ttl > t.maxL1TTL {
		return t.maxL1TTL
	}
	return ttl
}
