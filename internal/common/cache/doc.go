// Package cache provides a byte-oriented caching interface with multiple backends.
//
// It wraps:
//   - github.com/patrickmn/go-cache for local in-memory caching
//   - github.com/go-redis/redis/v8 for distributed Redis caching
//
// Three backends are available:
//
//  1. Local: process-local, suitable for single-node deployments and tests.
//  2. Redis: shared across gateway instances.
//  3. TwoTier: a short-lived local L1 in front of Redis. SetNX is always
//     decided by Redis.
//
// Get distinguishes a miss (ErrMiss) from a backend failure. Authentication
// code relies on that distinction to fail closed when Redis is unreachable.
//
// Usage:
//
//	c, err := cache.New(cache.Config{
//		Type:        cache.TypeRedis,
//		KeyPrefix:   "credential:",
//		RedisClient: rdb,
//	})
//	ok, err := c.SetNX(ctx, "key", []byte("value"), 10*time.Minute)
package cache
