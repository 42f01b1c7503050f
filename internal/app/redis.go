package app

import (
	"hmac-gateway/internal/common/logging"
	"hmac-gateway/internal/redis"
)

func (app *App) needsRedis() bool {
	return app.Config.CredentialCacheType != "local" || app.Config.IdempotencyBackend != "local"
}

func (app *App) initializeRedis() error {
	if !app.needsRedis() {
		app.Logger.Info("Redis: Not configured (credential cache and idempotency store are local)")
		return nil
	}

	redisConfig := &redis.Config{
		Address:  app.Config.RedisAddress,
		Password: app.Config.RedisPassword,
		DB:       app.Config.RedisDB,
		PoolSize: app.Config.RedisPoolSize,
	}

	redisClient, err := redis.NewClient(redisConfig)
	if err != nil {
		return err
	}

	app.RedisClient = redisClient
	app.Logger.Info("Redis: Connected",
		logging.String("address", app.Config.RedisAddress),
		logging.Int("db", app.Config.RedisDB),
		logging.Int("pool_size", app.Config.RedisPoolSize),
	)
	return nil
}
