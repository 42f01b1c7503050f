package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"hmac-gateway/internal/auth"
	"hmac-gateway/internal/common/cache"
	commonhttp "hmac-gateway/internal/common/http"
	"hmac-gateway/internal/common/logging"
	"hmac-gateway/internal/config"
	"hmac-gateway/internal/credential"
	"hmac-gateway/internal/crypto"
	"hmac-gateway/internal/idempotency"
	"hmac-gateway/internal/pipeline"
	"hmac-gateway/internal/proxy"
	"hmac-gateway/internal/redis"
	"hmac-gateway/internal/signature"
	"hmac-gateway/internal/timestamp"
)

// credentialKeyPrefix namespaces cached credentials in the shared store.
const credentialKeyPrefix = "credential:"

// App holds all the application dependencies
type App struct {
	Config        *config.Config
	Logger        logging.Logger
	RedisClient   *redis.Client
	DB            *pgxpool.Pool
	Registry      *prometheus.Registry
	Metrics       *pipeline.Metrics
	Credentials   *credential.Store
	Idempotency   *idempotency.Guard
	Timestamps    *timestamp.Guard
	Authenticator *pipeline.Authenticator
	Forwarder     *proxy.Forwarder
}

// New creates a new application instance with all dependencies
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logging.GetGlobalLogger().WithFields(logging.String("component", "app")),
	}

	ok := false
	defer func() {
		if !ok {
			app.Cleanup()
		}
	}()

	if err := app.initializeRedis(); err != nil {
		return nil, err
	}
	app.initializeMetrics()

	if err := app.initializeCredentials(ctx); err != nil {
		return nil, err
	}
	if err := app.initializeIdempotency(); err != nil {
		return nil, err
	}
	app.initializeTimestamps()
	if err := app.initializeAuthenticator(); err != nil {
		return nil, err
	}

	if err := app.initializeForwarder(); err != nil {
		return nil, err
	}

	ok = true
	return app, nil
}

func (app *App) initializeMetrics() {
	app.Registry = prometheus.NewRegistry()
	app.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	app.Metrics = pipeline.NewMetrics(app.Registry)

	if app.RedisClient != nil {
		client := app.RedisClient
		app.Registry.MustRegister(
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name: "hmac_gateway_redis_pool_total_conns",
				Help: "Connections currently held by the Redis pool",
			}, func() float64 { return float64(client.PoolStats().TotalConns) }),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name: "hmac_gateway_redis_pool_idle_conns",
				Help: "Idle connections in the Redis pool",
			}, func() float64 { return float64(client.PoolStats().IdleConns) }),
		)
	}
}

func (app *App) initializeCredentials(ctx context.Context) error {
	sealer, err := crypto.NewSecretSealer(app.Config.SecretEncryptionKey)
	if err != nil {
		return fmt.Errorf("failed to initialize secret sealer: %w", err)
	}

	cacheType, err := cache.ParseType(app.Config.CredentialCacheType)
	if err != nil {
		return err
	}
	cacheConfig := cache.Config{
		Type:      cacheType,
		TTL:       app.Config.CredentialCacheTTL,
		KeyPrefix: credentialKeyPrefix,
	}
	if app.RedisClient != nil {
		cacheConfig.RedisClient = app.RedisClient.Cmdable()
	}
	credentialCache, err := cache.New(cacheConfig)
	if err != nil {
		return fmt.Errorf("failed to create credential cache: %w", err)
	}

	origin, err := app.newCredentialOrigin(ctx)
	if err != nil {
		return err
	}

	app.Credentials = credential.NewStore(credentialCache, origin, sealer, app.Config.CredentialCacheTTL, logging.GetGlobalLogger())
	app.Logger.Info("Credential store ready",
		logging.String("origin", app.Config.CredentialOrigin),
		logging.String("cache", string(cacheType)),
		logging.Duration("ttl", app.Config.CredentialCacheTTL),
	)
	return nil
}

func (app *App) newCredentialOrigin(ctx context.Context) (credential.Origin, error) {
	switch app.Config.CredentialOrigin {
	case "postgres", "postgresql":
		pool, err := pgxpool.New(ctx, app.Config.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create database pool: %w", err)
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := pool.Ping(pingCtx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to connect to credential database: %w", err)
		}
		app.DB = pool
		return credential.NewPostgresOrigin(pool), nil

	default:
		client := commonhttp.NewHTTPClient(commonhttp.WithTimeout(5 * time.Second))
		return credential.NewHTTPOrigin(app.Config.CredentialServiceURL, client), nil
	}
}

func (app *App) initializeIdempotency() error {
	guardConfig := idempotency.Config{
		PendingTTL:   app.Config.IdempotencyPendingTTL,
		CompletedTTL: app.Config.IdempotencyCompletedTTL,
	}

	var store cache.Cache
	switch app.Config.IdempotencyBackend {
	case "local":
		app.Logger.Warn("Idempotency: using the in-process store; duplicates are only detected per instance")
		store = cache.NewLocalCache(guardConfig.CompletedTTL, time.Minute)
	default:
		if app.RedisClient == nil {
			return fmt.Errorf("redis is required for the shared idempotency store")
		}
		store = cache.NewRedisCache(app.RedisClient.Cmdable(), "")
	}

	app.Idempotency = idempotency.NewGuard(store, guardConfig, logging.GetGlobalLogger())
	return nil
}

func (app *App) initializeTimestamps() {
	app.Timestamps = timestamp.NewGuard(timestamp.Config{
		Tolerance:         app.Config.TimestampTolerance(),
		WarningThreshold:  time.Duration(app.Config.ClockSkewWarningSeconds) * time.Second,
		CriticalThreshold: time.Duration(app.Config.ClockSkewCriticalSeconds) * time.Second,
	}, logging.GetGlobalLogger())
}

func (app *App) initializeAuthenticator() error {
	trusted, err := auth.ParseTrustedProxies(app.Config.TrustedProxies)
	if err != nil {
		return fmt.Errorf("failed to parse trusted proxies: %w", err)
	}

	pipelineConfig := pipeline.DefaultConfig()
	pipelineConfig.TrustedProxies = trusted
	pipelineConfig.MaxBodyBytes = app.Config.MaxBodyBytes
	pipelineConfig.AllowLegacyAlgorithms = app.Config.AllowLegacyAlgorithms
	pipelineConfig.IPAllowlistEnabled = app.Config.IPAllowlistEnabled
	if app.Config.SignatureBodyMode == "canonical" {
		pipelineConfig.BodyMode = signature.BodyModeCanonical
	}

	app.Authenticator = pipeline.NewAuthenticator(
		pipelineConfig,
		app.Timestamps,
		app.Idempotency,
		app.Credentials,
		app.Metrics,
		logging.GetGlobalLogger(),
	)

	app.Logger.Info("Authentication chain ready",
		logging.String("stages", strings.Join(app.Authenticator.Chain().StageNames(), " > ")),
	)
	if !app.Config.IPAllowlistEnabled {
		app.Logger.Warn("IP allow-lists are disabled")
	}
	if app.Config.AllowLegacyAlgorithms {
		app.Logger.Warn("Legacy signature algorithms are enabled", logging.String("algorithms", "HmacSHA1, HmacMD5"))
	}
	if len(trusted) == 0 {
		app.Logger.Info("No trusted proxies configured, client IP is the connection peer")
	}
	return nil
}

func (app *App) initializeForwarder() error {
	forwarder, err := proxy.NewForwarder(app.Config.UpstreamURL, app.Config.DownstreamTimeout, logging.GetGlobalLogger())
	if err != nil {
		return err
	}
	app.Forwarder = forwarder
	return nil
}

// Cleanup releases all resources
func (app *App) Cleanup() {
	if app.DB != nil {
		app.DB.Close()
	}
	if app.RedisClient != nil {
		if err := app.RedisClient.Close(); err != nil {
			app.Logger.Warn("Error closing Redis client", logging.Err(err))
		}
	}
}
