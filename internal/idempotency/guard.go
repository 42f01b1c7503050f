// Package idempotency enforces one-time use of a client's idempotency key.
//
// A request claims (accessKey, idempotencyKey) with an atomic set-if-absent
// of a PENDING record. The claim is later overwritten with a COMPLETED record
// carrying a short response summary. PENDING records expire on their own so a
// crashed gateway never wedges a key forever.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"hmac-gateway/internal/common/cache"
	apperrors "hmac-gateway/internal/common/errors"
	"hmac-gateway/internal/common/logging"
)

// KeyPrefix namespaces idempotency records in the shared store.
const KeyPrefix = "idempotency:"

// Outcome is the result of a claim.
type Outcome int

const (
	// Admitted means this request owns the key and must later call Complete.
	Admitted Outcome = iota
	// Duplicate means the key was already claimed.
	Duplicate
)

func (o Outcome) String() string {
	if o == Admitted {
		return "admitted"
	}
	return "duplicate"
}

// Status is the lifecycle state of a record.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
)

// Record is the JSON document stored under Key(accessKey, idempotencyKey).
type Record struct {
	Status         Status `json:"status"`
	AccessKey      string `json:"accessKey"`
	IdempotencyKey string `json:"idempotencyKey"`
	Response       string `json:"response,omitempty"`
	// Timestamp is the write time in Unix milliseconds.
	Timestamp int64 `json:"timestamp"`
}

// Config sets record lifetimes.
type Config struct {
	PendingTTL   time.Duration
	CompletedTTL time.Duration
}

// DefaultConfig returns 10 minutes for PENDING and 24 hours for COMPLETED.
func DefaultConfig() Config {
	return Config{
		PendingTTL:   10 * time.Minute,
		CompletedTTL: 24 * time.Hour,
	}
}

// Guard claims and completes idempotency keys against a shared cache.
type Guard struct {
	store  cache.Cache
	config Config
	now    func() time.Time
	logger logging.Logger
}

// NewGuard creates a guard. The store's SetNX must be atomic across every
// gateway instance that shares keys; use the Redis backend for more than one node.
func NewGuard(store cache.Cache, config Config, logger logging.Logger) *Guard {
	defaults := DefaultConfig()
	if config.PendingTTL <= 0 {
		config.PendingTTL = defaults.PendingTTL
	}
	if config.CompletedTTL <= 0 {
		config.CompletedTTL = defaults.CompletedTTL
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Guard{store: store, config: config, now: time.Now, logger: logger}
}

// Key builds the store key for a claim.
func Key(accessKey, idempotencyKey string) string {
	return KeyPrefix + accessKey + ":" + idempotencyKey
}

// Claim atomically records a PENDING claim. A store failure is returned as an
// unavailable error and must be treated as a rejection.
func (g *Guard) Claim(ctx context.Context, accessKey, idempotencyKey string) (Outcome, error) {
	data, err := g.encode(StatusPending, accessKey, idempotencyKey, "")
	if err != nil {
		return Duplicate, err
	}

	ok, err := g.store.SetNX(ctx, Key(accessKey, idempotencyKey), data, g.config.PendingTTL)
	if err != nil {
		g.logger.Error("idempotency claim failed", err,
			logging.String("access_key", accessKey),
			logging.String("idempotency_key", idempotencyKey),
		)
		return Duplicate, apperrors.UnavailableError("idempotency store unavailable", err)
	}

	if !ok {
		fields := []logging.Field{
			logging.String("access_key", accessKey),
			logging.String("idempotency_key", idempotencyKey),
		}
		if rec, err := g.Lookup(ctx, accessKey, idempotencyKey); err == nil && rec != nil {
			fields = append(fields,
				logging.String("existing_status", string(rec.Status)),
				logging.String("existing_response", rec.Response),
			)
		}
		g.logger.Info("duplicate request detected", fields...)
		return Duplicate, nil
	}

	g.logger.Debug("idempotency key claimed",
		logging.String("access_key", accessKey),
		logging.String("idempotency_key", idempotencyKey),
	)
	return Admitted, nil
}

// Complete overwrites the claim with a COMPLETED record holding response.
func (g *Guard) Complete(ctx context.Context, accessKey, idempotencyKey, response string) error {
	data, err := g.encode(StatusCompleted, accessKey, idempotencyKey, response)
	if err != nil {
		return err
	}

	if err := g.store.Set(ctx, Key(accessKey, idempotencyKey), data, g.config.CompletedTTL); err != nil {
		g.logger.Error("failed to mark idempotency key completed", err,
			logging.String("access_key", accessKey),
			logging.String("idempotency_key", idempotencyKey),
		)
		return apperrors.UnavailableError("idempotency store unavailable", err)
	}

	g.logger.Debug("idempotency key completed",
		logging.String("access_key", accessKey),
		logging.String("idempotency_key", idempotencyKey),
		logging.String("response", response),
	)
	return nil
}

// Lookup returns the current record, or nil when the key is unknown or expired.
func (g *Guard) Lookup(ctx context.Context, accessKey, idempotencyKey string) (*Record, error) {
	data, err := g.store.Get(ctx, Key(accessKey, idempotencyKey))
	if errors.Is(err, cache.ErrMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.UnavailableError("idempotency store unavailable", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, apperrors.InternalError("corrupt idempotency record", err)
	}
	return &rec, nil
}

func (g *Guard) encode(status Status, accessKey, idempotencyKey, response string) ([]byte, error) {
	data, err := json.Marshal(Record{
		Status:         status,
		AccessKey:      accessKey,
		IdempotencyKey: idempotencyKey,
		Response:       response,
		Timestamp:      g.now().UnixMilli(),
	})
	if err != nil {
		return nil, fmt.Errorf("encode idempotency record: %w", err)
	}
	return data, nil
}
