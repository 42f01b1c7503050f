package credential

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"golang.org/x/sync/singleflight"

	"hmac-gateway/internal/common/cache"
	apperrors "hmac-gateway/internal/common/errors"
	"hmac-gateway/internal/common/logging"
)

// SecretSealer encrypts secrets for storage in the cache.
type SecretSealer interface {
	Seal(plaintext, associatedData string) (string, error)
	Open(sealed, associatedData string) (string, error)
}

// cachedCredential is the cache representation; the secret is always sealed.
type cachedCredential struct {
	ID           int64    `json:"id"`
	ClientID     string   `json:"clientId"`
	AccessKey    string   `json:"accessKey"`
	SealedSecret string   `json:"sealedSecret"`
	Status       Status   `json:"status"`
	AllowedIPs   []string `json:"allowedIps,omitempty"`
}

// Store resolves credentials cache-aside. Concurrent misses for the same
// access key share a single origin fetch.
type Store struct {
	cache  cache.Cache
	origin Origin
	sealer SecretSealer
	ttl    time.Duration
	group  singleflight.Group
	logger logging.Logger

	fetchTimeout time.Duration
}

// defaultFetchTimeout bounds one origin lookup.
const defaultFetchTimeout = 5 * time.Second

// NewStore wires a cache, an origin and the sealer used for cached secrets.
func NewStore(c cache.Cache, origin Origin, sealer SecretSealer, ttl time.Duration, logger logging.Logger) *Store {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Store{
		cache:  c,
		origin: origin,
		sealer: sealer,
		ttl:    ttl,
		logger: logger,

		fetchTimeout: defaultFetchTimeout,
	}
}

// Resolve returns the credential for accessKey, or ErrNotFound. A cache that
// cannot answer is an unavailable error, never a miss.
func (s *Store) Resolve(ctx context.Context, accessKey string) (*Credential, error) {
	data, err := s.cache.Get(ctx, accessKey)
	switch {
	case err == nil:
		cred, decodeErr := s.decode(accessKey, data)
		if decodeErr == nil {
			return cred, nil
		}
		s.logger.Warn("discarding unreadable cached credential",
			logging.String("access_key", accessKey),
			logging.Err(decodeErr),
		)
		_ = s.cache.Delete(ctx, accessKey)
	case errors.Is(err, cache.ErrMiss):
	default:
		return nil, apperrors.UnavailableError("credential cache unavailable", err)
	}

	// The shared fetch is detached from any caller's cancellation; each caller
	// waits on its own context.
	ch := s.group.DoChan(accessKey, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.fetchTimeout)
		defer cancel()
		return s.load(fetchCtx, accessKey)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if res.Err != nil {
		return nil, res.Err
	}
	if res.Shared {
		s.logger.Debug("credential lookup coalesced", logging.String("access_key", accessKey))
	}

	cred := *res.Val.(*Credential)
	cred.AllowedIPs = append([]string(nil), cred.AllowedIPs...)
	return &cred, nil
}

func (s *Store) load(ctx context.Context, accessKey string) (*Credential, error) {
	cred, err := s.origin.Fetch(ctx, accessKey)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Error("credential origin lookup failed", err, logging.String("access_key", accessKey))
		}
		return nil, err
	}

	data, err := s.encode(cred)
	if err != nil {
		return nil, err
	}
	// The origin answer is authoritative; a failed cache write only costs a
	// refetch on the next request.
	if err := s.cache.Set(ctx, accessKey, data, s.ttl); err != nil {
		s.logger.Warn("failed to cache credential",
			logging.String("access_key", accessKey),
			logging.Err(err),
		)
	}

	s.logger.Debug("credential loaded from origin",
		logging.String("access_key", accessKey),
		logging.String("client_id", cred.ClientID),
	)
	return cred, nil
}

func (s *Store) encode(cred *Credential) ([]byte, error) {
	sealed, err := s.sealer.Seal(cred.Secret, cred.AccessKey)
	if err != nil {
		return nil, apperrors.InternalError("failed to seal credential secret", err)
	}
	data, err := json.Marshal(cachedCredential{
		ID:           cred.ID,
		ClientID:     cred.ClientID,
		AccessKey:    cred.AccessKey,
		SealedSecret: sealed,
		Status:       cred.Status,
		AllowedIPs:   cred.AllowedIPs,
	})
	if err != nil {
		return nil, apperrors.InternalError("failed to encode credential", err)
	}
	return data, nil
}

func (s *Store) decode(accessKey string, data []byte) (*Credential, error) {
	var cached cachedCredential
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, err
	}
	if cached.AccessKey != accessKey {
		return nil, apperrors.ValidationError("cached credential belongs to another access key")
	}
	secret, err := s.sealer.Open(cached.SealedSecret, accessKey)
	if err != nil {
		return nil, err
	}
	return &Credential{
		ID:         cached.ID,
		ClientID:   cached.ClientID,
		AccessKey:  cached.AccessKey,
		Secret:     secret,
		Status:     cached.Status,
		AllowedIPs: cached.AllowedIPs,
	}, nil
}
