package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"

	"hmac-gateway/internal/auth"
	"hmac-gateway/internal/common/logging"
	"hmac-gateway/internal/credential"
	"hmac-gateway/internal/idempotency"
	"hmac-gateway/internal/signature"
	"hmac-gateway/internal/timestamp"
)

// Stage names, also used as metric labels.
const (
	StageBufferBody         = "buffer_body"
	StageParseAuthorization = "parse_authorization"
	StageTimestamp          = "timestamp"
	StageIdempotencyKey     = "idempotency_key"
	StageClaim              = "idempotency_claim"
	StageResolveCredential  = "resolve_credential"
	StageAllowedIP          = "allowed_ip"
	StageVerifySignature    = "verify_signature"
)

// TimestampValidator checks a signed-date against the local clock.
type TimestampValidator interface {
	Validate(signedDate string) (timestamp.Result, error)
}

// IdempotencyGuard claims and completes idempotency keys.
type IdempotencyGuard interface {
	Claim(ctx context.Context, accessKey, idempotencyKey string) (idempotency.Outcome, error)
	Complete(ctx context.Context, accessKey, idempotencyKey, response string) error
}

// CredentialResolver maps an access key to its credential.
type CredentialResolver interface {
	Resolve(ctx context.Context, accessKey string) (*credential.Credential, error)
}

// BufferBody reads the request body once. Later stages and the forwarded
// request use the buffered copy.
func BufferBody(maxBytes int64) Stage {
	return NewStage(StageBufferBody, func(ctx context.Context, rc *RequestContext) (*RequestContext, error) {
		if rc.bodySource == nil {
			return rc.WithBody(nil), nil
		}

		reader := rc.bodySource
		if maxBytes > 0 {
			reader = io.LimitReader(reader, maxBytes+1)
		}
		body, err := io.ReadAll(reader)
		if err != nil {
			return nil, auth.Reject(auth.KindInternal, fmt.Errorf("read request body: %w", err))
		}
		if maxBytes > 0 && int64(len(body)) > maxBytes {
			return nil, auth.Reject(auth.KindPayloadTooLarge, fmt.Errorf("body exceeds %d bytes", maxBytes))
		}
		return rc.WithBody(body), nil
	})
}

// ParseAuthorization decodes the Authorization header. Legacy algorithms are
// refused unless allowLegacy is set.
func ParseAuthorization(allowLegacy bool, logger logging.Logger) Stage {
	return NewStage(StageParseAuthorization, func(ctx context.Context, rc *RequestContext) (*RequestContext, error) {
		creds, err := signature.ParseAuthorization(rc.Authorization())
		if errors.Is(err, signature.ErrUnsupportedAlgorithm) {
			return nil, auth.Reject(auth.KindUnsupportedAlgorithm, err)
		}
		if err != nil {
			return nil, auth.Reject(auth.KindMalformedCredentials, err)
		}

		if creds.Algorithm.IsLegacy() {
			if !allowLegacy {
				return nil, auth.Reject(auth.KindUnsupportedAlgorithm,
					fmt.Errorf("%w: legacy algorithm %s is disabled", signature.ErrUnsupportedAlgorithm, creds.Algorithm))
			}
			logger.Warn("legacy signature algorithm in use",
				logging.String("access_key", creds.AccessKey),
				logging.String("algorithm", creds.Algorithm.String()),
			)
		}
		return rc.WithCredentials(creds), nil
	})
}

// CheckTimestamp rejects requests whose signed-date is unparsable or outside
// the tolerance window.
func CheckTimestamp(validator TimestampValidator) Stage {
	return NewStage(StageTimestamp, func(ctx context.Context, rc *RequestContext) (*RequestContext, error) {
		result, err := validator.Validate(rc.Credentials().SignedDate)
		switch {
		case errors.Is(err, timestamp.ErrClockSkew):
			return nil, auth.Reject(auth.KindClockSkew, err)
		case err != nil:
			return nil, auth.Reject(auth.KindInvalidTimestamp, err)
		}
		return rc.WithSkew(result), nil
	})
}

// RequireIdempotencyKey rejects a missing or badly formed idempotency key.
func RequireIdempotencyKey() Stage {
	return NewStage(StageIdempotencyKey, func(ctx context.Context, rc *RequestContext) (*RequestContext, error) {
		if err := idempotency.ValidateKey(rc.Credentials().IdempotencyKey); err != nil {
			return nil, auth.Reject(auth.KindMissingIdempotencyKey, err)
		}
		return rc, nil
	})
}

// ClaimIdempotencyKey takes the one-time claim on (access key, idempotency key).
// The returned context is marked claimed so the caller completes it on every
// exit path.
func ClaimIdempotencyKey(guard IdempotencyGuard) Stage {
	return NewStage(StageClaim, func(ctx context.Context, rc *RequestContext) (*RequestContext, error) {
		creds := rc.Credentials()
		outcome, err := guard.Claim(ctx, creds.AccessKey, creds.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if outcome != idempotency.Admitted {
			return nil, auth.Reject(auth.KindDuplicateRequest,
				fmt.Errorf("idempotency key %s already used", creds.IdempotencyKey))
		}
		return rc.WithClaim(), nil
	})
}

// ResolveCredential loads the credential and requires it to be ACTIVE.
func ResolveCredential(resolver CredentialResolver) Stage {
	return NewStage(StageResolveCredential, func(ctx context.Context, rc *RequestContext) (*RequestContext, error) {
		accessKey := rc.Credentials().AccessKey
		cred, err := resolver.Resolve(ctx, accessKey)
		if errors.Is(err, credential.ErrNotFound) {
			return nil, auth.Reject(auth.KindCredentialNotFound, err)
		}
		if err != nil {
			return nil, err
		}
		if cred == nil {
			return nil, auth.Reject(auth.KindCredentialNotFound, credential.ErrNotFound)
		}
		if !cred.IsActive() {
			return nil, auth.Reject(auth.KindCredentialInactive,
				fmt.Errorf("access key %s has status %s", accessKey, cred.Status))
		}
		return rc.WithCredential(cred), nil
	})
}

// CheckAllowedIP enforces the credential's IP allow-list. With enabled false
// every address passes.
func CheckAllowedIP(enabled bool) Stage {
	return NewStage(StageAllowedIP, func(ctx context.Context, rc *RequestContext) (*RequestContext, error) {
		if !enabled {
			return rc, nil
		}
		if !rc.Credential().AllowsIP(rc.ClientIP()) {
			return nil, auth.Reject(auth.KindIPNotAllowed,
				fmt.Errorf("client ip %s not in allow-list", credential.NormalizeIP(rc.ClientIP())))
		}
		return rc, nil
	})
}

// VerifySignature recomputes the HMAC over the buffered request and compares
// it with the presented signature.
func VerifySignature(mode signature.BodyMode) Stage {
	return NewStage(StageVerifySignature, func(ctx context.Context, rc *RequestContext) (*RequestContext, error) {
		creds := rc.Credentials()
		sc := signature.NewSigningContext(
			rc.Method(),
			rc.Path(),
			rc.RawQuery(),
			creds.IdempotencyKey,
			rc.Body(),
			creds.SignedDate,
			mode,
		)
		if !signature.Verify(creds.Algorithm, rc.Credential().Secret, sc, creds.Signature) {
			return nil, auth.Reject(auth.KindSignatureMismatch, errors.New("signature does not match"))
		}
		return rc, nil
	})
}
