package signature

import (
	"crypto/hmac"
	"encoding/hex"
	"strings"
)

// BodyMode selects what goes into the BODY_FIELD line.
type BodyMode int

const (
	// BodyModeDigest signs the hex SHA-256 of the canonical body.
	BodyModeDigest BodyMode = iota
	// BodyModeCanonical signs the canonical body itself.
	BodyModeCanonical
)

// SigningContext holds the six fields of the signing string. Signer and
// verifier build it the same way so both sides produce identical bytes.
type SigningContext struct {
	Method         string
	Path           string
	CanonicalQuery string
	IdempotencyKey string
	BodyField      string
	SignedDate     string
}

// NewSigningContext canonicalizes a request's raw parts. rawQuery is the query
// as it appears on the wire; it is percent-decoded before canonicalization.
func NewSigningContext(method, path, rawQuery, idempotencyKey string, body []byte, signedDate string, mode BodyMode) SigningContext {
	var bodyField string
	switch {
	case len(body) == 0:
	case mode == BodyModeCanonical:
		bodyField = string(CanonicalizeBody(body))
	default:
		bodyField = BodyDigest(body)
	}

	return SigningContext{
		Method:         method,
		Path:           path,
		CanonicalQuery: CanonicalizeQuery(DecodeQuery(rawQuery)),
		IdempotencyKey: idempotencyKey,
		BodyField:      bodyField,
		SignedDate:     signedDate,
	}
}

// String returns the newline-joined signing string.
func (c SigningContext) String() string {
	return strings.Join([]string{
		c.Method,
		c.Path,
		c.CanonicalQuery,
		c.IdempotencyKey,
		c.BodyField,
		c.SignedDate,
	}, "\n")
}

// Sign returns the lowercase hex HMAC of the signing string.
func Sign(alg Algorithm, secret string, sc SigningContext) (string, error) {
	newHash, err := alg.hashFunc()
	if err != nil {
		return "", err
	}
	mac := hmac.New(newHash, []byte(secret))
	mac.Write([]byte(sc.String()))
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify recomputes the signature and compares it with provided in constant
// time. Any failure along the way reports false.
func Verify(alg Algorithm, secret string, sc SigningContext, provided string) bool {
	if secret == "" || provided == "" {
		return false
	}
	expected, err := Sign(alg, secret, sc)
	if err != nil {
		return false
	}
	return ConstantTimeEquals(expected, provided)
}
