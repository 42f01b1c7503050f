package idempotency

import (
	"fmt"
	"regexp"

	"github.com/google/uuid"

	apperrors "hmac-gateway/internal/common/errors"
)

const (
	minKeyLength = 16
	maxKeyLength = 128
)

var keyPattern = regexp.MustCompile(`^[a-zA-Z0-9\-_]+$`)

// ValidateKey accepts a UUID, or 16 to 128 characters of letters, digits,
// '-' and '_'.
func ValidateKey(key string) error {
	if key == "" {
		return apperrors.ValidationError("idempotency key is empty")
	}
	if _, err := uuid.Parse(key); err == nil {
		return nil
	}
	if len(key) < minKeyLength || len(key) > maxKeyLength {
		return apperrors.ValidationError(fmt.Sprintf("idempotency key length %d outside %d-%d", len(key), minKeyLength, maxKeyLength))
	}
	if !keyPattern.MatchString(key) {
		return apperrors.ValidationError("idempotency key contains invalid characters")
	}
	return nil
}
