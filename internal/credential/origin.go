package credential

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no credential exists for an access key.
var ErrNotFound = errors.New("credential not found")

// Origin is the authoritative source of credentials.
type Origin interface {
	Fetch(ctx context.Context, accessKey string) (*Credential, error)
}
