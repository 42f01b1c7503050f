package signature

import "errors"

var (
	// ErrMalformedAuthorization is returned when the Authorization header is
	// empty or lacks one of the mandatory fields.
	ErrMalformedAuthorization = errors.New("malformed authorization header")

	// ErrUnsupportedAlgorithm is returned for an algorithm name outside the
	// supported HMAC family.
	ErrUnsupportedAlgorithm = errors.New("unsupported signature algorithm")
)
