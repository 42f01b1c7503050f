package auth

import "context"

// Trusted headers set on forwarded requests. Client-supplied copies are removed.
const (
	HeaderClientID  = "X-Client-Id"
	HeaderAccessKey = "X-Access-Key"
	HeaderAPIKeyID  = "X-Api-Key-Id"
)

// Principal identifies the authenticated caller.
type Principal struct {
	AccessKey      string
	ClientID       string
	CredentialID   int64
	IdempotencyKey string
	ClientIP       string
}

type principalKey struct{}

// WithPrincipal stores p on ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the principal stored by the authentication middleware.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
