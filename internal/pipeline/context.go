package pipeline

import (
	"io"
	"net/http"

	"hmac-gateway/internal/credential"
	"hmac-gateway/internal/signature"
	"hmac-gateway/internal/timestamp"
)

// RequestContext is the per-request state threaded through the stages. It is
// never mutated; each With* method returns a modified copy.
type RequestContext struct {
	method        string
	path          string
	rawQuery      string
	authorization string
	clientIP      string
	requestID     string

	bodySource io.Reader
	body       []byte
	buffered   bool

	credentials signature.Credentials
	skew        timestamp.Result
	credential  *credential.Credential
	claimed     bool
}

// NewRequestContext captures the parts of r the stages need. The body is read
// later by the buffer stage.
func NewRequestContext(r *http.Request, clientIP, requestID string) *RequestContext {
	return &RequestContext{
		method:        r.Method,
		path:          r.URL.Path,
		rawQuery:      r.URL.RawQuery,
		authorization: r.Header.Get(signature.HeaderName),
		clientIP:      clientIP,
		requestID:     requestID,
		bodySource:    r.Body,
	}
}

func (c *RequestContext) Method() string        { return c.method }
func (c *RequestContext) Path() string          { return c.path }
func (c *RequestContext) RawQuery() string      { return c.rawQuery }
func (c *RequestContext) Authorization() string { return c.authorization }
func (c *RequestContext) ClientIP() string      { return c.clientIP }
func (c *RequestContext) RequestID() string     { return c.requestID }

// Body returns the buffered body. Callers must not modify it.
func (c *RequestContext) Body() []byte { return c.body }

// Buffered reports whether the body has been read.
func (c *RequestContext) Buffered() bool { return c.buffered }

func (c *RequestContext) Credentials() signature.Credentials { return c.credentials }
func (c *RequestContext) Skew() timestamp.Result             { return c.skew }
func (c *RequestContext) Credential() *credential.Credential { return c.credential }

// Claimed reports whether this request holds an idempotency claim that must
// be completed.
func (c *RequestContext) Claimed() bool { return c.claimed }

func (c *RequestContext) clone() *RequestContext {
	cp := *c
	return &cp
}

// WithBody returns a copy holding the buffered body.
func (c *RequestContext) WithBody(body []byte) *RequestContext {
	cp := c.clone()
	cp.body = body
	cp.bodySource = nil
	cp.buffered = true
	return cp
}

// WithCredentials returns a copy holding the parsed Authorization header.
func (c *RequestContext) WithCredentials(creds signature.Credentials) *RequestContext {
	cp := c.clone()
	cp.credentials = creds
	return cp
}

// WithSkew returns a copy holding the timestamp check result.
func (c *RequestContext) WithSkew(result timestamp.Result) *RequestContext {
	cp := c.clone()
	cp.skew = result
	return cp
}

// WithClaim returns a copy marked as holding an idempotency claim.
func (c *RequestContext) WithClaim() *RequestContext {
	cp := c.clone()
	cp.claimed = true
	return cp
}

// WithCredential returns a copy holding the resolved credential.
func (c *RequestContext) WithCredential(cred *credential.Credential) *RequestContext {
	cp := c.clone()
	cp.credential = cred
	return cp
}
