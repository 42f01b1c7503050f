package pipeline

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"hmac-gateway/internal/auth"
	"hmac-gateway/internal/common/logging"
	"hmac-gateway/internal/signature"
)

// Config controls the authentication chain.
type Config struct {
	MaxBodyBytes          int64
	BodyMode              signature.BodyMode
	AllowLegacyAlgorithms bool
	IPAllowlistEnabled    bool
	// TrustedProxies are the peers allowed to supply the client address
	// through forwarding headers.
	TrustedProxies auth.TrustedProxies
	// CompleteTimeout bounds the idempotency completion write, which runs
	// after the client may have gone away.
	CompleteTimeout time.Duration
}

// DefaultConfig returns a 10 MiB body limit, digest body mode, no legacy
// algorithms, allow-list enforcement on and private-network proxies trusted.
func DefaultConfig() Config {
	trusted, _ := auth.ParseTrustedProxies(strings.Split(auth.DefaultTrustedProxies, ","))
	return Config{
		MaxBodyBytes:       10 << 20,
		BodyMode:           signature.BodyModeDigest,
		IPAllowlistEnabled: true,
		TrustedProxies:     trusted,
		CompleteTimeout:    5 * time.Second,
	}
}

// Authenticator is the HTTP face of the chain.
type Authenticator struct {
	config  Config
	chain   *Chain
	guard   IdempotencyGuard
	metrics *Metrics
	logger  logging.Logger
}

// NewAuthenticator builds the fixed stage order:
// buffer body, parse header, timestamp, idempotency key, claim, credential,
// allow-list, signature.
func NewAuthenticator(config Config, timestamps TimestampValidator, guard IdempotencyGuard, credentials CredentialResolver, metrics *Metrics, logger logging.Logger) *Authenticator {
	if config.CompleteTimeout <= 0 {
		config.CompleteTimeout = DefaultConfig().CompleteTimeout
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	logger = logger.WithFields(logging.String("component", "authenticator"))

	chain := NewChain(metrics,
		BufferBody(config.MaxBodyBytes),
		ParseAuthorization(config.AllowLegacyAlgorithms, logger),
		CheckTimestamp(timestamps),
		RequireIdempotencyKey(),
		ClaimIdempotencyKey(guard),
		ResolveCredential(credentials),
		CheckAllowedIP(config.IPAllowlistEnabled),
		VerifySignature(config.BodyMode),
	)

	return &Authenticator{
		config:  config,
		chain:   chain,
		guard:   guard,
		metrics: metrics,
		logger:  logger,
	}
}

// Chain returns the underlying stage chain.
func (a *Authenticator) Chain() *Chain {
	return a.chain
}

// Middleware authenticates each request before passing it to next. Rejected
// requests get a JSON error; accepted ones are forwarded with the buffered
// body and the principal headers. An admitted idempotency claim is completed
// exactly once with the final status code, including on rejection, panic and
// client cancellation.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientIP := auth.ClientIP(r, a.config.TrustedProxies)
		rc := NewRequestContext(r, clientIP, logging.RequestIDFromContext(r.Context()))

		result, stage, err := a.chain.Run(r.Context(), rc)

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		if result.Claimed() {
			defer a.complete(r.Context(), result, sw)
		}

		creds := result.Credentials()
		logger := a.logger.WithContext(r.Context()).WithFields(
			logging.String("access_key", creds.AccessKey),
			logging.String("client_ip", clientIP),
		)

		if err != nil {
			rej := auth.AsRejection(err)
			fields := []logging.Field{
				logging.String("stage", stage),
				logging.String("kind", string(rej.Kind)),
				logging.Int("status", rej.Kind.Status()),
				logging.String("method", r.Method),
				logging.String("path", r.URL.Path),
			}
			if rej.Kind.Status() >= http.StatusInternalServerError {
				logger.Error("request rejected", rej.AppError(), fields...)
			} else {
				logger.Warn("request rejected", append(fields, logging.Err(rej.AppError()))...)
			}
			auth.WriteRejection(sw, rej)
			return
		}

		cred := result.Credential()
		principal := auth.Principal{
			AccessKey:      creds.AccessKey,
			ClientID:       cred.ClientID,
			CredentialID:   cred.ID,
			IdempotencyKey: creds.IdempotencyKey,
			ClientIP:       clientIP,
		}
		logger.Debug("request authenticated",
			logging.String("algorithm", creds.Algorithm.String()),
			logging.Int64("skew_seconds", result.Skew().SkewSeconds),
			logging.Bool("clock_sync_recommended", result.Skew().SyncRecommended),
		)

		ctx := auth.WithPrincipal(r.Context(), principal)
		ctx = logging.ContextWithAccessKey(ctx, creds.AccessKey)
		forward := r.WithContext(ctx)
		forward.Body = io.NopCloser(bytes.NewReader(result.Body()))
		forward.ContentLength = int64(len(result.Body()))
		forward.Header = r.Header.Clone()
		setPrincipalHeaders(forward.Header, principal)

		next.ServeHTTP(sw, forward)
	})
}

// complete records the final status on the claim. It runs deferred, so a
// panic from the downstream handler is observed, recorded as 500 and re-raised.
func (a *Authenticator) complete(reqCtx context.Context, rc *RequestContext, sw *statusWriter) {
	recovered := recover()
	status := sw.status
	if recovered != nil && !sw.wroteHeader {
		status = http.StatusInternalServerError
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(reqCtx), a.config.CompleteTimeout)
	defer cancel()

	creds := rc.Credentials()
	if err := a.guard.Complete(ctx, creds.AccessKey, creds.IdempotencyKey, strconv.Itoa(status)); err != nil {
		a.metrics.completions.WithLabelValues("error").Inc()
		a.logger.WithContext(reqCtx).Error("failed to complete idempotency claim", err,
			logging.String("access_key", creds.AccessKey),
			logging.String("idempotency_key", creds.IdempotencyKey),
		)
	} else {
		a.metrics.completions.WithLabelValues("ok").Inc()
	}

	if recovered != nil {
		panic(recovered)
	}
}

func setPrincipalHeaders(h http.Header, p auth.Principal) {
	h.Del(auth.HeaderClientID)
	h.Del(auth.HeaderAccessKey)
	h.Del(auth.HeaderAPIKeyID)

	h.Set(auth.HeaderAccessKey, p.AccessKey)
	if p.ClientID != "" {
		h.Set(auth.HeaderClientID, p.ClientID)
	}
	if p.CredentialID != 0 {
		h.Set(auth.HeaderAPIKeyID, strconv.FormatInt(p.CredentialID, 10))
	}
}

// statusWriter records the status code written downstream.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.wroteHeader = true
	}
	return w.ResponseWriter.Write(b)
}

// Flush lets streaming responses through the wrapper.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
