// Package proxy forwards authenticated requests to the upstream service.
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	apperrors "hmac-gateway/internal/common/errors"
	commonhttp "hmac-gateway/internal/common/http"
	"hmac-gateway/internal/common/logging"
)

// Forwarder relays requests to a single upstream base URL.
type Forwarder struct {
	target *url.URL
	proxy  *httputil.ReverseProxy
	logger logging.Logger
}

// NewForwarder creates a forwarder for upstream. timeout bounds the wait for
// the upstream response headers.
func NewForwarder(upstream string, timeout time.Duration, logger logging.Logger) (*Forwarder, error) {
	target, err := url.Parse(upstream)
	if err != nil {
		return nil, apperrors.ConfigError("invalid upstream URL: " + err.Error())
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, apperrors.ConfigError("upstream URL must be absolute: " + upstream)
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	f := &Forwarder{
		target: target,
		logger: logger.WithFields(logging.String("component", "forwarder")),
	}

	f.proxy = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
		},
		Transport:    &timeoutTransport{next: commonhttp.NewTransport(), timeout: timeout},
		ErrorHandler: f.handleError,
	}
	return f, nil
}

// Target returns the upstream base URL.
func (f *Forwarder) Target() *url.URL {
	return f.target
}

func (f *Forwarder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.proxy.ServeHTTP(w, r)
}

func (f *Forwarder) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusBadGateway
	message := "Upstream service unavailable"
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		status = http.StatusGatewayTimeout
		message = "Upstream service timed out"
	}

	f.logger.WithContext(r.Context()).Error("upstream request failed", err,
		logging.String("method", r.Method),
		logging.String("path", r.URL.Path),
		logging.Int("status", status),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"errorMessage": message})
}

// timeoutTransport bounds each round trip without cancelling the inbound
// request's context.
type timeoutTransport struct {
	next    http.RoundTripper
	timeout time.Duration
}

func (t *timeoutTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.timeout <= 0 {
		return t.next.RoundTrip(req)
	}
	ctx, cancel := context.WithTimeout(req.Context(), t.timeout)
	resp, err := t.next.RoundTrip(req.WithContext(ctx))
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	defer c.cancel()
	return c.ReadCloser.Close()
}
