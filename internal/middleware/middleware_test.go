package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hmac-gateway/internal/common/logging"
)

func TestRequestID_Generates(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logging.RequestIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	_, err := uuid.Parse(seen)
	require.NoError(t, err)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
}

func TestRequestID_ReusesWellFormed(t *testing.T) {
	tests := []struct {
		name    string
		inbound string
		reused  bool
	}{
		{"well formed", "req-123.abc_9", true},
		{"with spaces", "req 123", false},
		{"header injection", "abc\r\nX-Evil: 1", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = logging.RequestIDFromContext(r.Context())
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header[RequestIDHeader] = []string{tt.inbound}
			h.ServeHTTP(httptest.NewRecorder(), req)

			if tt.reused {
				assert.Equal(t, tt.inbound, seen)
			} else {
				assert.NotEqual(t, tt.inbound, seen)
				assert.NotEmpty(t, seen)
			}
		})
	}
}

func TestRecovery(t *testing.T) {
	h := Recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Internal server error", body["errorMessage"])
}

func TestRecovery_ReraisesAbort(t *testing.T) {
	h := Recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestLoggingMiddleware_PassesStatus(t *testing.T) {
	h := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/brew?cup=1", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}
