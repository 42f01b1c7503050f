package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"

	"hmac-gateway/internal/common/logging"
)

// Recovery turns a handler panic into a 500 response. http.ErrAbortHandler is
// re-raised so the server aborts the connection as intended.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			logging.WithContext(r.Context()).Error("panic while handling request", fmt.Errorf("%v", rec),
				logging.String("method", r.Method),
				logging.String("path", r.URL.Path),
				logging.String("stack", string(debug.Stack())),
			)

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(map[string]string{"errorMessage": "Internal server error"})
		}()

		next.ServeHTTP(w, r)
	})
}
