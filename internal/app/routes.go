package app

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hmac-gateway/internal/common/logging"
	"hmac-gateway/internal/middleware"
)

// Router builds the HTTP routes. Everything under the protected prefix is
// authenticated and forwarded upstream.
func (app *App) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(middleware.RequestID, middleware.Recovery, middleware.LoggingMiddleware)

	// Health check (no auth required)
	router.HandleFunc("/health", app.handleHealth).Methods(http.MethodGet)

	if app.Config.MetricsEnabled {
		router.Handle("/metrics", promhttp.HandlerFor(app.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	protected := router.PathPrefix(app.Config.ProtectedPathPrefix).Subrouter()
	protected.Use(app.Authenticator.Middleware)
	protected.PathPrefix("").Handler(app.Forwarder)

	return router
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (app *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok", Checks: map[string]string{}}
	status := http.StatusOK

	if app.RedisClient != nil {
		if err := app.RedisClient.Health(ctx); err != nil {
			resp.Checks["redis"] = "unavailable"
			status = http.StatusServiceUnavailable
			logging.WithContext(r.Context()).Warn("health check failed", logging.String("dependency", "redis"), logging.Err(err))
		} else {
			resp.Checks["redis"] = "ok"
		}
	}
	if app.DB != nil {
		if err := app.DB.Ping(ctx); err != nil {
			resp.Checks["database"] = "unavailable"
			status = http.StatusServiceUnavailable
			logging.WithContext(r.Context()).Warn("health check failed", logging.String("dependency", "database"), logging.Err(err))
		} else {
			resp.Checks["database"] = "ok"
		}
	}
	if status != http.StatusOK {
		resp.Status = "degraded"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
