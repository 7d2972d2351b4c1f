// Package httpapi assembles the HTTP surface: middleware chain, routes,
// health and metrics endpoints.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	analyticshandler "github.com/bulletdrop/analytics/internal/analytics/handler"
	platformmw "github.com/bulletdrop/analytics/internal/platform/middleware"
	ratelimitadmin "github.com/bulletdrop/analytics/internal/ratelimit/admin"
	ratelimitmw "github.com/bulletdrop/analytics/internal/ratelimit/middleware"
	"github.com/bulletdrop/analytics/pkg/platform/httputil"
	"github.com/bulletdrop/analytics/pkg/platform/middleware/metadata"
)

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// Deps carries everything the router needs. RateLimit may be nil when
// limiting is disabled entirely.
type Deps struct {
	Logger         *slog.Logger
	Verifier       platformmw.TokenVerifier
	Analytics      *analyticshandler.Handler
	RateLimitAdmin *ratelimitadmin.Handler
	RateLimit      *ratelimitmw.Middleware
	HealthChecks   map[string]HealthCheck
}

func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(platformmw.RequestID)
	r.Use(platformmw.Recovery(deps.Logger))
	r.Use(platformmw.Logger(deps.Logger))
	r.Use(metadata.ClientMetadata)
	r.Use(platformmw.OptionalAuth(deps.Verifier, deps.Logger))
	if deps.RateLimit != nil {
		r.Use(deps.RateLimit.Limit)
	}

	r.Get("/health", healthHandler(deps.HealthChecks))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/analytics", func(r chi.Router) {
		deps.Analytics.Routes(r)
		r.Route("/admin", func(r chi.Router) {
			r.Use(platformmw.RequireAuth(deps.Verifier, deps.Logger))
			r.Use(platformmw.RequireAdmin)
			deps.Analytics.AdminRoutes(r)
		})
	})

	r.Route("/api/rate-limits", func(r chi.Router) {
		r.Use(platformmw.RequireAuth(deps.Verifier, deps.Logger))
		r.Use(platformmw.RequireAdmin)
		deps.RateLimitAdmin.Routes(r)
	})

	return r
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		components := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				components[name] = "unhealthy"
				status = http.StatusServiceUnavailable
				continue
			}
			components[name] = "ok"
		}

		httputil.WriteJSON(w, status, map[string]any{
			"status":     http.StatusText(status),
			"components": components,
		})
	}
}
