package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ragbox/core-rag/internal/healthcheck"
	"github.com/ragbox/core-rag/internal/metrics"
	"github.com/ragbox/core-rag/internal/middleware"
)

// RouterDeps bundles what New needs to wire the full HTTP surface.
type RouterDeps struct {
	Handler            *Handler
	FrontendURL        string
	Version            string
	Metrics            *metrics.Metrics
	MetricsReg         *prometheus.Registry
	HealthDeps         map[string]healthcheck.Pinger
	QueryRateLimiter   *middleware.RateLimiter
	GeneralRateLimiter *middleware.RateLimiter
}

// NewRouter builds the chi router for the RAG pipeline's HTTP surface.
// Grounded on the donor's internal/router/router.go: same
// global-middleware stack and the same "no write timeout on the streaming
// route" rule, trimmed down to this system's three endpoints.
func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Logging)
	r.Use(middleware.CORS(deps.FrontendURL))
	if deps.Metrics != nil {
		r.Use(metrics.HTTPMiddleware(deps.Metrics))
	}

	r.Get("/health", healthcheck.Handler(deps.Version, deps.HealthDeps))
	if deps.MetricsReg != nil {
		r.Handle("/metrics", metrics.Handler(deps.MetricsReg))
	}

	r.Group(func(r chi.Router) {
		if deps.GeneralRateLimiter != nil {
			r.Use(middleware.RateLimit(deps.GeneralRateLimiter))
		}

		queryTimeout := middleware.Timeout(60 * time.Second)

		if deps.QueryRateLimiter != nil {
			r.With(queryTimeout, middleware.RateLimit(deps.QueryRateLimiter)).Post("/v1/query", deps.Handler.Ask)
		} else {
			r.With(queryTimeout).Post("/v1/query", deps.Handler.Ask)
		}

		// Streaming endpoints intentionally get no http.TimeoutHandler — a
		// bounded write timeout would truncate a legitimate long-running
		// generation mid-stream.
		r.Post("/v1/chat/stream", deps.Handler.Stream)
		r.Get("/v1/chat/ws", deps.Handler.WebSocket)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, http.StatusNotFound, "route not found")
	})

	return r
}
