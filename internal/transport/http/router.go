package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"medtrace/internal/platform/middleware"
)

// HealthChecker reports readiness of one backing dependency.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// HealthFunc adapts a plain function to HealthChecker.
type HealthFunc func(ctx context.Context) error

func (f HealthFunc) Health(ctx context.Context) error { return f(ctx) }

// Deps collects everything the router serves. Health checkers may be nil
// when the corresponding backend is not configured.
type Deps struct {
	Logger    *slog.Logger
	Validator middleware.TokenValidator

	Batch    *BatchHandler
	Custody  *CustodyHandler
	Contract *ContractHandler
	Order    *OrderHandler
	Tracking *TrackingHandler

	Health []HealthChecker
}

// NewRouter assembles the middleware stack and mounts all handlers. Every
// business route sits behind bearer-token authentication; health and
// metrics do not.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.ContentTypeJSON)

	r.Get("/healthz", healthHandler(deps.Health))
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(deps.Validator, deps.Logger))
		deps.Batch.Register(r)
		deps.Custody.Register(r)
		deps.Contract.Register(r)
		deps.Order.Register(r)
		deps.Tracking.Register(r)
	})
	return r
}

func healthHandler(checkers []HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		for _, c := range checkers {
			if c == nil {
				continue
			}
			if err := c.Health(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
