// Package httptransport assembles the HTTP router. It should stay a thin
// wiring layer: handlers delegate to domain services and transport concerns
// remain isolated here.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rxcred/internal/platform/health"
	"rxcred/pkg/platform/middleware"
	"rxcred/pkg/platform/middleware/requesttime"
)

// Registrar mounts a handler's routes on a chi router.
type Registrar interface {
	Register(r chi.Router)
}

// NewRouter wires all public endpoints with the middleware stack. Domain
// handlers mount under /v1; health and metrics stay unversioned so probes
// and scrapers survive API version bumps.
func NewRouter(logger *slog.Logger, healthHandler *health.Handler, handlers ...Registrar) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(middleware.ContentTypeJSON)
	r.Use(requesttime.Middleware)

	healthHandler.Register(r)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		for _, h := range handlers {
			h.Register(v1)
		}
	})

	return r
}
