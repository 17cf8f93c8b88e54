/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to
  handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the dashboard frontend

ROUTE GROUPS:
  /api/brands                      Brand list
  /api/cities                      City list
  /api/stores/*                    Store lookups, details, clearances
  /api/shopping-list/reconcile     Shopping-list matching
  /api/refresh                     Trigger an ingestion cycle
  /api/health                      Liveness probe
  /metrics                         Prometheus scrape endpoint

SECURITY NOTE:
  No authentication middleware. All endpoints are public; the engine
  serves read-mostly catalog data for a dashboard.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
// metricsHandler may be nil to disable the scrape endpoint.
func NewRouter(h *Handler, metricsHandler http.Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Get("/brands", h.ListBrands)
		r.Get("/cities", h.ListCities)

		r.Route("/stores", func(r chi.Router) {
			r.Get("/", h.ListStores)
			r.Get("/{id}", h.GetStore)
			r.Get("/{id}/clearances", h.ListClearances)
		})

		r.Post("/shopping-list/reconcile", h.ReconcileShoppingList)
		r.Post("/refresh", h.TriggerRefresh)
	})

	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	return r
}
