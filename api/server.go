/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/sales/*            Sale lifecycle and reads
  /api/installments/*     Payment confirmation
  /api/service-types/*    Catalog management
  /ws                     Websocket change feed
  /health                 Liveness probe

SECURITY NOTE:
  Actor identity is taken from X-Actor-Id / X-Actor-Role headers; the
  authentication layer that sets them sits upstream of this service.

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

// NewRouter creates a new router with all routes configured. The change feed
// handler is optional; pass nil to disable /ws.
func NewRouter(h *Handler, changeFeed http.Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", headerActorID, headerActorRole},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Sale routes
		r.Route("/sales", func(r chi.Router) {
			r.Get("/", h.ListSales)
			r.Post("/", h.CreateSale)
			r.Get("/{id}", h.GetSale)
			r.Delete("/{id}", h.PurgeSale)
			r.Get("/{id}/history", h.GetHistory)
			r.Post("/{id}/operational", h.OperationalTransition)
			r.Post("/{id}/financial", h.FinancialTransition)
			r.Post("/{id}/costs", h.RecordCost)
			r.Post("/{id}/installments/recreate", h.RecreateInstallments)
		})

		// Installment routes
		r.Route("/installments", func(r chi.Router) {
			r.Post("/{id}/payment", h.ConfirmPayment)
		})

		// Catalog routes
		r.Route("/service-types", func(r chi.Router) {
			r.Put("/{id}", h.CreateServiceType)
		})
	})

	if changeFeed != nil {
		r.Get("/ws", changeFeed.ServeHTTP)
	}
	r.Get("/health", h.Health)

	return r
}
