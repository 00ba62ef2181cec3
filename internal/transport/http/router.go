// Package transport is the thin HTTP layer over the vault services. It
// parses requests, delegates to the resolve and admin services, and
// translates their typed errors into the external status contract.
package transport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"agentvault/internal/admin"
	"agentvault/internal/resolve"
)

type Handler struct {
	resolver *resolve.Service
	admin    *admin.Service
	logger   *slog.Logger
}

func NewHandler(resolver *resolve.Service, adminSvc *admin.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{resolver: resolver, admin: adminSvc, logger: logger}
}

// NewRouter wires the agent surface, the admin surface and the
// operational endpoints.
func NewRouter(h *Handler, adminSecret string, registry *prometheus.Registry) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	r.Route("/vault", func(r chi.Router) {
		// Agent surface, authenticated per request by bearer token
		// inside the resolve service.
		r.Post("/resolve", h.handleResolve)
		r.Post("/resolve-batch", h.handleResolveBatch)

		// Human admin surface.
		r.Group(func(r chi.Router) {
			r.Use(RequireAdmin(adminSecret, h.logger))

			r.Get("/agents/{agentID}/items", h.handleListItems)
			r.Post("/agents/{agentID}/items", h.handleCreateItem)
			r.Patch("/items/{itemID}", h.handleUpdateItem)
			r.Delete("/items/{itemID}", h.handleDeleteItem)
			r.Post("/items/{itemID}/rotate", h.handleRotateItem)
			r.Post("/items/{itemID}/reveal", h.handleRevealItem)

			r.Get("/agents/{agentID}/tokens", h.handleListTokens)
			r.Post("/agents/{agentID}/tokens", h.handleCreateToken)
			r.Post("/tokens/{tokenID}/disable", h.handleDisableToken)

			r.Get("/audit", h.handleQueryAudit)
		})
	})

	return r
}
