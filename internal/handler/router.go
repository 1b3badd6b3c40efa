package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/lumachat/luma-gateway/internal/auth"
	"github.com/lumachat/luma-gateway/internal/gateway"
	wshandler "github.com/lumachat/luma-gateway/internal/handler/ws"
	middlewarePkg "github.com/lumachat/luma-gateway/internal/middleware"
	"github.com/lumachat/luma-gateway/internal/provider"
	"github.com/lumachat/luma-gateway/pkg/utils"
)

// NewRouter wires HTTP routes to the gateway and health surface.
func NewRouter(gw *gateway.Gateway, verifier auth.Verifier, adapters []provider.Adapter) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", healthHandler(adapters))

	wsHandler := wshandler.New(gw, verifier)
	r.Route("/api", func(api chi.Router) {
		wsHandler.RegisterRoutes(api)
	})

	return r
}

type providerStatus struct {
	Name       string `json:"name"`
	Configured bool   `json:"configured"`
	Healthy    bool   `json:"healthy"`
}

// healthHandler reports per-provider status. Unconfigured adapters are
// listed but not probed.
func healthHandler(adapters []provider.Adapter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		statuses := make([]providerStatus, 0, len(adapters))
		for _, adapter := range adapters {
			status := providerStatus{
				Name:       adapter.Name(),
				Configured: adapter.Configured(),
			}
			if status.Configured {
				status.Healthy = adapter.HealthCheck(ctx) == nil
			}
			statuses = append(statuses, status)
		}

		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
			"status":    "ok",
			"providers": statuses,
		})
	}
}
