// Package httptransport is the thin HTTP layer. Handlers delegate to domain
// services so transport concerns stay isolated from business logic.
package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"secretsportal/internal/platform/middleware"
	"secretsportal/pkg/platform/httputil"
)

// RouterDeps carries everything the router mounts.
type RouterDeps struct {
	Secrets   *SecretsHandler
	Reports   *ReportsHandler
	Validator middleware.JWTValidator
	Grants    middleware.GrantResolver
	Logger    *slog.Logger
}

// NewRouter wires all endpoints. Health and metrics stay outside the auth
// gate; everything else requires a valid bearer token.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.ClientMetadata)
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.Logging(deps.Logger))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(deps.Validator, deps.Grants, deps.Logger))
		deps.Secrets.Register(r)
		deps.Reports.Register(r)
	})

	return r
}
