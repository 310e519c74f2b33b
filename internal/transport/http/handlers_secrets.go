package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"secretsportal/internal/audit"
	"secretsportal/internal/secrets/models"
	"secretsportal/internal/secrets/service"
	"secretsportal/pkg/platform/httputil"
	"secretsportal/pkg/requestcontext"
)

// SecretsService defines the secret operations the transport layer needs.
type SecretsService interface {
	List(ctx context.Context, app string, env models.Environment, pageSize int, token string) ([]service.Secret, string, error)
	Get(ctx context.Context, id string) (service.Secret, error)
	Create(ctx context.Context, req service.CreateRequest) (service.Secret, error)
	UpdateValue(ctx context.Context, id, value string) (service.Secret, error)
	UpdateRotationPeriod(ctx context.Context, id string, days int) (service.Secret, error)
	Search(ctx context.Context, query string) ([]service.Secret, error)
	Applications(ctx context.Context) ([]string, error)
	Environments(ctx context.Context) ([]string, error)
	AuditLog(ctx context.Context, id string, pageSize int, token string) ([]audit.Entry, string, error)
}

// SecretsHandler wires secret endpoints to the secrets service.
type SecretsHandler struct {
	service SecretsService
	logger  *slog.Logger
}

func NewSecretsHandler(service SecretsService, logger *slog.Logger) *SecretsHandler {
	return &SecretsHandler{
		service: service,
		logger:  logger,
	}
}

// Register mounts secret endpoints on the router.
func (h *SecretsHandler) Register(r chi.Router) {
	r.Route("/secrets", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Post("/", h.HandleCreate)
		r.Get("/search", h.HandleSearch)
		r.Get("/applications", h.HandleApplications)
		r.Get("/environments", h.HandleEnvironments)
		r.Get("/{id}", h.HandleGet)
		r.Put("/{id}/value", h.HandleUpdateValue)
		r.Put("/{id}/rotation", h.HandleUpdateRotation)
		r.Get("/{id}/audit", h.HandleAuditLog)
	})
}

type listResponse struct {
	Secrets       []service.Secret `json:"secrets"`
	NextPageToken string           `json:"nextPageToken,omitempty"`
}

// HandleList handles GET /secrets requests.
func (h *SecretsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	pageSize, _ := strconv.Atoi(q.Get("pageSize"))
	secrets, next, err := h.service.List(ctx, q.Get("application"), models.Environment(q.Get("environment")), pageSize, q.Get("pageToken"))
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list secrets",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	if secrets == nil {
		secrets = []service.Secret{}
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{Secrets: secrets, NextPageToken: next})
}

// HandleGet handles GET /secrets/{id} requests.
func (h *SecretsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	secret, err := h.service.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, secret)
}

// HandleCreate handles POST /secrets requests.
func (h *SecretsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	req, ok := httputil.Decode[service.CreateRequest](w, r)
	if !ok {
		return
	}
	secret, err := h.service.Create(ctx, req)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to create secret",
			"request_id", requestcontext.RequestID(ctx),
			"application", req.Application,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "secret created",
		"request_id", requestcontext.RequestID(ctx),
		"secret_id", secret.ID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusCreated, secret)
}

type updateValueRequest struct {
	Value string `json:"value"`
}

// HandleUpdateValue handles PUT /secrets/{id}/value requests.
func (h *SecretsHandler) HandleUpdateValue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[updateValueRequest](w, r)
	if !ok {
		return
	}
	secret, err := h.service.UpdateValue(ctx, chi.URLParam(r, "id"), req.Value)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, secret)
}

type updateRotationRequest struct {
	RotationPeriodDays int `json:"rotationPeriod"`
}

// HandleUpdateRotation handles PUT /secrets/{id}/rotation requests.
func (h *SecretsHandler) HandleUpdateRotation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[updateRotationRequest](w, r)
	if !ok {
		return
	}
	secret, err := h.service.UpdateRotationPeriod(ctx, chi.URLParam(r, "id"), req.RotationPeriodDays)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, secret)
}

// HandleSearch handles GET /secrets/search requests.
func (h *SecretsHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	secrets, err := h.service.Search(ctx, r.URL.Query().Get("q"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if secrets == nil {
		secrets = []service.Secret{}
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{Secrets: secrets})
}

// HandleApplications handles GET /secrets/applications requests.
func (h *SecretsHandler) HandleApplications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	apps, err := h.service.Applications(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if apps == nil {
		apps = []string{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string][]string{"applications": apps})
}

// HandleEnvironments handles GET /secrets/environments requests.
func (h *SecretsHandler) HandleEnvironments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	envs, err := h.service.Environments(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if envs == nil {
		envs = []string{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string][]string{"environments": envs})
}

type auditResponse struct {
	Entries       []audit.Entry `json:"entries"`
	NextPageToken string        `json:"nextPageToken,omitempty"`
}

// HandleAuditLog handles GET /secrets/{id}/audit requests.
func (h *SecretsHandler) HandleAuditLog(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	pageSize, _ := strconv.Atoi(q.Get("pageSize"))

	entries, next, err := h.service.AuditLog(ctx, chi.URLParam(r, "id"), pageSize, q.Get("pageToken"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	httputil.WriteJSON(w, http.StatusOK, auditResponse{Entries: entries, NextPageToken: next})
}
