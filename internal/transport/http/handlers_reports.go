package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"secretsportal/internal/audit"
	"secretsportal/internal/permissions"
	"secretsportal/internal/tracker"
	dErrors "secretsportal/pkg/domain-errors"
	"secretsportal/pkg/platform/httputil"
	"secretsportal/pkg/requestcontext"
)

const reportPageSize = 100

// AuditReader reads portal audit entries across all records.
type AuditReader interface {
	ScanAll(ctx context.Context, pageSize int, token string) ([]audit.Entry, string, error)
}

// ChangeReader reads recorded console-originated changes.
type ChangeReader interface {
	Scan(ctx context.Context, pageSize int, token string) ([]tracker.ConsoleChange, string, error)
}

// ReportsHandler serves the compliance report endpoints. Both reports span
// every application, so they are restricted to administrators.
type ReportsHandler struct {
	auditor AuditReader
	changes ChangeReader
	logger  *slog.Logger
}

func NewReportsHandler(auditor AuditReader, changes ChangeReader, logger *slog.Logger) *ReportsHandler {
	return &ReportsHandler{
		auditor: auditor,
		changes: changes,
		logger:  logger,
	}
}

// Register mounts report endpoints on the router.
func (h *ReportsHandler) Register(r chi.Router) {
	r.Route("/reports", func(r chi.Router) {
		r.Get("/access", h.HandleAccessReport)
		r.Get("/console-changes", h.HandleConsoleChanges)
	})
}

// requireAdmin allows only callers holding the wildcard grant.
func requireAdmin(ctx context.Context) error {
	grants := permissions.ResolveGrants(requestcontext.Groups(ctx))
	if !permissions.HasAccess(grants, permissions.Wildcard, permissions.Wildcard, permissions.LevelRead) {
		return dErrors.New(dErrors.CodeForbidden, "administrator access required")
	}
	return nil
}

// HandleAccessReport handles GET /reports/access requests.
func (h *ReportsHandler) HandleAccessReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := requireAdmin(ctx); err != nil {
		httputil.WriteError(w, err)
		return
	}

	q := r.URL.Query()
	pageSize, _ := strconv.Atoi(q.Get("pageSize"))
	if pageSize <= 0 || pageSize > reportPageSize {
		pageSize = reportPageSize
	}
	entries, next, err := h.auditor.ScanAll(ctx, pageSize, q.Get("pageToken"))
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to build access report",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build access report"))
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	httputil.WriteJSON(w, http.StatusOK, auditResponse{Entries: entries, NextPageToken: next})
}

type consoleChangesResponse struct {
	Changes       []tracker.ConsoleChange `json:"changes"`
	NextPageToken string                  `json:"nextPageToken,omitempty"`
}

// HandleConsoleChanges handles GET /reports/console-changes requests.
func (h *ReportsHandler) HandleConsoleChanges(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := requireAdmin(ctx); err != nil {
		httputil.WriteError(w, err)
		return
	}

	q := r.URL.Query()
	pageSize, _ := strconv.Atoi(q.Get("pageSize"))
	if pageSize <= 0 || pageSize > reportPageSize {
		pageSize = reportPageSize
	}
	changes, next, err := h.changes.Scan(ctx, pageSize, q.Get("pageToken"))
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to build console change report",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build console change report"))
		return
	}
	if changes == nil {
		changes = []tracker.ConsoleChange{}
	}
	httputil.WriteJSON(w, http.StatusOK, consoleChangesResponse{Changes: changes, NextPageToken: next})
}
