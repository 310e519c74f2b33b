// Package service orchestrates portal-side secret management: metadata CRUD,
// vault writes, permission gates, and the portal audit trail.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"secretsportal/internal/audit"
	"secretsportal/internal/notify"
	"secretsportal/internal/permissions"
	"secretsportal/internal/platform/metrics"
	"secretsportal/internal/retry"
	"secretsportal/internal/secrets/models"
	"secretsportal/internal/secrets/store"
	"secretsportal/internal/vault"
	dErrors "secretsportal/pkg/domain-errors"
	"secretsportal/pkg/platform/sentinel"
	"secretsportal/pkg/requestcontext"
)

var tracer = otel.Tracer("secretsportal/secrets")

const defaultPageSize = 50

// Service owns the portal-facing secret operations. Every write goes through
// a permission gate, lands in the vault and metadata store, and appends to
// the audit trail; an audit failure on these paths fails the operation.
type Service struct {
	metadata   store.MetadataStore
	vault      vault.Vault
	auditor    *audit.Writer
	dispatcher notify.Dispatcher
	exec       *retry.Executor
	logger     *slog.Logger
	metrics    *metrics.Metrics
	region     string
	now        func() time.Time
}

type Option func(*Service)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithNow replaces the clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(
	metadata store.MetadataStore,
	v vault.Vault,
	auditor *audit.Writer,
	dispatcher notify.Dispatcher,
	exec *retry.Executor,
	logger *slog.Logger,
	region string,
	opts ...Option,
) *Service {
	s := &Service{
		metadata:   metadata,
		vault:      v,
		auditor:    auditor,
		dispatcher: dispatcher,
		exec:       exec,
		logger:     logger,
		region:     region,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Secret is the API-facing projection of a metadata record.
type Secret struct {
	ID                 string            `json:"id"`
	Name               string            `json:"name"`
	Application        string            `json:"application"`
	Environment        models.Environment `json:"environment"`
	RotationPeriodDays int               `json:"rotationPeriod"`
	LastModified       time.Time         `json:"lastModified"`
	DaysSinceRotation  int               `json:"daysSinceRotation"`
	Region             string            `json:"awsRegion"`
	Tags               map[string]string `json:"tags,omitempty"`
}

func (s *Service) toSecret(m models.SecretMetadata) Secret {
	return Secret{
		ID:                 m.ID,
		Name:               m.Name,
		Application:        m.Application,
		Environment:        m.Environment,
		RotationPeriodDays: m.RotationPeriodDays,
		LastModified:       m.LastModified,
		DaysSinceRotation:  m.DaysSinceRotation(s.now()),
		Region:             m.Region,
		Tags:               m.Tags,
	}
}

// CreateRequest carries everything needed to create a secret.
type CreateRequest struct {
	Name               string            `json:"name"`
	Application        string            `json:"application"`
	Environment        string            `json:"environment"`
	RotationPeriodDays int               `json:"rotationPeriod"`
	Value              string            `json:"value"`
	Tags               map[string]string `json:"tags,omitempty"`
}

func (r *CreateRequest) validate() (models.Environment, error) {
	r.Name = strings.TrimSpace(r.Name)
	r.Application = strings.TrimSpace(r.Application)
	if r.Name == "" {
		return "", dErrors.New(dErrors.CodeValidation, "secret name is required")
	}
	if r.Application == "" {
		return "", dErrors.New(dErrors.CodeValidation, "application is required")
	}
	env, err := models.ParseEnvironment(r.Environment)
	if err != nil {
		return "", err
	}
	if err := models.ValidateRotationPeriod(r.RotationPeriodDays); err != nil {
		return "", err
	}
	if r.Value == "" {
		return "", dErrors.New(dErrors.CodeValidation, "secret value is required")
	}
	return env, nil
}

// List returns the page of secrets the caller can read, optionally filtered
// by application and environment.
func (s *Service) List(ctx context.Context, app string, env models.Environment, pageSize int, token string) ([]Secret, string, error) {
	ctx, span := tracer.Start(ctx, "secrets.list")
	defer span.End()

	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > 100 {
		return nil, "", dErrors.New(dErrors.CodeValidation, "page size must be between 1 and 100")
	}

	var (
		page []models.SecretMetadata
		next string
	)
	err := s.exec.Do(ctx, "list secret metadata", func(ctx context.Context) error {
		var err error
		if app != "" && env != "" {
			page, next, err = s.metadata.QueryByAppEnv(ctx, app, env, pageSize, token)
		} else {
			page, next, err = s.metadata.List(ctx, pageSize, token)
		}
		return err
	})
	if err != nil {
		return nil, "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to list secrets")
	}

	grants := permissions.ResolveGrants(requestcontext.Groups(ctx))
	readable := permissions.FilterByAccess(grants, page, func(m models.SecretMetadata) (string, string) {
		return m.Application, string(m.Environment)
	})
	secrets := make([]Secret, 0, len(readable))
	for _, m := range readable {
		secrets = append(secrets, s.toSecret(m))
	}
	return secrets, next, nil
}

// Get returns one secret's metadata. Requires read on its app/env.
func (s *Service) Get(ctx context.Context, id string) (Secret, error) {
	ctx, span := tracer.Start(ctx, "secrets.get")
	defer span.End()

	m, err := s.getRecord(ctx, id)
	if err != nil {
		return Secret{}, err
	}
	if err := s.requireAccess(ctx, m.Application, string(m.Environment), permissions.LevelRead); err != nil {
		return Secret{}, err
	}
	return s.toSecret(m), nil
}

// Create stores the value in the vault, records the metadata, and audits the
// creation. Requires write on the target app/env.
func (s *Service) Create(ctx context.Context, req CreateRequest) (Secret, error) {
	ctx, span := tracer.Start(ctx, "secrets.create")
	defer span.End()

	env, err := req.validate()
	if err != nil {
		return Secret{}, err
	}
	if err := s.requireAccess(ctx, req.Application, string(env), permissions.LevelWrite); err != nil {
		return Secret{}, err
	}

	externalRef, err := s.vault.Create(ctx, req.Name, req.Value, req.Tags)
	if err != nil {
		return Secret{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "vault create failed")
	}

	now := s.now()
	m := models.SecretMetadata{
		ID:                 uuid.NewString(),
		Name:               req.Name,
		ExternalRef:        externalRef,
		Application:        req.Application,
		Environment:        env,
		RotationPeriodDays: req.RotationPeriodDays,
		LastModified:       now,
		Region:             s.region,
		Tags:               req.Tags,
		CreatedBy:          requestcontext.UserID(ctx),
		CreatedAt:          now,
	}
	err = s.exec.Do(ctx, "create secret metadata", func(ctx context.Context) error {
		return s.metadata.Create(ctx, m)
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return Secret{}, dErrors.New(dErrors.CodeConflict, "secret already exists")
		}
		return Secret{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create secret metadata")
	}

	if err := s.appendAudit(ctx, m.ID, audit.ActionCreate, fmt.Sprintf("Created secret %s", m.Name)); err != nil {
		return Secret{}, err
	}
	if s.metrics != nil {
		s.metrics.SecretsCreated.Inc()
	}
	s.logger.InfoContext(ctx, "secret created",
		"secret_id", m.ID,
		"application", m.Application,
		"environment", m.Environment,
	)
	return s.toSecret(m), nil
}

// UpdateValue rotates the secret's value. The metadata update advances
// LastModified and clears NotificationSent so the next compliance scan
// re-evaluates the record from scratch.
func (s *Service) UpdateValue(ctx context.Context, id, value string) (Secret, error) {
	ctx, span := tracer.Start(ctx, "secrets.update_value")
	defer span.End()

	if value == "" {
		return Secret{}, dErrors.New(dErrors.CodeValidation, "secret value is required")
	}
	m, err := s.getRecord(ctx, id)
	if err != nil {
		return Secret{}, err
	}
	if err := s.requireAccess(ctx, m.Application, string(m.Environment), permissions.LevelWrite); err != nil {
		return Secret{}, err
	}

	if err := s.vault.PutValue(ctx, m.ExternalRef, value); err != nil {
		return Secret{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "vault put failed")
	}

	now := s.now()
	notified := false
	upd := models.MetadataUpdate{
		LastModified:     &now,
		NotificationSent: &notified,
	}
	err = s.exec.Do(ctx, "update secret metadata", func(ctx context.Context) error {
		return s.metadata.Update(ctx, id, upd)
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrConditionFailed) {
			return Secret{}, dErrors.New(dErrors.CodeNotFound, "secret not found")
		}
		return Secret{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update secret metadata")
	}
	m.LastModified = now
	m.NotificationSent = false

	if err := s.appendAudit(ctx, m.ID, audit.ActionUpdate, fmt.Sprintf("Updated value of secret %s", m.Name)); err != nil {
		return Secret{}, err
	}
	if m.Environment == models.EnvProd {
		s.notifyProd(ctx, m, "Secret Value Updated")
	}
	if s.metrics != nil {
		s.metrics.SecretsUpdated.Inc()
	}
	return s.toSecret(m), nil
}

// UpdateRotationPeriod changes the record's rotation policy.
func (s *Service) UpdateRotationPeriod(ctx context.Context, id string, days int) (Secret, error) {
	ctx, span := tracer.Start(ctx, "secrets.update_rotation")
	defer span.End()

	if err := models.ValidateRotationPeriod(days); err != nil {
		return Secret{}, err
	}
	m, err := s.getRecord(ctx, id)
	if err != nil {
		return Secret{}, err
	}
	if err := s.requireAccess(ctx, m.Application, string(m.Environment), permissions.LevelWrite); err != nil {
		return Secret{}, err
	}

	upd := models.MetadataUpdate{RotationPeriodDays: &days}
	err = s.exec.Do(ctx, "update secret metadata", func(ctx context.Context) error {
		return s.metadata.Update(ctx, id, upd)
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrConditionFailed) {
			return Secret{}, dErrors.New(dErrors.CodeNotFound, "secret not found")
		}
		return Secret{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update rotation period")
	}
	m.RotationPeriodDays = days

	if err := s.appendAudit(ctx, m.ID, audit.ActionRotationChange,
		fmt.Sprintf("Changed rotation period of %s to %d days", m.Name, days)); err != nil {
		return Secret{}, err
	}
	if m.Environment == models.EnvProd {
		s.notifyProd(ctx, m, "Rotation Period Changed")
	}
	return s.toSecret(m), nil
}

// Search returns readable secrets whose name contains the query,
// case-insensitively. The full record set is walked page by page.
func (s *Service) Search(ctx context.Context, query string) ([]Secret, error) {
	ctx, span := tracer.Start(ctx, "secrets.search")
	defer span.End()

	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "search query is required")
	}

	grants := permissions.ResolveGrants(requestcontext.Groups(ctx))
	var results []Secret
	err := s.walkAll(ctx, func(m models.SecretMetadata) {
		if !strings.Contains(strings.ToLower(m.Name), query) {
			return
		}
		if permissions.HasAccess(grants, m.Application, string(m.Environment), permissions.LevelRead) {
			results = append(results, s.toSecret(m))
		}
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "search failed")
	}
	return results, nil
}

// Applications returns the distinct application names the caller can read.
func (s *Service) Applications(ctx context.Context) ([]string, error) {
	return s.distinct(ctx, func(m models.SecretMetadata) string { return m.Application })
}

// Environments returns the distinct environments the caller can read.
func (s *Service) Environments(ctx context.Context) ([]string, error) {
	return s.distinct(ctx, func(m models.SecretMetadata) string { return string(m.Environment) })
}

// AuditLog returns one page of the secret's audit trail, most recent first.
func (s *Service) AuditLog(ctx context.Context, id string, pageSize int, token string) ([]audit.Entry, string, error) {
	m, err := s.getRecord(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if err := s.requireAccess(ctx, m.Application, string(m.Environment), permissions.LevelRead); err != nil {
		return nil, "", err
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	entries, next, err := s.auditor.QueryByRecord(ctx, id, pageSize, token)
	if err != nil {
		return nil, "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to query audit log")
	}
	return entries, next, nil
}

func (s *Service) getRecord(ctx context.Context, id string) (models.SecretMetadata, error) {
	m, err := retry.Values(ctx, s.exec, "get secret metadata",
		func(ctx context.Context) (models.SecretMetadata, error) {
			return s.metadata.Get(ctx, id)
		})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return models.SecretMetadata{}, dErrors.New(dErrors.CodeNotFound, "secret not found")
		}
		return models.SecretMetadata{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load secret")
	}
	return m, nil
}

func (s *Service) requireAccess(ctx context.Context, app, env string, level permissions.Level) error {
	grants := permissions.ResolveGrants(requestcontext.Groups(ctx))
	if err := permissions.RequireAccess(grants, app, env, level); err != nil {
		if s.metrics != nil {
			s.metrics.AccessDenied.Inc()
		}
		return dErrors.Wrap(err, dErrors.CodeForbidden, err.Error())
	}
	return nil
}

// appendAudit writes the portal audit entry for a completed write. Failure is
// fatal to the operation: the portal never leaves a write unaudited.
func (s *Service) appendAudit(ctx context.Context, recordKey, action, details string) error {
	entry := audit.Entry{
		RecordKey: recordKey,
		Timestamp: s.now(),
		ActorID:   requestcontext.UserID(ctx),
		Action:    action,
		IP:        requestcontext.ClientIP(ctx),
		UserAgent: requestcontext.UserAgent(ctx),
		Success:   true,
		Details:   details,
	}
	if err := s.auditor.Append(ctx, entry); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to write audit entry")
	}
	return nil
}

// notifyProd sends the high-severity prod-change alert, best-effort.
func (s *Service) notifyProd(ctx context.Context, m models.SecretMetadata, action string) {
	n := notify.Notification{
		Kind:        notify.KindProdChange,
		Title:       "Production Secret Changed",
		Message:     fmt.Sprintf("A production secret has been modified through the portal: %s", m.Name),
		SecretName:  m.Name,
		Application: m.Application,
		Environment: string(models.EnvProd),
		Action:      action,
		ActorID:     requestcontext.UserID(ctx),
		Timestamp:   s.now(),
		Severity:    notify.SeverityHigh,
	}
	if err := s.dispatcher.Send(ctx, n); err != nil {
		s.logger.ErrorContext(ctx, "failed to send prod change notification",
			"secret_name", m.Name,
			"error", err,
		)
		if s.metrics != nil {
			s.metrics.NotificationsFailed.Inc()
		}
		return
	}
	if s.metrics != nil {
		s.metrics.NotificationsSent.Inc()
	}
}

func (s *Service) distinct(ctx context.Context, key func(models.SecretMetadata) string) ([]string, error) {
	grants := permissions.ResolveGrants(requestcontext.Groups(ctx))
	seen := make(map[string]bool)
	var values []string
	err := s.walkAll(ctx, func(m models.SecretMetadata) {
		if !permissions.HasAccess(grants, m.Application, string(m.Environment), permissions.LevelRead) {
			return
		}
		if v := key(m); !seen[v] {
			seen[v] = true
			values = append(values, v)
		}
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list secrets")
	}
	return values, nil
}

func (s *Service) walkAll(ctx context.Context, visit func(models.SecretMetadata)) error {
	token := ""
	for {
		page, err := retry.Values(ctx, s.exec, "list secret metadata",
			func(ctx context.Context) ([]models.SecretMetadata, error) {
				items, next, err := s.metadata.List(ctx, defaultPageSize, token)
				if err != nil {
					return nil, err
				}
				token = next
				return items, nil
			})
		if err != nil {
			return err
		}
		for _, m := range page {
			visit(m)
		}
		if token == "" {
			return nil
		}
	}
}
