// Package tracker reconciles direct vault changes with portal-known records.
// Every change made outside the portal lands in the console-change trail and
// the portal audit trail; changes to Prod secrets additionally page someone.
package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"secretsportal/internal/audit"
	"secretsportal/internal/notify"
	"secretsportal/internal/platform/metrics"
	"secretsportal/internal/retry"
	"secretsportal/internal/secrets/models"
	"secretsportal/internal/secrets/store"
	"secretsportal/internal/vault"
)

var tracer = otel.Tracer("secretsportal/tracker")

// Event kinds that carry no state change. They are dropped before any write
// so read-access noise cannot flood the audit trail.
var readOnlyKinds = map[string]bool{
	"GetSecretValue": true,
	"DescribeSecret": true,
}

// actionByKind maps event kinds to canonical portal actions. Unmapped kinds
// pass through as their literal name.
var actionByKind = map[string]string{
	"PutSecretValue": audit.ActionUpdate,
	"UpdateSecret":   audit.ActionUpdate,
	"CreateSecret":   audit.ActionCreate,
	"DeleteSecret":   audit.ActionDelete,
	"GetSecretValue": audit.ActionRead,
	"DescribeSecret": audit.ActionRead,
}

const lookupPageSize = 100

// Reconciler processes external change events. There is no event-id dedup:
// at-least-once delivery duplicates rows, and recovery from a failed event
// relies on the event source's own redelivery.
type Reconciler struct {
	metadata   store.MetadataStore
	changes    ConsoleChangeStore
	auditor    *audit.Writer
	dispatcher notify.Dispatcher
	vault      vault.Vault
	exec       *retry.Executor
	logger     *slog.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
}

type ReconcilerOption func(*Reconciler)

func WithMetrics(m *metrics.Metrics) ReconcilerOption {
	return func(r *Reconciler) { r.metrics = m }
}

// WithNow replaces the clock, for tests.
func WithNow(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) { r.now = now }
}

// WithVault lets the reconciler ask the vault for the stored name of secrets
// the portal does not know about.
func WithVault(v vault.Vault) ReconcilerOption {
	return func(r *Reconciler) { r.vault = v }
}

func NewReconciler(
	metadata store.MetadataStore,
	changes ConsoleChangeStore,
	auditor *audit.Writer,
	dispatcher notify.Dispatcher,
	exec *retry.Executor,
	logger *slog.Logger,
	opts ...ReconcilerOption,
) *Reconciler {
	r := &Reconciler{
		metadata:   metadata,
		changes:    changes,
		auditor:    auditor,
		dispatcher: dispatcher,
		exec:       exec,
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Process reconciles one event. A failure writing either persistent record
// aborts the event and propagates; a dispatcher failure is logged and
// suppressed.
func (r *Reconciler) Process(ctx context.Context, ev ChangeEvent) error {
	ctx, span := tracer.Start(ctx, "tracker.process")
	defer span.End()
	span.SetAttributes(
		attribute.String("event.kind", ev.Kind),
		attribute.String("event.external_ref", ev.ExternalRef),
	)

	if readOnlyKinds[ev.Kind] {
		r.logger.DebugContext(ctx, "skipping read-only event", "kind", ev.Kind)
		r.countEvent("skipped")
		return nil
	}
	if ev.ExternalRef == "" {
		r.logger.WarnContext(ctx, "event carries no external reference", "kind", ev.Kind)
		r.countEvent("skipped")
		return nil
	}

	actorID := ev.Actor.ID()
	action := mapAction(ev.Kind)
	details := fmt.Sprintf("Direct external change: %s by %s", ev.Kind, ev.Actor.Type)

	record, found, err := r.findByExternalRef(ctx, ev.ExternalRef)
	if err != nil {
		r.countEvent("failed")
		return fmt.Errorf("resolve external ref: %w", err)
	}

	if !found {
		if err := r.processUnknown(ctx, ev, actorID, action, details); err != nil {
			r.countEvent("failed")
			return err
		}
		r.countEvent("unknown")
		return nil
	}

	if err := r.writeConsoleChange(ctx, ev, actorID, action,
		record.Name, record.Application, string(record.Environment)); err != nil {
		r.countEvent("failed")
		return err
	}
	if err := r.auditor.Append(ctx, audit.Entry{
		RecordKey: record.ID,
		Timestamp: r.now(),
		ActorID:   actorID,
		Action:    action,
		IP:        ev.SourceIP,
		UserAgent: ev.UserAgent,
		Success:   true,
		Details:   details,
	}); err != nil {
		r.countEvent("failed")
		return fmt.Errorf("append audit entry: %w", err)
	}

	if record.Environment == models.EnvProd {
		r.notifyProdChange(ctx, record, actorID, action, details)
	}

	r.logger.InfoContext(ctx, "processed external change event",
		"secret_id", record.ID,
		"secret_name", record.Name,
		"environment", record.Environment,
		"actor", actorID,
		"action", action,
	)
	r.countEvent("known")
	return nil
}

// processUnknown handles events whose external reference matches no portal
// record. Unknown never equals the Prod tier, so no notification fires.
func (r *Reconciler) processUnknown(ctx context.Context, ev ChangeEvent, actorID, action, details string) error {
	name := r.describeName(ctx, ev.ExternalRef)

	if err := r.writeConsoleChange(ctx, ev, actorID, action, name, "External", "Unknown"); err != nil {
		return err
	}
	if err := r.auditor.Append(ctx, audit.Entry{
		RecordKey: ev.ExternalRef,
		Timestamp: r.now(),
		ActorID:   actorID,
		Action:    action,
		IP:        ev.SourceIP,
		UserAgent: ev.UserAgent,
		Success:   true,
		Details:   details + " (secret not in portal)",
	}); err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}

	r.logger.InfoContext(ctx, "processed external change for unknown secret",
		"external_ref", ev.ExternalRef,
		"secret_name", name,
		"actor", actorID,
		"action", action,
	)
	return nil
}

func (r *Reconciler) writeConsoleChange(ctx context.Context, ev ChangeEvent, actorID, action, name, app, env string) error {
	change := ConsoleChange{
		ExternalRef: ev.ExternalRef,
		Timestamp:   r.now(),
		SecretName:  name,
		Application: app,
		Environment: env,
		ActorID:     actorID,
		ActorType:   ev.Actor.Type,
		Action:      action,
		Kind:        ev.Kind,
		IP:          ev.SourceIP,
		UserAgent:   ev.UserAgent,
		Region:      ev.Region,
		ExpiresAt:   r.now().Add(audit.Retention),
	}
	err := r.exec.Do(ctx, "write console change", func(ctx context.Context) error {
		return r.changes.Put(ctx, change)
	})
	if err != nil {
		return fmt.Errorf("write console change: %w", err)
	}
	if r.metrics != nil {
		r.metrics.ConsoleChangesWritten.Inc()
	}
	return nil
}

// findByExternalRef scans the full known-record set linearly. First match
// wins; no match is a handled branch, not an error.
func (r *Reconciler) findByExternalRef(ctx context.Context, externalRef string) (models.SecretMetadata, bool, error) {
	token := ""
	for {
		page, err := retry.Values(ctx, r.exec, "list secret metadata",
			func(ctx context.Context) ([]models.SecretMetadata, error) {
				items, n, err := r.metadata.List(ctx, lookupPageSize, token)
				if err != nil {
					return nil, err
				}
				token = n
				return items, nil
			})
		if err != nil {
			return models.SecretMetadata{}, false, err
		}
		for _, m := range page {
			if m.ExternalRef == externalRef {
				return m, true, nil
			}
		}
		if token == "" {
			return models.SecretMetadata{}, false, nil
		}
	}
}

// notifyProdChange is best-effort: a sink failure must not fail the event.
func (r *Reconciler) notifyProdChange(ctx context.Context, record models.SecretMetadata, actorID, action, details string) {
	n := notify.Notification{
		Kind:        notify.KindProdChange,
		Title:       "Production Secret Changed Outside Portal",
		Message:     fmt.Sprintf("A production secret was modified directly, not through the portal. %s", details),
		SecretName:  record.Name,
		Application: record.Application,
		Environment: string(models.EnvProd),
		Action:      action,
		ActorID:     actorID,
		Timestamp:   r.now(),
		Severity:    notify.SeverityHigh,
	}
	if err := r.dispatcher.Send(ctx, n); err != nil {
		r.logger.ErrorContext(ctx, "failed to send prod change notification",
			"secret_name", record.Name,
			"error", err,
		)
		if r.metrics != nil {
			r.metrics.NotificationsFailed.Inc()
		}
		return
	}
	if r.metrics != nil {
		r.metrics.NotificationsSent.Inc()
	}
}

func (r *Reconciler) countEvent(outcome string) {
	if r.metrics != nil {
		r.metrics.ChangeEventsProcessed.WithLabelValues(outcome).Inc()
	}
}

// ID derives the actor identifier via the priority chain: explicit name,
// delegated-session issuer, last path segment of the identifier, raw
// principal id, then "Unknown".
func (a ActorIdentity) ID() string {
	if a.Name != "" {
		return a.Name
	}
	if a.SessionIssuerName != "" {
		return a.SessionIssuerName
	}
	if a.Identifier != "" {
		parts := strings.Split(a.Identifier, "/")
		return parts[len(parts)-1]
	}
	if a.PrincipalID != "" {
		return a.PrincipalID
	}
	return "Unknown"
}

func mapAction(kind string) string {
	if action, ok := actionByKind[kind]; ok {
		return action
	}
	return kind
}

// describeName resolves the stored name of a secret the portal has no record
// of. The vault is authoritative when it answers; reference parsing covers
// deleted secrets and reconcilers wired without a vault.
func (r *Reconciler) describeName(ctx context.Context, externalRef string) string {
	if r.vault != nil {
		if d, err := r.vault.Describe(ctx, externalRef); err == nil && d.Name != "" {
			return d.Name
		}
	}
	return displayName(externalRef)
}

// displayName extracts the human-readable name from a vault resource
// reference: the segment after ":secret:" when present, else the raw ref.
func displayName(externalRef string) string {
	if _, name, ok := strings.Cut(externalRef, ":secret:"); ok && name != "" {
		return name
	}
	return externalRef
}
