// Package rotation evaluates every portal record against its rotation policy
// and sends one aggregated digest per scan for the records that are due or
// overdue. Notifications are idempotent per record: once flagged, a record is
// not re-flagged until its value is rotated.
package rotation

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"secretsportal/internal/notify"
	"secretsportal/internal/platform/metrics"
	"secretsportal/internal/retry"
	"secretsportal/internal/secrets/models"
	"secretsportal/internal/secrets/store"
)

var tracer = otel.Tracer("secretsportal/rotation")

// reminderWindowDays is how far before the due date the first reminder fires.
const reminderWindowDays = 7

const scanPageSize = 100

// dueSecret is one record qualifying for the digest.
type dueSecret struct {
	ID           string
	Name         string
	Application  string
	Environment  string
	DaysSince    int
	RotationDays int
	DaysUntilDue int
	Overdue      bool
}

// Scanner runs the periodic compliance scan.
type Scanner struct {
	metadata   store.MetadataStore
	dispatcher notify.Dispatcher
	exec       *retry.Executor
	logger     *slog.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
}

type Option func(*Scanner)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scanner) { s.metrics = m }
}

// WithNow replaces the clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(s *Scanner) { s.now = now }
}

func NewScanner(
	metadata store.MetadataStore,
	dispatcher notify.Dispatcher,
	exec *retry.Executor,
	logger *slog.Logger,
	opts ...Option,
) *Scanner {
	s := &Scanner{
		metadata:   metadata,
		dispatcher: dispatcher,
		exec:       exec,
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// needsNotification reports whether the record qualifies for the digest: due
// within the reminder window or past due, and not already flagged.
func needsNotification(m models.SecretMetadata, now time.Time) bool {
	days := m.DaysSinceRotation(now)
	untilDue := m.RotationPeriodDays - days
	return (untilDue <= reminderWindowDays || untilDue < 0) && !m.NotificationSent
}

// isOverdue is used for digest formatting only. A record exactly at its
// period counts as overdue for display even though needsNotification treats
// it as merely due. Downstream dashboards depend on both comparisons staying
// as they are.
func isOverdue(m models.SecretMetadata, now time.Time) bool {
	return m.DaysSinceRotation(now) >= m.RotationPeriodDays
}

// RunScan reads the entire record set, sends one digest for the qualifying
// records, and flags each one. Per-record flag-update failures are logged and
// skipped; a failed full read or dispatch fails the scan.
func (s *Scanner) RunScan(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "rotation.scan")
	defer span.End()

	now := s.now()

	all, err := s.readAll(ctx)
	if err != nil {
		return fmt.Errorf("scan secret metadata: %w", err)
	}
	s.logger.InfoContext(ctx, "scanned secret metadata", "total_secrets", len(all))

	var due []dueSecret
	for _, m := range all {
		if !needsNotification(m, now) {
			continue
		}
		days := m.DaysSinceRotation(now)
		due = append(due, dueSecret{
			ID:           m.ID,
			Name:         m.Name,
			Application:  m.Application,
			Environment:  string(m.Environment),
			DaysSince:    days,
			RotationDays: m.RotationPeriodDays,
			DaysUntilDue: m.RotationPeriodDays - days,
			Overdue:      isOverdue(m, now),
		})
	}
	span.SetAttributes(attribute.Int("rotation.due_count", len(due)))

	if len(due) == 0 {
		s.logger.InfoContext(ctx, "no secrets require rotation notifications")
		if s.metrics != nil {
			s.metrics.RotationScans.Inc()
		}
		return nil
	}

	if err := s.dispatcher.Send(ctx, digestNotification(due, now)); err != nil {
		return fmt.Errorf("send rotation digest: %w", err)
	}
	if s.metrics != nil {
		s.metrics.NotificationsSent.Inc()
	}

	s.flagNotified(ctx, due, now)

	s.logger.InfoContext(ctx, "rotation scan completed",
		"secrets_flagged", len(due),
	)
	if s.metrics != nil {
		s.metrics.RotationScans.Inc()
		s.metrics.RotationNotified.Add(float64(len(due)))
	}
	return nil
}

// readAll pages through the full record set until no continuation token
// remains. Unbounded by record count, like the store scan it wraps.
func (s *Scanner) readAll(ctx context.Context) ([]models.SecretMetadata, error) {
	var all []models.SecretMetadata
	token := ""
	for {
		page, err := retry.Values(ctx, s.exec, "list secret metadata",
			func(ctx context.Context) ([]models.SecretMetadata, error) {
				items, next, err := s.metadata.List(ctx, scanPageSize, token)
				if err != nil {
					return nil, err
				}
				token = next
				return items, nil
			})
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if token == "" {
			return all, nil
		}
	}
}

// flagNotified marks each digested record so the next scan skips it. Updates
// run sequentially; a failure on one record does not stop the rest.
func (s *Scanner) flagNotified(ctx context.Context, due []dueSecret, now time.Time) {
	sent := true
	for _, d := range due {
		upd := models.MetadataUpdate{
			NotificationSent:   &sent,
			LastNotificationAt: &now,
		}
		err := s.exec.Do(ctx, "flag rotation notification", func(ctx context.Context) error {
			return s.metadata.Update(ctx, d.ID, upd)
		})
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to update notification flag",
				"secret_id", d.ID,
				"error", err,
			)
			continue
		}
		s.logger.DebugContext(ctx, "updated notification flag", "secret_id", d.ID)
	}
}

// digestNotification formats exactly one aggregated message covering all
// qualifying records, grouped by application and environment.
func digestNotification(due []dueSecret, now time.Time) notify.Notification {
	groups := make(map[string][]dueSecret)
	var keys []string
	for _, d := range due {
		key := d.Application + " - " + d.Environment
		if _, seen := groups[key]; !seen {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], d)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("Secret Rotation Reminder\n\n")
	b.WriteString("The following secrets require attention for rotation:\n")
	for _, key := range keys {
		fmt.Fprintf(&b, "\n=== %s ===\n", key)
		for _, d := range groups[key] {
			fmt.Fprintf(&b, "\n- Secret: %s\n", d.Name)
			fmt.Fprintf(&b, "  Days Since Rotation: %d\n", d.DaysSince)
			fmt.Fprintf(&b, "  Rotation Period: %d days\n", d.RotationDays)
			if d.Overdue {
				overdueBy := -d.DaysUntilDue
				if overdueBy < 0 {
					overdueBy = 0
				}
				fmt.Fprintf(&b, "  Status: OVERDUE by %d days\n", overdueBy)
			} else {
				fmt.Fprintf(&b, "  Status: Due in %d days\n", d.DaysUntilDue)
			}
		}
	}
	b.WriteString("\nPlease rotate these secrets to maintain security compliance.\n")

	return notify.Notification{
		Kind:      notify.KindRotationDigest,
		Title:     fmt.Sprintf("Secret Rotation Alert - %d secret(s) require rotation", len(due)),
		Message:   b.String(),
		Timestamp: now,
		Severity:  notify.SeverityMedium,
	}
}
