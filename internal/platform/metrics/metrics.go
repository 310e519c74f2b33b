package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the portal.
type Metrics struct {
	SecretsCreated        prometheus.Counter
	SecretsUpdated        prometheus.Counter
	AccessDenied          prometheus.Counter
	RetryAttempts         *prometheus.CounterVec
	ChangeEventsProcessed *prometheus.CounterVec
	ConsoleChangesWritten prometheus.Counter
	RotationScans         prometheus.Counter
	RotationNotified      prometheus.Counter
	NotificationsSent     prometheus.Counter
	NotificationsFailed   prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		SecretsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "secrets_portal_secrets_created_total",
			Help: "Total number of secrets created through the portal",
		}),
		SecretsUpdated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "secrets_portal_secrets_updated_total",
			Help: "Total number of secret value updates through the portal",
		}),
		AccessDenied: promauto.NewCounter(prometheus.CounterOpts{
			Name: "secrets_portal_access_denied_total",
			Help: "Total number of permission-gate denials",
		}),
		RetryAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "secrets_portal_store_retry_attempts_total",
			Help: "Total number of retried store operations, by operation label",
		}, []string{"operation"}),
		ChangeEventsProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "secrets_portal_change_events_processed_total",
			Help: "Total number of external change events processed, by outcome",
		}, []string{"outcome"}),
		ConsoleChangesWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "secrets_portal_console_changes_written_total",
			Help: "Total number of external change records written",
		}),
		RotationScans: promauto.NewCounter(prometheus.CounterOpts{
			Name: "secrets_portal_rotation_scans_total",
			Help: "Total number of rotation compliance scans completed",
		}),
		RotationNotified: promauto.NewCounter(prometheus.CounterOpts{
			Name: "secrets_portal_rotation_secrets_notified_total",
			Help: "Total number of secrets flagged in rotation digests",
		}),
		NotificationsSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "secrets_portal_notifications_sent_total",
			Help: "Total number of notifications dispatched successfully",
		}),
		NotificationsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "secrets_portal_notifications_failed_total",
			Help: "Total number of notification dispatch failures",
		}),
	}
}
