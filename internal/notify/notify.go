// Package notify delivers structured alert and digest payloads to the
// configured sink. Dispatch is best-effort everywhere in the portal: a dead
// sink must never block audit correctness or scan completion.
package notify

import (
	"context"
	"time"
)

// Severity of a notification.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Notification kinds.
const (
	KindProdChange     = "prod_change"
	KindRotationDigest = "rotation_digest"
)

// Notification is the payload handed to the sink.
type Notification struct {
	Kind        string    `json:"notificationType"`
	Title       string    `json:"title"`
	Message     string    `json:"message"`
	SecretName  string    `json:"secretName,omitempty"`
	Application string    `json:"application,omitempty"`
	Environment string    `json:"environment,omitempty"`
	Action      string    `json:"action,omitempty"`
	ActorID     string    `json:"user,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	Severity    Severity  `json:"severity"`
}

// Dispatcher accepts structured digest/alert payloads.
type Dispatcher interface {
	Send(ctx context.Context, n Notification) error
}
