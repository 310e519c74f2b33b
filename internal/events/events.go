// Package events decodes external change events off the wire and feeds them
// to the reconciler.
package events

import (
	"context"
	"encoding/json"
	"log/slog"

	"secretsportal/internal/platform/kafka/consumer"
	"secretsportal/internal/tracker"
)

// Reconciler processes decoded change events.
type Reconciler interface {
	Process(ctx context.Context, event tracker.ChangeEvent) error
}

// ChangeEventHandler turns raw records into change events. Malformed payloads
// are logged and committed; there is no point redelivering them.
type ChangeEventHandler struct {
	reconciler Reconciler
	logger     *slog.Logger
}

func NewChangeEventHandler(reconciler Reconciler, logger *slog.Logger) *ChangeEventHandler {
	return &ChangeEventHandler{
		reconciler: reconciler,
		logger:     logger,
	}
}

func (h *ChangeEventHandler) Handle(ctx context.Context, msg *consumer.Message) error {
	var event tracker.ChangeEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		h.logger.WarnContext(ctx, "skipping malformed change event",
			"topic", msg.Topic,
			"key", string(msg.Key),
			"error", err,
		)
		return nil
	}
	return h.reconciler.Process(ctx, event)
}
