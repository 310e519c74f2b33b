package events

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"secretsportal/internal/platform/kafka/consumer"
	"secretsportal/internal/tracker"
)

type fakeReconciler struct {
	events []tracker.ChangeEvent
	err    error
}

func (r *fakeReconciler) Process(_ context.Context, ev tracker.ChangeEvent) error {
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, ev)
	return nil
}

func TestHandlerDecodesAndForwards(t *testing.T) {
	rec := &fakeReconciler{}
	h := NewChangeEventHandler(rec, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ev := tracker.ChangeEvent{
		ExternalRef: "arn:vault:us-east-1:secret:db-password-abc",
		Kind:        "PutSecretValue",
		Actor:       tracker.ActorIdentity{Type: "IAMUser", Name: "alice"},
		SourceIP:    "10.0.0.1",
		Timestamp:   time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}
	body, err := json.Marshal(ev)
	require.NoError(t, err)

	err = h.Handle(context.Background(), &consumer.Message{Topic: "secret-change-events", Value: body})
	require.NoError(t, err)
	require.Len(t, rec.events, 1)
	require.Equal(t, ev.ExternalRef, rec.events[0].ExternalRef)
	require.Equal(t, "alice", rec.events[0].Actor.Name)
}

func TestHandlerSkipsMalformedPayload(t *testing.T) {
	rec := &fakeReconciler{}
	h := NewChangeEventHandler(rec, slog.New(slog.NewTextHandler(io.Discard, nil)))

	err := h.Handle(context.Background(), &consumer.Message{Value: []byte("{not json")})
	require.NoError(t, err, "malformed payloads are committed, not redelivered")
	require.Empty(t, rec.events)
}

func TestHandlerPropagatesProcessingErrors(t *testing.T) {
	rec := &fakeReconciler{err: context.DeadlineExceeded}
	h := NewChangeEventHandler(rec, slog.New(slog.NewTextHandler(io.Discard, nil)))

	body, _ := json.Marshal(tracker.ChangeEvent{ExternalRef: "ref", Kind: "CreateSecret"})
	err := h.Handle(context.Background(), &consumer.Message{Value: body})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
