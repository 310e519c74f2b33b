package rotation

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"secretsportal/internal/notify"
	"secretsportal/internal/retry"
	"secretsportal/internal/secrets/models"
	"secretsportal/internal/secrets/store"
)

// seedOverdue stores one record well past its rotation period so the first
// scan always produces a digest.
func seedOverdue(t *testing.T, metadata *store.InMemory) {
	t.Helper()
	err := metadata.Create(context.Background(), models.SecretMetadata{
		ID:                 uuid.NewString(),
		Name:               "db-password",
		ExternalRef:        "arn:vault:us-east-1:secret:db-password-abc123",
		Application:        "payments",
		Environment:        models.EnvProd,
		RotationPeriodDays: 45,
		LastModified:       time.Now().AddDate(0, 0, -50),
		Region:             "us-east-1",
	})
	require.NoError(t, err)
}

type signallingDispatcher struct {
	sent chan notify.Notification
}

func (d *signallingDispatcher) Send(_ context.Context, n notify.Notification) error {
	select {
	case d.sent <- n:
	default:
	}
	return nil
}

func TestRunnerStopsCleanlyOnCancel(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	scanner := NewScanner(store.NewInMemory(), &fakeDispatcher{}, retry.New(logger), logger)
	runner := NewRunner(scanner, time.Hour, logger)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, runner.Run(ctx), "shutdown must not surface as a failure")
}

func TestRunnerScansOnEachTick(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metadata := store.NewInMemory()
	dispatcher := &signallingDispatcher{sent: make(chan notify.Notification, 1)}
	scanner := NewScanner(metadata, dispatcher, retry.New(logger), logger)

	seedOverdue(t, metadata)
	runner := NewRunner(scanner, 5*time.Millisecond, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	select {
	case <-dispatcher.sent:
	case <-time.After(2 * time.Second):
		t.Fatal("no scan ran before the deadline")
	}
	cancel()
	require.NoError(t, <-done)
}
