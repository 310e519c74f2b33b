//go:build integration

package tracker_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"secretsportal/internal/audit"
	"secretsportal/internal/tracker"
	"secretsportal/pkg/testutil/containers"
)

type PostgresChangeStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *tracker.PostgresChangeStore
}

func TestPostgresChangeStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresChangeStoreSuite))
}

func (s *PostgresChangeStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = tracker.NewPostgresChangeStore(s.postgres.DB)
	s.Require().NoError(s.store.EnsureSchema(context.Background()))
}

func (s *PostgresChangeStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "console_changes"))
}

func newChange(name string) tracker.ConsoleChange {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return tracker.ConsoleChange{
		ExternalRef: "arn:vault:us-east-1:secret:" + name + "-" + uuid.NewString()[:6],
		Timestamp:   now,
		SecretName:  name,
		Application: "payments",
		Environment: "Prod",
		ActorID:     "alice",
		ActorType:   "IAMUser",
		Action:      audit.ActionUpdate,
		Kind:        "PutSecretValue",
		IP:          "10.0.0.1",
		UserAgent:   "aws-console",
		Region:      "us-east-1",
		ExpiresAt:   now.Add(audit.Retention),
	}
}

func (s *PostgresChangeStoreSuite) TestRoundTrip() {
	ctx := context.Background()
	change := newChange("db-password")
	s.Require().NoError(s.store.Put(ctx, change))

	changes, next, err := s.store.Scan(ctx, 10, "")
	s.Require().NoError(err)
	s.Empty(next)
	s.Require().Len(changes, 1)
	s.Equal(change.ExternalRef, changes[0].ExternalRef)
	s.Equal(change.SecretName, changes[0].SecretName)
	s.Equal(change.Kind, changes[0].Kind)
	s.Equal(change.ActorType, changes[0].ActorType)
}

func (s *PostgresChangeStoreSuite) TestScanPaginates() {
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		s.Require().NoError(s.store.Put(ctx, newChange("secret")))
	}

	first, token, err := s.store.Scan(ctx, 2, "")
	s.Require().NoError(err)
	s.Require().NotEmpty(token)
	s.Len(first, 2)

	rest, token, err := s.store.Scan(ctx, 10, token)
	s.Require().NoError(err)
	s.Empty(token)
	s.Len(rest, 3)
}

func (s *PostgresChangeStoreSuite) TestScanPagesNeverOverlapUnderTiedTimestamps() {
	ctx := context.Background()

	// newChange stamps every row with the same wall-clock second; distinct
	// refs let overlap or skips show up across pages.
	refs := make(map[string]bool)
	for i := 0; i < 6; i++ {
		c := newChange("secret")
		s.Require().NoError(s.store.Put(ctx, c))
	}

	token := ""
	for {
		page, next, err := s.store.Scan(ctx, 2, token)
		s.Require().NoError(err)
		for _, c := range page {
			s.False(refs[c.ExternalRef], "row %s appeared on two pages", c.ExternalRef)
			refs[c.ExternalRef] = true
		}
		if next == "" {
			break
		}
		token = next
	}
	s.Len(refs, 6)
}

func (s *PostgresChangeStoreSuite) TestExpiredChangesAreSweptOnWrite() {
	ctx := context.Background()
	expired := newChange("stale")
	expired.ExpiresAt = time.Now().UTC().Add(-time.Hour)
	s.Require().NoError(s.store.Put(ctx, expired))

	s.Require().NoError(s.store.Put(ctx, newChange("fresh")))

	changes, _, err := s.store.Scan(ctx, 10, "")
	s.Require().NoError(err)
	s.Require().Len(changes, 1)
	s.Equal("fresh", changes[0].SecretName)
}
