//go:build integration

package store_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"secretsportal/internal/secrets/models"
	"secretsportal/internal/secrets/store"
	"secretsportal/pkg/platform/sentinel"
	"secretsportal/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.Postgres
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
	s.Require().NoError(s.store.EnsureSchema(context.Background()))
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "secret_metadata"))
}

func newTestRecord(name, app string, env models.Environment) models.SecretMetadata {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return models.SecretMetadata{
		ID:                 uuid.NewString(),
		Name:               name,
		ExternalRef:        "arn:vault:us-east-1:secret:" + name + "-" + uuid.NewString()[:6],
		Application:        app,
		Environment:        env,
		RotationPeriodDays: 90,
		LastModified:       now,
		Region:             "us-east-1",
		Tags:               map[string]string{"team": "platform", "owners": "alice,bob", "formula": "rate=1.5"},
		CreatedBy:          "alice",
		CreatedAt:          now,
	}
}

func (s *PostgresStoreSuite) TestRoundTrip() {
	ctx := context.Background()
	m := newTestRecord("db-password", "payments", models.EnvNonProd)
	s.Require().NoError(s.store.Create(ctx, m))

	found, err := s.store.Get(ctx, m.ID)
	s.Require().NoError(err)
	s.Equal(m.Name, found.Name)
	s.Equal(m.ExternalRef, found.ExternalRef)
	s.Equal(m.Environment, found.Environment)
	s.Equal(m.Tags, found.Tags)
	s.WithinDuration(m.LastModified, found.LastModified, time.Millisecond)
}

func (s *PostgresStoreSuite) TestDuplicateIDConflicts() {
	ctx := context.Background()
	m := newTestRecord("db-password", "payments", models.EnvNonProd)
	s.Require().NoError(s.store.Create(ctx, m))
	s.Require().ErrorIs(s.store.Create(ctx, m), sentinel.ErrConflict)
}

func (s *PostgresStoreSuite) TestGetUnknownIsNotFound() {
	_, err := s.store.Get(context.Background(), uuid.NewString())
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestPartialUpdate() {
	ctx := context.Background()
	m := newTestRecord("db-password", "payments", models.EnvNonProd)
	s.Require().NoError(s.store.Create(ctx, m))

	days := 45
	notified := true
	s.Require().NoError(s.store.Update(ctx, m.ID, models.MetadataUpdate{
		RotationPeriodDays: &days,
		NotificationSent:   &notified,
	}))

	found, err := s.store.Get(ctx, m.ID)
	s.Require().NoError(err)
	s.Equal(45, found.RotationPeriodDays)
	s.True(found.NotificationSent)
	s.Equal(m.Name, found.Name)
}

func (s *PostgresStoreSuite) TestUpdateMissingRecordFailsCondition() {
	days := 60
	err := s.store.Update(context.Background(), uuid.NewString(),
		models.MetadataUpdate{RotationPeriodDays: &days})
	s.Require().ErrorIs(err, sentinel.ErrConditionFailed)
}

func (s *PostgresStoreSuite) TestListPaginatesWithoutOverlap() {
	ctx := context.Background()
	for i := 0; i < 7; i++ {
		m := newTestRecord(fmt.Sprintf("secret-%d", i), "payments", models.EnvNonProd)
		s.Require().NoError(s.store.Create(ctx, m))
	}

	seen := make(map[string]bool)
	token := ""
	pages := 0
	for {
		page, next, err := s.store.List(ctx, 3, token)
		s.Require().NoError(err)
		for _, m := range page {
			s.False(seen[m.ID], "pages must not overlap")
			seen[m.ID] = true
		}
		pages++
		if next == "" {
			break
		}
		token = next
	}
	s.Len(seen, 7)
	s.Equal(3, pages)
}

func (s *PostgresStoreSuite) TestQueryByAppEnv() {
	ctx := context.Background()
	s.Require().NoError(s.store.Create(ctx, newTestRecord("a", "payments", models.EnvNonProd)))
	s.Require().NoError(s.store.Create(ctx, newTestRecord("b", "payments", models.EnvProd)))
	s.Require().NoError(s.store.Create(ctx, newTestRecord("c", "billing", models.EnvNonProd)))

	matched, _, err := s.store.QueryByAppEnv(ctx, "payments", models.EnvProd, 10, "")
	s.Require().NoError(err)
	s.Require().Len(matched, 1)
	s.Equal("b", matched[0].Name)
}
