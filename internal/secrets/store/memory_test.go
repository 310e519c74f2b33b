package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"secretsportal/internal/secrets/models"
	"secretsportal/pkg/platform/sentinel"
)

type MemoryStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
}

func (s *MemoryStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}

func (s *MemoryStoreSuite) newRecord(name, app string, env models.Environment) models.SecretMetadata {
	now := time.Now().UTC().Truncate(time.Second)
	return models.SecretMetadata{
		ID:                 uuid.NewString(),
		Name:               name,
		ExternalRef:        "arn:vault:us-east-1:secret:" + name,
		Application:        app,
		Environment:        env,
		RotationPeriodDays: 90,
		LastModified:       now,
		Region:             "us-east-1",
		CreatedBy:          "alice",
		CreatedAt:          now,
	}
}

func (s *MemoryStoreSuite) TestCreateAndGet() {
	s.Run("creates and retrieves a record", func() {
		m := s.newRecord("db-password", "payments", models.EnvNonProd)
		s.Require().NoError(s.store.Create(s.ctx, m))

		found, err := s.store.Get(s.ctx, m.ID)
		s.Require().NoError(err)
		s.Equal(m, found)
	})

	s.Run("returns ErrNotFound for unknown id", func() {
		_, err := s.store.Get(s.ctx, uuid.NewString())
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("rejects duplicate id", func() {
		m := s.newRecord("api-key", "payments", models.EnvNonProd)
		s.Require().NoError(s.store.Create(s.ctx, m))
		s.Require().ErrorIs(s.store.Create(s.ctx, m), sentinel.ErrConflict)
	})
}

func (s *MemoryStoreSuite) TestUpdate() {
	s.Run("applies only non-nil fields", func() {
		m := s.newRecord("db-password", "payments", models.EnvNonProd)
		s.Require().NoError(s.store.Create(s.ctx, m))

		days := 45
		notified := true
		s.Require().NoError(s.store.Update(s.ctx, m.ID, models.MetadataUpdate{
			RotationPeriodDays: &days,
			NotificationSent:   &notified,
		}))

		found, err := s.store.Get(s.ctx, m.ID)
		s.Require().NoError(err)
		s.Equal(45, found.RotationPeriodDays)
		s.True(found.NotificationSent)
		s.Equal(m.Name, found.Name, "untouched fields survive")
		s.Equal(m.LastModified, found.LastModified)
	})

	s.Run("returns ErrConditionFailed for missing record", func() {
		days := 60
		err := s.store.Update(s.ctx, uuid.NewString(), models.MetadataUpdate{RotationPeriodDays: &days})
		s.Require().ErrorIs(err, sentinel.ErrConditionFailed)
	})
}

func (s *MemoryStoreSuite) TestListPagination() {
	for i := 0; i < 5; i++ {
		m := s.newRecord(fmt.Sprintf("secret-%d", i), "payments", models.EnvNonProd)
		s.Require().NoError(s.store.Create(s.ctx, m))
	}

	first, token, err := s.store.List(s.ctx, 2, "")
	s.Require().NoError(err)
	s.Require().NotEmpty(token)
	s.Len(first, 2)

	second, token, err := s.store.List(s.ctx, 2, token)
	s.Require().NoError(err)
	s.Require().NotEmpty(token)
	s.Len(second, 2)

	third, token, err := s.store.List(s.ctx, 2, token)
	s.Require().NoError(err)
	s.Empty(token)
	s.Len(third, 1)

	seen := make(map[string]bool)
	for _, page := range [][]models.SecretMetadata{first, second, third} {
		for _, m := range page {
			s.False(seen[m.ID], "pages must not overlap")
			seen[m.ID] = true
		}
	}
	s.Len(seen, 5)
}

func (s *MemoryStoreSuite) TestQueryByAppEnv() {
	s.Require().NoError(s.store.Create(s.ctx, s.newRecord("a", "payments", models.EnvNonProd)))
	s.Require().NoError(s.store.Create(s.ctx, s.newRecord("b", "payments", models.EnvProd)))
	s.Require().NoError(s.store.Create(s.ctx, s.newRecord("c", "billing", models.EnvNonProd)))

	matched, token, err := s.store.QueryByAppEnv(s.ctx, "payments", models.EnvNonProd, 10, "")
	s.Require().NoError(err)
	s.Empty(token)
	s.Require().Len(matched, 1)
	s.Equal("a", matched[0].Name)
}

func (s *MemoryStoreSuite) TestMalformedTokenRejected() {
	_, _, err := s.store.List(s.ctx, 10, "not-a-number")
	s.Require().ErrorIs(err, sentinel.ErrConditionFailed)
}
