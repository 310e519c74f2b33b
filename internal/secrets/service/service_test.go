package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"secretsportal/internal/audit"
	"secretsportal/internal/notify"
	"secretsportal/internal/retry"
	"secretsportal/internal/secrets/models"
	"secretsportal/internal/secrets/store"
	"secretsportal/internal/vault"
	dErrors "secretsportal/pkg/domain-errors"
	"secretsportal/pkg/requestcontext"
)

type fakeDispatcher struct {
	sent []notify.Notification
}

func (d *fakeDispatcher) Send(_ context.Context, n notify.Notification) error {
	d.sent = append(d.sent, n)
	return nil
}

type ServiceSuite struct {
	suite.Suite
	metadata   *store.InMemory
	auditStore *audit.InMemoryStore
	dispatcher *fakeDispatcher
	svc        *Service
	now        time.Time
}

func (s *ServiceSuite) SetupTest() {
	s.metadata = store.NewInMemory()
	s.auditStore = audit.NewInMemoryStore()
	s.dispatcher = &fakeDispatcher{}
	s.now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	exec := retry.New(logger)
	auditor := audit.NewWriter(s.auditStore, exec, audit.WithNow(func() time.Time { return s.now }))
	s.svc = New(s.metadata, vault.NewInMemory("us-east-1"), auditor, s.dispatcher, exec,
		logger, "us-east-1", WithNow(func() time.Time { return s.now }))
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

// ctxFor builds a request context for a user holding the given groups.
func (s *ServiceSuite) ctxFor(userID string, groups ...string) context.Context {
	ctx := requestcontext.WithUserID(context.Background(), userID)
	ctx = requestcontext.WithGroups(ctx, groups)
	ctx = requestcontext.WithClientIP(ctx, "10.0.0.1")
	ctx = requestcontext.WithUserAgent(ctx, "portal-test")
	return ctx
}

func (s *ServiceSuite) createReq(name, app, env string) CreateRequest {
	return CreateRequest{
		Name:               name,
		Application:        app,
		Environment:        env,
		RotationPeriodDays: 90,
		Value:              "hunter2",
	}
}

func (s *ServiceSuite) TestCreate() {
	ctx := s.ctxFor("alice", "payments-developer")

	s.Run("creates a secret and audits it", func() {
		secret, err := s.svc.Create(ctx, s.createReq("db-password", "payments", "NP"))
		s.Require().NoError(err)
		s.NotEmpty(secret.ID)
		s.Equal("db-password", secret.Name)
		s.Equal(models.EnvNonProd, secret.Environment)
		s.Equal(0, secret.DaysSinceRotation)

		stored, err := s.metadata.Get(ctx, secret.ID)
		s.Require().NoError(err)
		s.Contains(stored.ExternalRef, ":secret:db-password-")
		s.Equal("alice", stored.CreatedBy)

		entries, _, err := s.auditStore.QueryByRecord(ctx, secret.ID, 10, "")
		s.Require().NoError(err)
		s.Require().Len(entries, 1)
		s.Equal(audit.ActionCreate, entries[0].Action)
		s.Equal("alice", entries[0].ActorID)
		s.Equal("10.0.0.1", entries[0].IP)
	})

	s.Run("rejects write to an environment outside the grants", func() {
		_, err := s.svc.Create(ctx, s.createReq("prod-key", "payments", "Prod"))
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("rejects invalid rotation period", func() {
		req := s.createReq("key", "payments", "NP")
		req.RotationPeriodDays = 30
		_, err := s.svc.Create(ctx, req)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("rejects missing value", func() {
		req := s.createReq("key", "payments", "NP")
		req.Value = ""
		_, err := s.svc.Create(ctx, req)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *ServiceSuite) TestGet() {
	ctx := s.ctxFor("alice", "payments-developer")
	created, err := s.svc.Create(ctx, s.createReq("db-password", "payments", "NP"))
	s.Require().NoError(err)

	s.Run("returns the secret for a reader", func() {
		got, err := s.svc.Get(ctx, created.ID)
		s.Require().NoError(err)
		s.Equal(created.ID, got.ID)
	})

	s.Run("denies a caller without a matching grant", func() {
		other := s.ctxFor("bob", "billing-developer")
		_, err := s.svc.Get(other, created.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("unknown id yields not found", func() {
		_, err := s.svc.Get(ctx, "nope")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestUpdateValue() {
	admin := s.ctxFor("alice", "secrets-admin")
	created, err := s.svc.Create(admin, s.createReq("db-password", "payments", "Prod"))
	s.Require().NoError(err)
	s.dispatcher.sent = nil

	// Age the record so the rotation state visibly resets.
	aged := s.now.Add(-40 * 24 * time.Hour)
	notified := true
	s.Require().NoError(s.metadata.Update(admin, created.ID, models.MetadataUpdate{
		LastModified:     &aged,
		NotificationSent: &notified,
	}))

	secret, err := s.svc.UpdateValue(admin, created.ID, "correct-horse")
	s.Require().NoError(err)
	s.Equal(0, secret.DaysSinceRotation, "value update resets the rotation clock")

	stored, err := s.metadata.Get(admin, created.ID)
	s.Require().NoError(err)
	s.Equal(s.now, stored.LastModified)
	s.False(stored.NotificationSent, "pending rotation flag clears on rotation")

	entries, _, err := s.auditStore.QueryByRecord(admin, created.ID, 10, "")
	s.Require().NoError(err)
	s.Require().Len(entries, 2)
	actions := []string{entries[0].Action, entries[1].Action}
	s.Contains(actions, audit.ActionCreate)
	s.Contains(actions, audit.ActionUpdate)

	s.Require().Len(s.dispatcher.sent, 1, "prod value changes page someone")
	s.Equal(notify.KindProdChange, s.dispatcher.sent[0].Kind)
	s.Equal(notify.SeverityHigh, s.dispatcher.sent[0].Severity)
}

func (s *ServiceSuite) TestUpdateRotationPeriod() {
	ctx := s.ctxFor("alice", "payments-developer")
	created, err := s.svc.Create(ctx, s.createReq("db-password", "payments", "NP"))
	s.Require().NoError(err)

	secret, err := s.svc.UpdateRotationPeriod(ctx, created.ID, 45)
	s.Require().NoError(err)
	s.Equal(45, secret.RotationPeriodDays)

	entries, _, err := s.auditStore.QueryByRecord(ctx, created.ID, 10, "")
	s.Require().NoError(err)
	s.Require().Len(entries, 2)
	s.Contains([]string{entries[0].Action, entries[1].Action}, audit.ActionRotationChange)

	s.Empty(s.dispatcher.sent, "non-prod rotation changes do not page")
}

func (s *ServiceSuite) TestListFiltersByGrants() {
	admin := s.ctxFor("root", "secrets-admin")
	_, err := s.svc.Create(admin, s.createReq("pay-np", "payments", "NP"))
	s.Require().NoError(err)
	_, err = s.svc.Create(admin, s.createReq("pay-prod", "payments", "Prod"))
	s.Require().NoError(err)
	_, err = s.svc.Create(admin, s.createReq("bill-np", "billing", "NP"))
	s.Require().NoError(err)

	s.Run("developer sees only their non-prod secrets", func() {
		dev := s.ctxFor("alice", "payments-developer")
		secrets, _, err := s.svc.List(dev, "", "", 0, "")
		s.Require().NoError(err)
		s.Require().Len(secrets, 1)
		s.Equal("pay-np", secrets[0].Name)
	})

	s.Run("admin sees everything", func() {
		secrets, _, err := s.svc.List(admin, "", "", 0, "")
		s.Require().NoError(err)
		s.Len(secrets, 3)
	})

	s.Run("app and env filters narrow the page", func() {
		secrets, _, err := s.svc.List(admin, "payments", models.EnvProd, 0, "")
		s.Require().NoError(err)
		s.Require().Len(secrets, 1)
		s.Equal("pay-prod", secrets[0].Name)
	})
}

func (s *ServiceSuite) TestSearch() {
	admin := s.ctxFor("root", "secrets-admin")
	_, err := s.svc.Create(admin, s.createReq("db-password", "payments", "NP"))
	s.Require().NoError(err)
	_, err = s.svc.Create(admin, s.createReq("api-key", "billing", "NP"))
	s.Require().NoError(err)

	secrets, err := s.svc.Search(admin, "PASS")
	s.Require().NoError(err)
	s.Require().Len(secrets, 1)
	s.Equal("db-password", secrets[0].Name)

	_, err = s.svc.Search(admin, "  ")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *ServiceSuite) TestApplicationsAndEnvironments() {
	admin := s.ctxFor("root", "secrets-admin")
	_, err := s.svc.Create(admin, s.createReq("a", "payments", "NP"))
	s.Require().NoError(err)
	_, err = s.svc.Create(admin, s.createReq("b", "payments", "Prod"))
	s.Require().NoError(err)
	_, err = s.svc.Create(admin, s.createReq("c", "billing", "NP"))
	s.Require().NoError(err)

	apps, err := s.svc.Applications(admin)
	s.Require().NoError(err)
	s.ElementsMatch([]string{"payments", "billing"}, apps)

	envs, err := s.svc.Environments(admin)
	s.Require().NoError(err)
	s.ElementsMatch([]string{"NP", "Prod"}, envs)

	dev := s.ctxFor("alice", "billing-developer")
	apps, err = s.svc.Applications(dev)
	s.Require().NoError(err)
	s.Equal([]string{"billing"}, apps)
}

func (s *ServiceSuite) TestAuditLogRequiresReadAccess() {
	ctx := s.ctxFor("alice", "payments-developer")
	created, err := s.svc.Create(ctx, s.createReq("db-password", "payments", "NP"))
	s.Require().NoError(err)

	entries, _, err := s.svc.AuditLog(ctx, created.ID, 10, "")
	s.Require().NoError(err)
	s.Len(entries, 1)

	other := s.ctxFor("bob", "billing-developer")
	_, _, err = s.svc.AuditLog(other, created.ID, 10, "")
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
}
