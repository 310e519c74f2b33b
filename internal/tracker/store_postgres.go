package tracker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"secretsportal/pkg/platform/sentinel"
)

// PostgresChangeStore persists console change records.
type PostgresChangeStore struct {
	db *sql.DB
}

func NewPostgresChangeStore(db *sql.DB) *PostgresChangeStore {
	return &PostgresChangeStore{db: db}
}

func (s *PostgresChangeStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS console_changes (
			seq          BIGSERIAL PRIMARY KEY,
			external_ref TEXT NOT NULL,
			ts           TIMESTAMPTZ NOT NULL,
			secret_name  TEXT NOT NULL,
			application  TEXT NOT NULL,
			environment  TEXT NOT NULL,
			actor_id     TEXT NOT NULL,
			actor_type   TEXT NOT NULL,
			action       TEXT NOT NULL,
			event_kind   TEXT NOT NULL,
			ip           TEXT NOT NULL DEFAULT '',
			user_agent   TEXT NOT NULL DEFAULT '',
			region       TEXT NOT NULL DEFAULT '',
			expires_at   TIMESTAMPTZ NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("ensure console_changes schema: %w", err)
	}
	return nil
}

func (s *PostgresChangeStore) Put(ctx context.Context, c ConsoleChange) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO console_changes (external_ref, ts, secret_name, application, environment,
			actor_id, actor_type, action, event_kind, ip, user_agent, region, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		c.ExternalRef, c.Timestamp, c.SecretName, c.Application, c.Environment,
		c.ActorID, c.ActorType, c.Action, c.Kind, c.IP, c.UserAgent, c.Region, c.ExpiresAt,
	)
	if err != nil {
		return classifyChangeErr(err, "put console change")
	}
	_, _ = s.db.ExecContext(ctx, `DELETE FROM console_changes WHERE expires_at < now()`)
	return nil
}

func (s *PostgresChangeStore) Scan(ctx context.Context, pageSize int, token string) ([]ConsoleChange, string, error) {
	offset := 0
	if token != "" {
		n, err := strconv.Atoi(token)
		if err != nil || n < 0 {
			return nil, "", sentinel.ErrConditionFailed
		}
		offset = n
	}
	if pageSize <= 0 {
		pageSize = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT external_ref, ts, secret_name, application, environment, actor_id, actor_type,
			action, event_kind, ip, user_agent, region, expires_at
		FROM console_changes ORDER BY seq LIMIT $1 OFFSET $2`, pageSize+1, offset)
	if err != nil {
		return nil, "", classifyChangeErr(err, "scan console changes")
	}
	defer rows.Close()

	var changes []ConsoleChange
	for rows.Next() {
		var c ConsoleChange
		if err := rows.Scan(&c.ExternalRef, &c.Timestamp, &c.SecretName, &c.Application,
			&c.Environment, &c.ActorID, &c.ActorType, &c.Action, &c.Kind, &c.IP,
			&c.UserAgent, &c.Region, &c.ExpiresAt); err != nil {
			return nil, "", fmt.Errorf("scan console change: %w", err)
		}
		changes = append(changes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, "", classifyChangeErr(err, "scan console changes")
	}

	next := ""
	if len(changes) > pageSize {
		changes = changes[:pageSize]
		next = strconv.Itoa(offset + pageSize)
	}
	return changes, next, nil
}

func classifyChangeErr(err error, op string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, sentinel.ErrNotFound)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && strings.HasPrefix(string(pqErr.Code), "53") {
		return fmt.Errorf("%s: %w", op, sentinel.ErrThrottled)
	}
	return fmt.Errorf("%s: %w", op, err)
}
