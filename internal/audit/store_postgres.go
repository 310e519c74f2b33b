package audit

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

// PostgresStore persists audit entries. Expired rows are swept opportunistically
// on write rather than by a background job, standing in for store-side TTL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS audit_entries (
			seq        BIGSERIAL PRIMARY KEY,
			record_key TEXT NOT NULL,
			ts         TIMESTAMPTZ NOT NULL,
			actor_id   TEXT NOT NULL,
			action     TEXT NOT NULL,
			ip         TEXT NOT NULL DEFAULT '',
			user_agent TEXT NOT NULL DEFAULT '',
			success    BOOLEAN NOT NULL,
			details    TEXT NOT NULL DEFAULT '',
			expires_at TIMESTAMPTZ NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("ensure audit_entries schema: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_audit_entries_record_ts ON audit_entries (record_key, ts DESC)`)
	if err != nil {
		return fmt.Errorf("ensure audit_entries index: %w", err)
	}
	return nil
}

func (s *PostgresStore) Put(ctx context.Context, e Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_entries (record_key, ts, actor_id, action, ip, user_agent, success, details, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.RecordKey, e.Timestamp, e.ActorID, e.Action, e.IP, e.UserAgent, e.Success, e.Details, e.ExpiresAt,
	)
	if err != nil {
		return classifyAuditErr(err, "put audit entry")
	}
	_, _ = s.db.ExecContext(ctx, `DELETE FROM audit_entries WHERE expires_at < now()`)
	return nil
}

func (s *PostgresStore) QueryByRecord(ctx context.Context, recordKey string, pageSize int, token string) ([]Entry, string, error) {
	return s.query(ctx,
		`SELECT record_key, ts, actor_id, action, ip, user_agent, success, details, expires_at
		 FROM audit_entries WHERE record_key = $1 ORDER BY ts DESC, seq DESC`,
		[]any{recordKey}, pageSize, token)
}

func (s *PostgresStore) Scan(ctx context.Context, pageSize int, token string) ([]Entry, string, error) {
	// Scan order is not part of the contract, but offset paging needs a
	// deterministic row order or consecutive pages can overlap.
	return s.query(ctx,
		`SELECT record_key, ts, actor_id, action, ip, user_agent, success, details, expires_at
		 FROM audit_entries ORDER BY seq`,
		nil, pageSize, token)
}

func (s *PostgresStore) query(ctx context.Context, base string, args []any, pageSize int, token string) ([]Entry, string, error) {
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

	args = append(args, pageSize+1, offset)
	query := fmt.Sprintf("%s LIMIT $%d OFFSET $%d", base, len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, "", classifyAuditErr(err, "query audit entries")
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.RecordKey, &e.Timestamp, &e.ActorID, &e.Action, &e.IP,
			&e.UserAgent, &e.Success, &e.Details, &e.ExpiresAt); err != nil {
			return nil, "", fmt.Errorf("scan audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, "", classifyAuditErr(err, "query audit entries")
	}

	next := ""
	if len(entries) > pageSize {
		entries = entries[:pageSize]
		next = strconv.Itoa(offset + pageSize)
	}
	return entries, next, nil
}

func classifyAuditErr(err error, op string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, sentinel.ErrNotFound)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && strings.HasPrefix(string(pqErr.Code), "53") {
		return fmt.Errorf("%s: %w", op, sentinel.ErrThrottled)
	}
	return fmt.Errorf("%s: %w", op, err)
}
