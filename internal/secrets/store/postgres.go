package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"secretsportal/internal/secrets/models"
	"secretsportal/pkg/platform/sentinel"
)

// Postgres implements MetadataStore on a relational table. Continuation tokens
// are offsets; the record set is small enough (per-team secrets, not per-user
// data) that keyset pagination would be over-engineering here.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// EnsureSchema creates the metadata table when missing. Called once at startup.
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS secret_metadata (
			id                   TEXT PRIMARY KEY,
			name                 TEXT NOT NULL,
			external_ref         TEXT NOT NULL,
			application          TEXT NOT NULL,
			environment          TEXT NOT NULL,
			rotation_period_days INT NOT NULL,
			last_modified        TIMESTAMPTZ NOT NULL,
			notification_sent    BOOLEAN NOT NULL DEFAULT FALSE,
			last_notification_at TIMESTAMPTZ,
			region               TEXT NOT NULL DEFAULT '',
			tags                 TEXT NOT NULL DEFAULT '',
			created_by           TEXT NOT NULL DEFAULT '',
			created_at           TIMESTAMPTZ NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("ensure secret_metadata schema: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_secret_metadata_app_env ON secret_metadata (application, environment)`)
	if err != nil {
		return fmt.Errorf("ensure secret_metadata index: %w", err)
	}
	return nil
}

const metadataColumns = `id, name, external_ref, application, environment, rotation_period_days,
	last_modified, notification_sent, last_notification_at, region, tags, created_by, created_at`

func (s *Postgres) Get(ctx context.Context, id string) (models.SecretMetadata, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+metadataColumns+` FROM secret_metadata WHERE id = $1`, id)
	m, err := scanMetadata(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.SecretMetadata{}, sentinel.ErrNotFound
		}
		return models.SecretMetadata{}, classify(err, "get secret metadata")
	}
	return m, nil
}

func (s *Postgres) Create(ctx context.Context, m models.SecretMetadata) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO secret_metadata (`+metadataColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		m.ID, m.Name, m.ExternalRef, m.Application, string(m.Environment), m.RotationPeriodDays,
		m.LastModified, m.NotificationSent, m.LastNotificationAt, m.Region, encodeTags(m.Tags),
		m.CreatedBy, m.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return classify(err, "create secret metadata")
	}
	return nil
}

func (s *Postgres) Update(ctx context.Context, id string, upd models.MetadataUpdate) error {
	sets := make([]string, 0, 6)
	args := make([]any, 0, 7)
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if upd.Name != nil {
		add("name", *upd.Name)
	}
	if upd.RotationPeriodDays != nil {
		add("rotation_period_days", *upd.RotationPeriodDays)
	}
	if upd.LastModified != nil {
		add("last_modified", *upd.LastModified)
	}
	if upd.NotificationSent != nil {
		add("notification_sent", *upd.NotificationSent)
	}
	if upd.LastNotificationAt != nil {
		add("last_notification_at", *upd.LastNotificationAt)
	}
	if upd.Tags != nil {
		add("tags", encodeTags(upd.Tags))
	}
	if len(sets) == 0 {
		return nil
	}

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE secret_metadata SET %s WHERE id = $%d`,
		strings.Join(sets, ", "), len(args))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return classify(err, "update secret metadata")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update secret metadata: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrConditionFailed
	}
	return nil
}

func (s *Postgres) List(ctx context.Context, pageSize int, token string) ([]models.SecretMetadata, string, error) {
	return s.query(ctx, `SELECT `+metadataColumns+` FROM secret_metadata ORDER BY name`, nil, pageSize, token)
}

func (s *Postgres) QueryByAppEnv(ctx context.Context, app string, env models.Environment, pageSize int, token string) ([]models.SecretMetadata, string, error) {
	return s.query(ctx,
		`SELECT `+metadataColumns+` FROM secret_metadata WHERE application = $1 AND environment = $2 ORDER BY name`,
		[]any{app, string(env)}, pageSize, token)
}

func (s *Postgres) query(ctx context.Context, base string, args []any, pageSize int, token string) ([]models.SecretMetadata, string, error) {
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

	// Fetch one extra row to know whether a continuation token is needed.
	args = append(args, pageSize+1, offset)
	query := fmt.Sprintf("%s LIMIT $%d OFFSET $%d", base, len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, "", classify(err, "list secret metadata")
	}
	defer rows.Close()

	var items []models.SecretMetadata
	for rows.Next() {
		m, err := scanMetadata(rows)
		if err != nil {
			return nil, "", fmt.Errorf("scan secret metadata: %w", err)
		}
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, "", classify(err, "list secret metadata")
	}

	next := ""
	if len(items) > pageSize {
		items = items[:pageSize]
		next = strconv.Itoa(offset + pageSize)
	}
	return items, next, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMetadata(row rowScanner) (models.SecretMetadata, error) {
	var (
		m        models.SecretMetadata
		env      string
		tags     string
		notifyAt sql.NullTime
	)
	err := row.Scan(&m.ID, &m.Name, &m.ExternalRef, &m.Application, &env, &m.RotationPeriodDays,
		&m.LastModified, &m.NotificationSent, &notifyAt, &m.Region, &tags, &m.CreatedBy, &m.CreatedAt)
	if err != nil {
		return models.SecretMetadata{}, err
	}
	m.Environment = models.Environment(env)
	m.Tags = decodeTags(tags)
	if notifyAt.Valid {
		t := notifyAt.Time
		m.LastNotificationAt = &t
	}
	return m, nil
}

// Tags are stored as a JSON object so keys and values may contain any
// character the caller sends.
func encodeTags(tags map[string]string) string {
	if len(tags) == 0 {
		return ""
	}
	raw, err := json.Marshal(tags)
	if err != nil {
		return ""
	}
	return string(raw)
}

func decodeTags(raw string) map[string]string {
	if raw == "" {
		return nil
	}
	var tags map[string]string
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return nil
	}
	return tags
}

// classify maps driver errors onto sentinels the retry executor understands.
// Postgres class 53 covers insufficient-resources conditions, the closest
// relational analogue to provisioned-throughput throttling.
func classify(err error, op string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && strings.HasPrefix(string(pqErr.Code), "53") {
		return fmt.Errorf("%s: %w", op, sentinel.ErrThrottled)
	}
	return fmt.Errorf("%s: %w", op, err)
}
