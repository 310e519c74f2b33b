package store

import (
	"context"

	"secretsportal/internal/secrets/models"
)

// MetadataStore is interface-driven to keep the domain logic testable and to
// allow swapping in-memory and postgres persistence without rewiring business
// code. Pagination uses opaque continuation tokens: pass the returned token
// back to resume, empty token means done.
type MetadataStore interface {
	Get(ctx context.Context, id string) (models.SecretMetadata, error)

	// Create is unique-id-conditioned: it fails with sentinel.ErrConflict if
	// the id already exists.
	Create(ctx context.Context, m models.SecretMetadata) error

	// Update is existence-conditioned: it fails with sentinel.ErrConditionFailed
	// if the record no longer exists.
	Update(ctx context.Context, id string, upd models.MetadataUpdate) error

	List(ctx context.Context, pageSize int, token string) ([]models.SecretMetadata, string, error)

	QueryByAppEnv(ctx context.Context, app string, env models.Environment, pageSize int, token string) ([]models.SecretMetadata, string, error)
}
