// Package vault abstracts the external secret-value store. The portal never
// holds values beyond the write path; it keys everything by the vault's own
// identifier (the external reference).
package vault

import "context"

// Description is the vault's own metadata for a stored secret.
type Description struct {
	ExternalRef string
	Name        string
	CreatedAt   string
}

// Vault is the describe/create/put-value contract consumed by the secrets
// service. Implementations wrap the real secret manager; failures are
// external-service errors and propagate on write-critical paths.
type Vault interface {
	Describe(ctx context.Context, externalRef string) (Description, error)

	// Create stores a new secret value and returns the external reference the
	// vault assigned to it.
	Create(ctx context.Context, name, value string, tags map[string]string) (string, error)

	PutValue(ctx context.Context, externalRef, value string) error
}
