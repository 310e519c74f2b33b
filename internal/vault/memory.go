package vault

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"secretsportal/pkg/platform/sentinel"
)

// InMemory is the development and test vault. External references follow the
// same name-scoped shape as real vault resource names so reference parsing in
// the change tracker exercises realistic input.
type InMemory struct {
	mu      sync.RWMutex
	region  string
	secrets map[string]memorySecret
}

type memorySecret struct {
	name      string
	value     string
	createdAt time.Time
}

func NewInMemory(region string) *InMemory {
	return &InMemory{region: region, secrets: make(map[string]memorySecret)}
}

func (v *InMemory) Describe(ctx context.Context, externalRef string) (Description, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	s, ok := v.secrets[externalRef]
	if !ok {
		return Description{}, sentinel.ErrNotFound
	}
	return Description{
		ExternalRef: externalRef,
		Name:        s.name,
		CreatedAt:   s.createdAt.Format(time.RFC3339),
	}, nil
}

func (v *InMemory) Create(ctx context.Context, name, value string, tags map[string]string) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	ref := fmt.Sprintf("arn:vault:%s:secret:%s-%s", v.region, name, uuid.NewString()[:6])
	v.secrets[ref] = memorySecret{name: name, value: value, createdAt: time.Now()}
	return ref, nil
}

func (v *InMemory) PutValue(ctx context.Context, externalRef, value string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	s, ok := v.secrets[externalRef]
	if !ok {
		return sentinel.ErrNotFound
	}
	s.value = value
	v.secrets[externalRef] = s
	return nil
}
