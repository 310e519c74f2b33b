package store

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"secretsportal/internal/secrets/models"
	"secretsportal/pkg/platform/sentinel"
)

// InMemory is the development and test implementation of MetadataStore.
// Continuation tokens are offsets into a name-sorted snapshot; that keeps
// paging deterministic across calls even though the map itself is unordered.
type InMemory struct {
	mu      sync.RWMutex
	records map[string]models.SecretMetadata
}

func NewInMemory() *InMemory {
	return &InMemory{records: make(map[string]models.SecretMetadata)}
}

func (s *InMemory) Get(ctx context.Context, id string) (models.SecretMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.records[id]
	if !ok {
		return models.SecretMetadata{}, sentinel.ErrNotFound
	}
	return m, nil
}

func (s *InMemory) Create(ctx context.Context, m models.SecretMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[m.ID]; exists {
		return sentinel.ErrConflict
	}
	s.records[m.ID] = m
	return nil
}

func (s *InMemory) Update(ctx context.Context, id string, upd models.MetadataUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.records[id]
	if !ok {
		return sentinel.ErrConditionFailed
	}
	if upd.Name != nil {
		m.Name = *upd.Name
	}
	if upd.RotationPeriodDays != nil {
		m.RotationPeriodDays = *upd.RotationPeriodDays
	}
	if upd.LastModified != nil {
		m.LastModified = *upd.LastModified
	}
	if upd.NotificationSent != nil {
		m.NotificationSent = *upd.NotificationSent
	}
	if upd.LastNotificationAt != nil {
		t := *upd.LastNotificationAt
		m.LastNotificationAt = &t
	}
	if upd.Tags != nil {
		m.Tags = upd.Tags
	}
	s.records[id] = m
	return nil
}

func (s *InMemory) List(ctx context.Context, pageSize int, token string) ([]models.SecretMetadata, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return page(s.snapshot(), pageSize, token)
}

func (s *InMemory) QueryByAppEnv(ctx context.Context, app string, env models.Environment, pageSize int, token string) ([]models.SecretMetadata, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []models.SecretMetadata
	for _, m := range s.snapshot() {
		if m.Application == app && m.Environment == env {
			matched = append(matched, m)
		}
	}
	return page(matched, pageSize, token)
}

// snapshot returns all records sorted by name for stable paging.
func (s *InMemory) snapshot() []models.SecretMetadata {
	all := make([]models.SecretMetadata, 0, len(s.records))
	for _, m := range s.records {
		all = append(all, m)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return all
}

func page(all []models.SecretMetadata, pageSize int, token string) ([]models.SecretMetadata, string, error) {
	offset := 0
	if token != "" {
		n, err := strconv.Atoi(token)
		if err != nil || n < 0 {
			return nil, "", sentinel.ErrConditionFailed
		}
		offset = n
	}
	if offset >= len(all) {
		return nil, "", nil
	}
	if pageSize <= 0 {
		pageSize = len(all) - offset
	}

	end := offset + pageSize
	next := ""
	if end >= len(all) {
		end = len(all)
	} else {
		next = strconv.Itoa(end)
	}
	return all[offset:end], next, nil
}
