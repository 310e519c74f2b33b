package tracker

import (
	"context"
	"strconv"
	"sync"

	"secretsportal/pkg/platform/sentinel"
)

// ConsoleChangeStore persists external change records. Scan is unordered; the
// reports layer sorts what it shows.
type ConsoleChangeStore interface {
	Put(ctx context.Context, c ConsoleChange) error
	Scan(ctx context.Context, pageSize int, token string) ([]ConsoleChange, string, error)
}

// InMemoryChangeStore is the development and test implementation.
type InMemoryChangeStore struct {
	mu      sync.RWMutex
	changes []ConsoleChange
}

func NewInMemoryChangeStore() *InMemoryChangeStore {
	return &InMemoryChangeStore{}
}

func (s *InMemoryChangeStore) Put(ctx context.Context, c ConsoleChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changes = append(s.changes, c)
	return nil
}

func (s *InMemoryChangeStore) Scan(ctx context.Context, pageSize int, token string) ([]ConsoleChange, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	offset := 0
	if token != "" {
		n, err := strconv.Atoi(token)
		if err != nil || n < 0 {
			return nil, "", sentinel.ErrConditionFailed
		}
		offset = n
	}
	if offset >= len(s.changes) {
		return nil, "", nil
	}
	if pageSize <= 0 {
		pageSize = len(s.changes) - offset
	}

	end := offset + pageSize
	next := ""
	if end >= len(s.changes) {
		end = len(s.changes)
	} else {
		next = strconv.Itoa(end)
	}
	page := make([]ConsoleChange, end-offset)
	copy(page, s.changes[offset:end])
	return page, next, nil
}
