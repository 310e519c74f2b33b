package audit

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"secretsportal/pkg/platform/sentinel"
)

// InMemoryStore keeps per-record entries sorted most-recent-first on insert so
// QueryByRecord honors the same ordering contract as the real store's sort
// key. The scan slice is append-ordered, deliberately NOT time-ordered, to
// mimic unordered store scans.
type InMemoryStore struct {
	mu       sync.RWMutex
	byRecord map[string][]Entry
	all      []Entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{byRecord: make(map[string][]Entry)}
}

func (s *InMemoryStore) Put(ctx context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := append(s.byRecord[e.RecordKey], e)
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	s.byRecord[e.RecordKey] = entries
	s.all = append(s.all, e)
	return nil
}

func (s *InMemoryStore) QueryByRecord(ctx context.Context, recordKey string, pageSize int, token string) ([]Entry, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return pageEntries(s.byRecord[recordKey], pageSize, token)
}

func (s *InMemoryStore) Scan(ctx context.Context, pageSize int, token string) ([]Entry, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return pageEntries(s.all, pageSize, token)
}

func pageEntries(all []Entry, pageSize int, token string) ([]Entry, string, error) {
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
	page := make([]Entry, end-offset)
	copy(page, all[offset:end])
	return page, next, nil
}
