package audit

import (
	"context"
	"sort"
	"time"

	"secretsportal/internal/retry"
)

// Retention is how long the store keeps an entry before expiring it.
const Retention = 90 * 24 * time.Hour

// Store is the persistence contract for audit entries.
//
// QueryByRecord order is a hard contract of the store's sort key: entries come
// back most-recent-first without client-side re-sorting. Scan order is not
// guaranteed; the Writer sorts scanned pages itself.
type Store interface {
	Put(ctx context.Context, e Entry) error
	QueryByRecord(ctx context.Context, recordKey string, pageSize int, token string) ([]Entry, string, error)
	Scan(ctx context.Context, pageSize int, token string) ([]Entry, string, error)
}

// Writer is the append-only audit trail. Every store call goes through the
// retry executor; failures propagate so callers decide whether a failed audit
// write is fatal to the triggering action.
type Writer struct {
	store Store
	exec  *retry.Executor
	now   func() time.Time
}

type WriterOption func(*Writer)

// WithNow replaces the clock, for tests.
func WithNow(now func() time.Time) WriterOption {
	return func(w *Writer) { w.now = now }
}

func NewWriter(store Store, exec *retry.Executor, opts ...WriterOption) *Writer {
	w := &Writer{store: store, exec: exec, now: time.Now}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Append persists one entry with the retention TTL applied. There is no dedup
// key: re-invocation duplicates rows.
func (w *Writer) Append(ctx context.Context, e Entry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = w.now()
	}
	e.ExpiresAt = w.now().Add(Retention)
	return w.exec.Do(ctx, "append audit entry", func(ctx context.Context) error {
		return w.store.Put(ctx, e)
	})
}

type entryPage struct {
	entries []Entry
	next    string
}

// QueryByRecord returns one page of a record's entries, most recent first.
func (w *Writer) QueryByRecord(ctx context.Context, recordKey string, pageSize int, token string) ([]Entry, string, error) {
	page, err := retry.Values(ctx, w.exec, "query audit entries", func(ctx context.Context) (entryPage, error) {
		entries, next, err := w.store.QueryByRecord(ctx, recordKey, pageSize, token)
		return entryPage{entries: entries, next: next}, err
	})
	if err != nil {
		return nil, "", err
	}
	return page.entries, page.next, nil
}

// ScanAll returns one page across all records. The store does not guarantee
// scan order, so the page is sorted by timestamp descending before returning.
func (w *Writer) ScanAll(ctx context.Context, pageSize int, token string) ([]Entry, string, error) {
	page, err := retry.Values(ctx, w.exec, "scan audit entries", func(ctx context.Context) (entryPage, error) {
		entries, next, err := w.store.Scan(ctx, pageSize, token)
		return entryPage{entries: entries, next: next}, err
	})
	if err != nil {
		return nil, "", err
	}
	sort.Slice(page.entries, func(i, j int) bool {
		return page.entries[i].Timestamp.After(page.entries[j].Timestamp)
	})
	return page.entries, page.next, nil
}
