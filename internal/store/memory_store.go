package store

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store. Values are copied on the way in and
// out so callers never share buffers with the store.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (m *MemoryStore) Get(_ context.Context, key string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[key]
	if !ok {
		return Record{}, ErrNotFound
	}
	return Record{Data: copyBytes(rec.Data), Version: rec.Version}, nil
}

func (m *MemoryStore) Put(ctx context.Context, key string, data []byte, expected int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cur, exists := m.records[key]
	switch {
	case expected == 0 && exists:
		return 0, ErrVersionConflict
	case expected > 0 && !exists:
		return 0, ErrNotFound
	case expected > 0 && cur.Version != expected:
		return 0, ErrVersionConflict
	}

	next := expected + 1
	m.records[key] = Record{Data: copyBytes(data), Version: next}
	return next, nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, key)
	return nil
}

// Len returns the number of stored records.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func copyBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
