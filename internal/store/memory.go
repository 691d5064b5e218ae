package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Repository for tests and single-process runs.
// Records are copied on the way in and out.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[Scope]map[string]Record
	now     func() time.Time
}

// NewMemory creates an empty in-memory repository.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		records: map[Scope]map[string]Record{},
		now:     time.Now,
	}
}

// GetState retrieves the record for a scope key.
func (m *MemoryStore) GetState(_ context.Context, scope Scope, key string) (*Record, error) {
	if !scope.Valid() {
		return nil, fmt.Errorf("unknown scope %q", scope)
	}

	m.mu.RLock()
	rec, ok := m.records[scope][key]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	rec.Data = append([]byte(nil), rec.Data...)
	return &rec, nil
}

// PutState creates or replaces the record for a scope key.
func (m *MemoryStore) PutState(_ context.Context, rec *Record) error {
	if !rec.Scope.Valid() {
		return fmt.Errorf("unknown scope %q", rec.Scope)
	}
	if rec.Key == "" {
		return fmt.Errorf("state key is required")
	}

	stored := *rec
	stored.Data = append([]byte(nil), rec.Data...)
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = m.now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.records[rec.Scope] == nil {
		m.records[rec.Scope] = map[string]Record{}
	}
	m.records[rec.Scope][rec.Key] = stored
	return nil
}

// DeleteState removes the record for a scope key.
func (m *MemoryStore) DeleteState(_ context.Context, scope Scope, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records[scope], key)
	return nil
}

// DeleteStaleState removes the record for a scope key if its last write is
// older than ttl.
func (m *MemoryStore) DeleteStaleState(_ context.Context, scope Scope, key string, ttl time.Duration) (bool, error) {
	threshold := m.now().Add(-ttl)

	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[scope][key]
	if !ok || !rec.UpdatedAt.Before(threshold) {
		return false, nil
	}
	delete(m.records[scope], key)
	return true, nil
}

// ListStaleKeys returns keys in scope whose last write is older than ttl.
func (m *MemoryStore) ListStaleKeys(_ context.Context, scope Scope, ttl time.Duration) ([]string, error) {
	threshold := m.now().Add(-ttl)

	m.mu.RLock()
	defer m.mu.RUnlock()

	var keys []string
	for key, rec := range m.records[scope] {
		if rec.UpdatedAt.Before(threshold) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(context.Context) error { return nil }

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }
