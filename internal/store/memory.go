package store

import (
	"context"
	"sync"
	"time"
)

type memoryRecord struct {
	value     string
	updatedAt time.Time
}

// MemoryStore implements Store in process memory.
// Records are lost when the process exits.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]map[string]memoryRecord
	now     func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]map[string]memoryRecord),
		now:     time.Now,
	}
}

// Get retrieves a record.
func (m *MemoryStore) Get(_ context.Context, scope, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[scope][key]
	return rec.value, ok, nil
}

// Set creates or replaces a record.
func (m *MemoryStore) Set(_ context.Context, scope, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[scope]; !ok {
		m.records[scope] = make(map[string]memoryRecord)
	}
	m.records[scope][key] = memoryRecord{value: value, updatedAt: m.now()}
	return nil
}

// Delete removes records.
func (m *MemoryStore) Delete(_ context.Context, scope string, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	recs, ok := m.records[scope]
	if !ok {
		return nil
	}
	for _, k := range keys {
		delete(recs, k)
	}
	if len(recs) == 0 {
		delete(m.records, scope)
	}
	return nil
}

// DeleteStale removes records older than retention.
func (m *MemoryStore) DeleteStale(_ context.Context, retention time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	threshold := m.now().Add(-retention)
	var deleted int64
	for scope, recs := range m.records {
		for k, rec := range recs {
			if rec.updatedAt.Before(threshold) {
				delete(recs, k)
				deleted++
			}
		}
		if len(recs) == 0 {
			delete(m.records, scope)
		}
	}
	return deleted, nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(context.Context) error { return nil }

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*SQLiteStore)(nil)
)
