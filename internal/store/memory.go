package store

import (
	"context"
	"sync"
)

// Memory is an in-process Store holding at most capacity records. When full,
// the oldest record is evicted.
type Memory struct {
	mu       sync.RWMutex
	capacity int
	records  []RunRecord // oldest first
}

// NewMemory creates a Memory store. capacity < 1 is treated as 1.
func NewMemory(capacity int) *Memory {
	if capacity < 1 {
		capacity = 1
	}
	return &Memory{capacity: capacity}
}

func (m *Memory) Save(_ context.Context, rec RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.records {
		if m.records[i].ID == rec.ID {
			m.records[i] = rec
			return nil
		}
	}

	if len(m.records) == m.capacity {
		copy(m.records, m.records[1:])
		m.records = m.records[:len(m.records)-1]
	}
	m.records = append(m.records, rec)
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, rec := range m.records {
		if rec.ID == id {
			return rec, nil
		}
	}
	return RunRecord{}, ErrNotFound
}

func (m *Memory) List(_ context.Context, limit int) ([]RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 || limit > len(m.records) {
		limit = len(m.records)
	}
	out := make([]RunRecord, 0, limit)
	for i := len(m.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.records[i])
	}
	return out, nil
}

func (m *Memory) Close() {}
