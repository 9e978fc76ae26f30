package snapshot

import (
	"context"
	"encoding/json"
	"sync"
)

// MemoryStore is a Store that lives for the process only.
type MemoryStore struct {
	mu        sync.Mutex
	snapshots map[string]json.RawMessage
	runs      map[string][]Run
}

// NewMemory returns an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		snapshots: map[string]json.RawMessage{},
		runs:      map[string][]Run{},
	}
}

func (m *MemoryStore) Load(ctx context.Context, job string) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.snapshots[job]
	if !ok {
		return nil, nil
	}
	return append(json.RawMessage(nil), data...), nil
}

func (m *MemoryStore) Save(ctx context.Context, job string, snapshot json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[job] = append(json.RawMessage(nil), snapshot...)
	return nil
}

func (m *MemoryStore) RecordRun(ctx context.Context, run Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.Job] = append(m.runs[run.Job], run)
	return nil
}

func (m *MemoryStore) ListRuns(ctx context.Context, job string, limit int) ([]Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.runs[job]
	var out []Run
	for i := len(all) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, all[i])
	}
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }
