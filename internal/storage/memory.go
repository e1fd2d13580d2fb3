package storage

import (
	"context"
	"sync"
)

// MemStore is an in-memory JobStore used when no database is configured.
// State is lost on restart; in a multi-replica deployment the Postgres
// store should be used instead.
type MemStore struct {
	mu   sync.RWMutex
	jobs map[string]RenderJob
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{jobs: make(map[string]RenderJob)}
}

func (m *MemStore) UpsertJob(_ context.Context, job RenderJob) error {
	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()
	return nil
}

func (m *MemStore) GetJob(_ context.Context, id string) (*RenderJob, bool, error) {
	m.mu.RLock()
	job, found := m.jobs[id]
	m.mu.RUnlock()
	if !found {
		return nil, false, nil
	}
	return &job, true, nil
}

func (m *MemStore) Ping(context.Context) error { return nil }
