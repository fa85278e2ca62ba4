package record

import (
	"context"
	"maps"
	"sync"
	"time"
)

// MemoryStore is an in-memory store for testing.
// Data is lost when the process exits.
type MemoryStore struct {
	mu     sync.RWMutex
	data   *snapshot
	closed bool
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: newSnapshot()}
}

// SaveTask implements Store.
func (m *MemoryStore) SaveTask(_ context.Context, task Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	task.Filters = normalizeMap(task.Filters)
	m.data.tasks[task.ID] = task
	return nil
}

// SaveEvent implements Store.
func (m *MemoryStore) SaveEvent(_ context.Context, evt EventRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	evt.Data = normalize(evt.Data)
	evt.Metadata = normalizeMap(evt.Metadata)
	m.data.events[evt.ID] = evt
	return nil
}

// StartExecution implements Store.
func (m *MemoryStore) StartExecution(_ context.Context, exec Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	exec.Status = StatusRunning
	exec.Context = normalizeMap(exec.Context)
	m.data.execs[exec.ID] = exec
	return nil
}

// CompleteExecution implements Store.
func (m *MemoryStore) CompleteExecution(_ context.Context, id string, result any, errMsg string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	exec, task, taskFound, err := m.data.complete(id, result, errMsg, at)
	if err != nil {
		return err
	}
	m.data.execs[id] = exec
	if taskFound {
		m.data.tasks[task.ID] = task
	}
	return nil
}

// ActiveTasks implements Store.
func (m *MemoryStore) ActiveTasks(_ context.Context, eventName, namespace string) ([]Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}
	tasks := m.data.activeTasks(eventName, namespace)
	for i := range tasks {
		tasks[i].Filters = maps.Clone(tasks[i].Filters)
	}
	return tasks, nil
}

// History implements Store.
func (m *MemoryStore) History(_ context.Context, eventName string, limit int) ([]HistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}
	return m.data.history(eventName, limit), nil
}

// Stats implements Store.
func (m *MemoryStore) Stats(_ context.Context, since time.Time) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return Stats{}, ErrStoreClosed
	}
	return m.data.stats(since, time.Now()), nil
}

// Cleanup implements Store.
func (m *MemoryStore) Cleanup(_ context.Context, before time.Time) (CleanupResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return CleanupResult{}, ErrStoreClosed
	}
	plan := m.data.planCleanup(before)
	for _, id := range plan.execs {
		delete(m.data.execs, id)
	}
	for _, id := range plan.events {
		delete(m.data.events, id)
	}
	for _, id := range plan.tasks {
		delete(m.data.tasks, id)
	}
	return plan.result(), nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.data = newSnapshot()
	return nil
}
