package storage

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store. It is used by tests and by the
// "memory" backend, and can be told to fail for error-path tests.
type MemoryStore struct {
	mu      sync.RWMutex
	data    map[string]string
	setErr  error
	getErr  error
	delErr  error
	setKeys []string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]string)}
}

func (m *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.getErr != nil {
		return "", m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *MemoryStore) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = value
	m.setKeys = append(m.setKeys, key)
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.delErr != nil {
		return m.delErr
	}
	delete(m.data, key)
	return nil
}

// SetGetError configures the store to fail every Get with err.
func (m *MemoryStore) SetGetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getErr = err
}

// SetSetError configures the store to fail every Set with err.
func (m *MemoryStore) SetSetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setErr = err
}

// SetDeleteError configures the store to fail every Delete with err.
func (m *MemoryStore) SetDeleteError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delErr = err
}

// WriteCount returns how many successful Set calls were made for key.
func (m *MemoryStore) WriteCount(key string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, k := range m.setKeys {
		if k == key {
			n++
		}
	}
	return n
}
