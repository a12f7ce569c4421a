package storage

import (
	"bytes"
	"fmt"
	"sync"

	"golang.org/x/exp/slices"
)

// MemoryStore is a map-backed KeyValueStore.
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[string][]byte
	closed bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (m *MemoryStore) Get(key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, errClosed
	}
	v, ok := m.data[string(key)]
	if !ok {
		return nil, fmt.Errorf("Get %x: %w", key, ErrNotFound)
	}
	return slices.Clone(v), nil
}

func (m *MemoryStore) Has(key []byte) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return false, errClosed
	}
	_, ok := m.data[string(key)]
	return ok, nil
}

func (m *MemoryStore) Put(key []byte, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errClosed
	}
	m.data[string(key)] = slices.Clone(value)
	return nil
}

func (m *MemoryStore) Delete(key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errClosed
	}
	delete(m.data, string(key))
	return nil
}

// Write applies the batch under a single lock acquisition.
func (m *MemoryStore) Write(batch *WriteBatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errClosed
	}
	batch.Replay(
		func(k, v []byte) { m.data[string(k)] = v },
		func(k []byte) { delete(m.data, string(k)) },
	)
	return nil
}

// GetWithPrefix returns all key-value pairs with the given prefix, sorted by key.
func (m *MemoryStore) GetWithPrefix(prefix []byte) ([][2][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, errClosed
	}
	var results [][2][]byte
	for k, v := range m.data {
		if bytes.HasPrefix([]byte(k), prefix) {
			results = append(results, [2][]byte{[]byte(k), slices.Clone(v)})
		}
	}
	slices.SortFunc(results, func(a, b [2][]byte) int {
		return bytes.Compare(a[0], b[0])
	})
	return results, nil
}

// Keys returns a sorted snapshot of every key.
func (m *MemoryStore) Keys() [][]byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([][]byte, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, []byte(k))
	}
	slices.SortFunc(keys, bytes.Compare)
	return keys
}

func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
