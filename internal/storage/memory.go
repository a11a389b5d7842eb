package storage

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"sync"
)

// MemoryStore implements Store in memory.
// Uses sync.RWMutex for thread-safe concurrent access
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string][]byte),
	}
}

// Put reads the contents before taking the lock, so a slow writer never
// blocks readers.
func (m *MemoryStore) Put(name string, r io.Reader, size int64) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if size < 0 {
		return fmt.Errorf("put %s: negative size %d", name, size)
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return fmt.Errorf("put %s: %w", name, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[name] = buf
	return nil
}

// Open returns a reader over a snapshot of the contents.
func (m *MemoryStore) Open(name string) (io.ReadCloser, int64, error) {
	if err := ValidateName(name); err != nil {
		return nil, 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, exists := m.data[name]
	if !exists {
		return nil, 0, ErrFileNotFound
	}
	return io.NopCloser(bytes.NewReader(value)), int64(len(value)), nil
}

// Delete removes name.
func (m *MemoryStore) Delete(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.data[name]; !exists {
		return ErrFileNotFound
	}
	delete(m.data, name)
	return nil
}

// List returns the held names in sorted order.
func (m *MemoryStore) List() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.data))
	for name := range m.data {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Stats returns storage statistics
func (m *MemoryStore) Stats() (StoreStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var total int64
	for _, value := range m.data {
		total += int64(len(value))
	}
	return StoreStats{Files: len(m.data), Bytes: total}, nil
}
