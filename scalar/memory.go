package scalar

import (
	"bytes"
	"sync"
)

// Compile-time check that Memory satisfies Store.
var _ Store = (*Memory)(nil)

// Memory is an in-memory implementation of Store using a Go map. It is the
// default store and suits datasets that fit in memory.
type Memory struct {
	mu   sync.RWMutex
	docs map[uint64][]byte
}

// NewMemory creates a new in-memory document store.
func NewMemory() *Memory {
	return &Memory{
		docs: make(map[uint64][]byte),
	}
}

// Put stores the encoded document under id.
func (m *Memory) Put(id uint64, doc []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.docs[id] = bytes.Clone(doc)
	return nil
}

// Get returns the encoded document for id, or ErrNotFound.
func (m *Memory) Get(id uint64) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return bytes.Clone(doc), nil
}

// Delete removes the document for id.
func (m *Memory) Delete(id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.docs[id]; !ok {
		return ErrNotFound
	}
	delete(m.docs, id)
	return nil
}

// Each calls fn for every stored document until fn returns false.
func (m *Memory) Each(fn func(id uint64, doc []byte) bool) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for id, doc := range m.docs {
		if !fn(id, bytes.Clone(doc)) {
			return nil
		}
	}
	return nil
}

// Len returns the number of stored documents.
func (m *Memory) Len() (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.docs), nil
}

// Clear removes all documents.
func (m *Memory) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.docs = make(map[uint64][]byte)
	return nil
}

// Close releases the store. The Memory store holds no external resources.
func (m *Memory) Close() error {
	return nil
}
