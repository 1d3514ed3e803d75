package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

// MemoryStore is an in-process ContentStore for testing and development.
// Identifiers are the hex-encoded SHA-256 of the body, so identical content
// maps to the same object. Data is lost when the process exits.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
	closed  bool
}

type memoryObject struct {
	body []byte
	tags Tags
}

// NewMemoryStore creates an empty in-memory content store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]memoryObject)}
}

// ContentID returns the identifier a body would be stored under.
func ContentID(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// Upload implements ContentStore.
func (m *MemoryStore) Upload(_ context.Context, body []byte, tags Tags) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return "", ErrStoreClosed
	}

	// Copy body to avoid retaining the caller's slice
	stored := make([]byte, len(body))
	copy(stored, body)

	id := ContentID(body)
	m.objects[id] = memoryObject{body: stored, tags: tags.Clone()}
	return id, nil
}

// Query implements ContentStore.
func (m *MemoryStore) Query(_ context.Context, filter Tags) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	entries := make([]Entry, 0)
	for id, obj := range m.objects {
		if obj.tags.Matches(filter) {
			entries = append(entries, Entry{ID: id, Tags: obj.tags.Clone()})
		}
	}
	return entries, nil
}

// Fetch implements ContentStore.
func (m *MemoryStore) Fetch(_ context.Context, id string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	obj, ok := m.objects[id]
	if !ok {
		return nil, ErrNotFound
	}

	// Return a copy to prevent modification
	body := make([]byte, len(obj.body))
	copy(body, obj.body)
	return body, nil
}

// Delete removes an object. Returns nil if the object doesn't exist.
// The checkpoint layer never deletes; this exists for test cleanup and
// for simulating objects that became unavailable.
func (m *MemoryStore) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	delete(m.objects, id)
	return nil
}

// Len returns the number of stored objects. Useful for testing.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

// Close releases the store. Subsequent calls return ErrStoreClosed.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.objects = nil
	return nil
}
