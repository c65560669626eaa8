package audit

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore implements Store and Reader in memory for tests and local
// development. Records are kept in arrival order.
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record
}

// NewMemoryStore creates an empty in-memory audit store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// StoreBatch implements Store.
func (ms *MemoryStore) StoreBatch(_ context.Context, records []Record) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.records = append(ms.records, records...)
	return nil
}

// ByNotification implements Reader.
func (ms *MemoryStore) ByNotification(_ context.Context, id uuid.UUID) ([]Record, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	var out []Record
	for _, rec := range ms.records {
		if rec.NotificationID == id {
			out = append(out, rec)
		}
	}
	return out, nil
}

// All returns a copy of every stored record, oldest first.
func (ms *MemoryStore) All() []Record {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	out := make([]Record, len(ms.records))
	copy(out, ms.records)
	return out
}

// Len returns the number of stored records.
func (ms *MemoryStore) Len() int {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return len(ms.records)
}
