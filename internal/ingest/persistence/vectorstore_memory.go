package persistence

import (
	"context"
	"sync"

	"github.com/autollama/autollama-sub002/internal/ingest/types"
)

// memoryVectorStore is an in-process types.VectorStore, grounded on
// intelligencedev-manifold's internal/persistence/databases.memoryVector
// (same copy-on-write map-of-vectors shape, narrowed to Upsert/Delete since
// this service never serves similarity queries).
type memoryVectorStore struct {
	mu      sync.RWMutex
	vectors map[string]vectorEntry
}

type vectorEntry struct {
	vector  []float32
	payload map[string]string
}

// NewMemoryVectorStore constructs an in-memory types.VectorStore for tests
// and single-node development.
func NewMemoryVectorStore() types.VectorStore {
	return &memoryVectorStore{vectors: make(map[string]vectorEntry)}
}

func (m *memoryVectorStore) Upsert(_ context.Context, chunkID string, vector []float32, payload map[string]string) error {
	cp := make([]float32, len(vector))
	copy(cp, vector)
	pd := make(map[string]string, len(payload))
	for k, v := range payload {
		pd[k] = v
	}
	m.mu.Lock()
	m.vectors[chunkID] = vectorEntry{vector: cp, payload: pd}
	m.mu.Unlock()
	return nil
}

func (m *memoryVectorStore) Delete(_ context.Context, chunkID string) error {
	m.mu.Lock()
	delete(m.vectors, chunkID)
	m.mu.Unlock()
	return nil
}

// Has reports whether chunkID currently has a stored vector, used by tests
// asserting invariant 1 (embedding_status=completed iff a vector exists).
func (m *memoryVectorStore) Has(chunkID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.vectors[chunkID]
	return ok
}
