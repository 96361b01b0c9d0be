package persistence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/autollama/autollama-sub002/internal/ingest/types"
)

// memoryRelationalStore implements types.RelationalStore entirely in
// process memory, mirroring intelligencedev-manifold's
// internal/persistence/databases in-memory test doubles. Query only
// supports the handful of synthetic statements the in-package tests issue
// ("SELECT ..." against chunks-by-document); it is not a SQL engine.
type memoryRelationalStore struct {
	mu         sync.Mutex
	documents  map[string]types.Document
	chunks     map[string]types.Chunk
	chunkMeta  map[string]types.EnhancedMetadata
	docByKey   map[string]string // sourceURL|recordKind -> doc ID
}

// NewMemoryRelationalStore returns a types.RelationalStore backed by maps,
// for tests and for running the pipeline without a Postgres instance.
func NewMemoryRelationalStore() types.RelationalStore {
	return &memoryRelationalStore{
		documents: make(map[string]types.Document),
		chunks:    make(map[string]types.Chunk),
		chunkMeta: make(map[string]types.EnhancedMetadata),
		docByKey:  make(map[string]string),
	}
}

func docKey(sourceURL string, kind types.RecordKind) string {
	return sourceURL + "|" + string(kind)
}

func (m *memoryRelationalStore) UpsertDocument(_ context.Context, doc types.Document) (types.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := docKey(doc.SourceURL, doc.RecordKind)
	now := nowFunc()
	if existingID, ok := m.docByKey[key]; ok {
		existing := m.documents[existingID]
		doc.ID = existing.ID
		doc.CreatedAt = existing.CreatedAt
		doc.UpdatedAt = now
		m.documents[doc.ID] = doc
		return doc, nil
	}
	if doc.ID == "" {
		return types.Document{}, types.Wrap(types.ErrInvalidInput, errEmptyDocumentID)
	}
	doc.CreatedAt = now
	doc.UpdatedAt = now
	m.documents[doc.ID] = doc
	m.docByKey[key] = doc.ID
	return doc, nil
}

func (m *memoryRelationalStore) InsertChunk(_ context.Context, chunk types.Chunk, meta types.EnhancedMetadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.chunks {
		if existing.DocumentID == chunk.DocumentID && existing.ChunkIndex == chunk.ChunkIndex && existing.ChunkID != chunk.ChunkID {
			return types.Wrap(types.ErrPersistenceConflict, errDuplicateChunkIndex)
		}
	}
	m.chunks[chunk.ChunkID] = chunk
	m.chunkMeta[chunk.ChunkID] = meta
	return nil
}

// UpdateDocumentStatus mirrors pgRelationalStore's optimistic guard: a
// "expected_updated_at" in fields must not be older than what's on record,
// or the write is rejected as a stale overwrite (DESIGN.md Open Question 3).
func (m *memoryRelationalStore) UpdateDocumentStatus(_ context.Context, id string, status types.ProcessingStatus, fields map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.documents[id]
	if !ok {
		return types.Wrap(types.ErrInvalidInput, errUnknownDocument)
	}
	if expected, guarded := fields["expected_updated_at"].(time.Time); guarded && doc.UpdatedAt.After(expected) {
		return types.Wrap(types.ErrPersistenceConflict, errStaleDocumentUpdate)
	}
	doc.ProcessingStatus = status
	doc.UpdatedAt = nowFunc()
	if v, ok := fields["total_chunks"].(int); ok {
		doc.TotalChunks = v
	}
	m.documents[id] = doc
	return nil
}

// Query supports "SELECT chunk_id, chunk_index, chunk_text FROM chunks
// WHERE document_id = $1 ORDER BY chunk_index" and nothing else — enough
// for tests to read back a document's chunks without a real database.
func (m *memoryRelationalStore) Query(_ context.Context, sql string, params ...any) (types.Rows, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(params) == 0 {
		return nil, types.Wrap(types.ErrInvalidInput, errUnsupportedQuery)
	}
	documentID, ok := params[0].(string)
	if !ok {
		return nil, types.Wrap(types.ErrInvalidInput, errUnsupportedQuery)
	}
	var rows []types.Chunk
	for _, c := range m.chunks {
		if c.DocumentID == documentID {
			rows = append(rows, c)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ChunkIndex < rows[j].ChunkIndex })
	return &memoryRows{rows: rows}, nil
}

func (m *memoryRelationalStore) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	// The in-memory store has no rollback path; correctness for tests comes
	// from running fn under the store's own mutex-free sequencing. Real
	// atomicity is exercised against pgRelationalStore, not this double.
	return fn(ctx)
}

type memoryRows struct {
	rows []types.Chunk
	i    int
}

func (r *memoryRows) Next() bool {
	if r.i >= len(r.rows) {
		return false
	}
	r.i++
	return true
}

func (r *memoryRows) Scan(dest ...any) error {
	c := r.rows[r.i-1]
	if len(dest) > 0 {
		if p, ok := dest[0].(*string); ok {
			*p = c.ChunkID
		}
	}
	if len(dest) > 1 {
		if p, ok := dest[1].(*int); ok {
			*p = c.ChunkIndex
		}
	}
	if len(dest) > 2 {
		if p, ok := dest[2].(*string); ok {
			*p = c.ChunkText
		}
	}
	return nil
}

func (r *memoryRows) Close()     {}
func (r *memoryRows) Err() error { return nil }

// nowFunc is a seam for tests; production code always uses time.Now.
var nowFunc = time.Now
