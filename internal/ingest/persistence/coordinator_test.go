package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/autollama/autollama-sub002/internal/ingest/obs"
	"github.com/autollama/autollama-sub002/internal/ingest/types"
)

type failingVectorStore struct{ err error }

func (f *failingVectorStore) Upsert(context.Context, string, []float32, map[string]string) error {
	return f.err
}
func (f *failingVectorStore) Delete(context.Context, string) error { return f.err }

func TestCoordinator_StoreVectorFailureDoesNotTouchRelational(t *testing.T) {
	rel := NewMemoryRelationalStore()
	vec := &failingVectorStore{err: types.Wrap(types.ErrTransientExternal, errors.New("qdrant unreachable"))}
	metrics := obs.NewMockMetrics()
	c := New(rel, vec, obs.NoopLogger{}, metrics)

	err := c.StoreVector(context.Background(), "chunk-1", []float32{0.1, 0.2}, map[string]string{"doc": "d1"})
	require.Error(t, err)
	require.True(t, errors.Is(err, types.ErrTransientExternal))
	require.Equal(t, 1, metrics.Counters["ingest_vector_store_errors_total"])

	doc, err := c.UpsertDocument(context.Background(), types.Document{ID: "d1", SourceURL: "https://example.com/a"})
	require.NoError(t, err)
	require.Equal(t, "d1", doc.ID)

	err = c.StoreChunk(context.Background(), types.Chunk{ChunkID: "chunk-1", DocumentID: "d1", ChunkIndex: 0}, types.EnhancedMetadata{})
	require.NoError(t, err)
}

func TestCoordinator_UpsertDocumentFailureIsReported(t *testing.T) {
	rel := NewMemoryRelationalStore()
	c := New(rel, NewMemoryVectorStore(), obs.NoopLogger{}, obs.NoopMetrics{})

	_, err := c.UpsertDocument(context.Background(), types.Document{SourceURL: "https://example.com/a"})
	require.Error(t, err)
	require.True(t, errors.Is(err, types.ErrInvalidInput))
}

func TestMemoryRelationalStore_UpsertDocumentIsIdempotentByURLAndKind(t *testing.T) {
	rel := NewMemoryRelationalStore()
	doc, err := rel.UpsertDocument(context.Background(), types.Document{
		ID: "d1", SourceURL: "https://example.com/a", RecordKind: types.RecordKindDocument, Title: "v1",
	})
	require.NoError(t, err)

	doc2, err := rel.UpsertDocument(context.Background(), types.Document{
		ID: "d1", SourceURL: "https://example.com/a", RecordKind: types.RecordKindDocument, Title: "v2",
	})
	require.NoError(t, err)
	require.Equal(t, doc.ID, doc2.ID)
	require.Equal(t, doc.CreatedAt, doc2.CreatedAt)
	require.Equal(t, "v2", doc2.Title)
}

func TestMemoryRelationalStore_InsertChunkRejectsDuplicateIndex(t *testing.T) {
	rel := NewMemoryRelationalStore()
	_, err := rel.UpsertDocument(context.Background(), types.Document{ID: "d1", SourceURL: "https://example.com/a"})
	require.NoError(t, err)

	require.NoError(t, rel.InsertChunk(context.Background(), types.Chunk{ChunkID: "c1", DocumentID: "d1", ChunkIndex: 0}, types.EnhancedMetadata{}))
	err = rel.InsertChunk(context.Background(), types.Chunk{ChunkID: "c2", DocumentID: "d1", ChunkIndex: 0}, types.EnhancedMetadata{})
	require.Error(t, err)
	require.True(t, errors.Is(err, types.ErrPersistenceConflict))
}

func TestMemoryRelationalStore_QueryChunksByDocumentOrdered(t *testing.T) {
	rel := NewMemoryRelationalStore()
	_, err := rel.UpsertDocument(context.Background(), types.Document{ID: "d1", SourceURL: "https://example.com/a"})
	require.NoError(t, err)
	require.NoError(t, rel.InsertChunk(context.Background(), types.Chunk{ChunkID: "c2", DocumentID: "d1", ChunkIndex: 1, ChunkText: "second"}, types.EnhancedMetadata{}))
	require.NoError(t, rel.InsertChunk(context.Background(), types.Chunk{ChunkID: "c1", DocumentID: "d1", ChunkIndex: 0, ChunkText: "first"}, types.EnhancedMetadata{}))

	rows, err := rel.Query(context.Background(), "SELECT chunk_id, chunk_index, chunk_text FROM chunks WHERE document_id = $1 ORDER BY chunk_index", "d1")
	require.NoError(t, err)
	defer rows.Close()

	var order []string
	for rows.Next() {
		var id, text string
		var idx int
		require.NoError(t, rows.Scan(&id, &idx, &text))
		order = append(order, text)
	}
	require.NoError(t, rows.Err())
	require.Equal(t, []string{"first", "second"}, order)
}

func TestMemoryRelationalStore_UpdateDocumentStatusRejectsStaleWrite(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := base
	old := nowFunc
	nowFunc = func() time.Time { return clock }
	defer func() { nowFunc = old }()

	rel := NewMemoryRelationalStore()
	doc, err := rel.UpsertDocument(context.Background(), types.Document{ID: "d1", SourceURL: "https://example.com/a"})
	require.NoError(t, err)
	staleExpected := doc.UpdatedAt

	// A second writer observes the same row and then completes first.
	clock = base.Add(time.Second)
	require.NoError(t, rel.UpdateDocumentStatus(context.Background(), "d1", types.StatusCompleted, map[string]any{
		"expected_updated_at": staleExpected,
	}))

	// The original writer's completion, guarded by the now-stale timestamp
	// it read before the race, must be rejected rather than overwrite it.
	clock = base.Add(2 * time.Second)
	err = rel.UpdateDocumentStatus(context.Background(), "d1", types.StatusFailed, map[string]any{
		"expected_updated_at": staleExpected,
	})
	require.Error(t, err)
	require.True(t, errors.Is(err, types.ErrPersistenceConflict))
}

func TestMemoryVectorStore_UpsertThenDelete(t *testing.T) {
	store := NewMemoryVectorStore()
	require.NoError(t, store.Upsert(context.Background(), "c1", []float32{1, 2, 3}, map[string]string{"k": "v"}))
	mem := store.(interface{ Has(string) bool })
	require.True(t, mem.Has("c1"))

	require.NoError(t, store.Delete(context.Background(), "c1"))
	require.False(t, mem.Has("c1"))
}
