package persistence

import (
	"context"

	"github.com/autollama/autollama-sub002/internal/ingest/obs"
	"github.com/autollama/autollama-sub002/internal/ingest/types"
)

// Coordinator implements C4 PersistenceCoordinator (§4.4): it owns the two
// independent writes a processed chunk needs — relational metadata and the
// embedding vector — and keeps their failure modes from leaking into each
// other. Grounded on intelligencedev-manifold's internal/rag/ingest package,
// which also writes to a relational table and a vector store from the same
// ingest step but, unlike this coordinator, fails the whole document on
// either error; here a store failure degrades the single chunk instead.
type Coordinator struct {
	relational types.RelationalStore
	vector     types.VectorStore
	log        obs.Logger
	metrics    obs.Metrics
}

// New constructs a Coordinator. log/metrics may be nil, in which case a
// noop implementation is used.
func New(relational types.RelationalStore, vector types.VectorStore, log obs.Logger, metrics obs.Metrics) *Coordinator {
	if log == nil {
		log = obs.NoopLogger{}
	}
	if metrics == nil {
		metrics = obs.NoopMetrics{}
	}
	return &Coordinator{relational: relational, vector: vector, log: log, metrics: metrics}
}

// UpsertDocument writes the document row. Per §4.5 step 2, failure here is
// non-fatal to the pipeline: the caller decides whether to continue with a
// zero-value Document, but the error is still returned so the caller can
// log/emit accordingly.
func (c *Coordinator) UpsertDocument(ctx context.Context, doc types.Document) (types.Document, error) {
	saved, err := c.relational.UpsertDocument(ctx, doc)
	if err != nil {
		c.log.Error("upsert_document failed", map[string]any{"source_url": doc.SourceURL, "error": err.Error()})
		c.metrics.IncCounter("ingest_document_upsert_errors_total", nil)
		return types.Document{}, err
	}
	return saved, nil
}

// StoreChunk persists chunk metadata (text, analysis, enhanced metadata) to
// the relational store. Failure is logged and counted as unprocessed by the
// caller; it never touches the vector store.
func (c *Coordinator) StoreChunk(ctx context.Context, chunk types.Chunk, meta types.EnhancedMetadata) error {
	if err := c.relational.InsertChunk(ctx, chunk, meta); err != nil {
		c.log.Error("store_chunk failed", map[string]any{"chunk_id": chunk.ChunkID, "document_id": chunk.DocumentID, "error": err.Error()})
		c.metrics.IncCounter("ingest_chunk_store_errors_total", nil)
		return err
	}
	c.metrics.IncCounter("ingest_chunks_stored_total", nil)
	return nil
}

// StoreVector writes the chunk's embedding to the vector store. Failure is
// logged and counted but never propagated as a document-level failure —
// the caller is expected to mark the chunk's embedding_status as failed and
// continue with the rest of the batch (§4.4).
func (c *Coordinator) StoreVector(ctx context.Context, chunkID string, vector []float32, payload map[string]string) error {
	if err := c.vector.Upsert(ctx, chunkID, vector, payload); err != nil {
		c.log.Error("store_vector failed", map[string]any{"chunk_id": chunkID, "error": err.Error()})
		c.metrics.IncCounter("ingest_vector_store_errors_total", nil)
		return err
	}
	c.metrics.IncCounter("ingest_vectors_stored_total", nil)
	return nil
}

// DeleteVector removes a chunk's embedding, e.g. when a document is
// reprocessed and a previous chunk index no longer exists.
func (c *Coordinator) DeleteVector(ctx context.Context, chunkID string) error {
	if err := c.vector.Delete(ctx, chunkID); err != nil {
		c.log.Error("delete_vector failed", map[string]any{"chunk_id": chunkID, "error": err.Error()})
		return err
	}
	return nil
}

// UpdateDocumentStatus advances the document's lifecycle state (§4.5
// Finalize) and any correction fields (e.g. a final total_chunks count).
func (c *Coordinator) UpdateDocumentStatus(ctx context.Context, id string, status types.ProcessingStatus, fields map[string]any) error {
	if err := c.relational.UpdateDocumentStatus(ctx, id, status, fields); err != nil {
		c.log.Error("update_document_status failed", map[string]any{"document_id": id, "status": string(status), "error": err.Error()})
		return err
	}
	return nil
}
