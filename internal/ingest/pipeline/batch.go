package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/autollama/autollama-sub002/internal/ingest/chunker"
	"github.com/autollama/autollama-sub002/internal/ingest/contextengine"
	"github.com/autollama/autollama-sub002/internal/ingest/types"
)

// chunkResult is the partial outcome of one chunk task (§4.5 step 4: a
// timeout or any failure still yields {processed: false, stored: false}
// rather than aborting the batch).
type chunkResult struct {
	processed bool
	stored    bool
}

// runBatch processes one batch of drafts concurrently (batch size IS the
// concurrency limit: §4.5 issues batches in sequence, chunks within a
// batch run concurrently). It returns one chunkResult per draft, in
// arbitrary order relative to draft index (completions may race; §5
// ordering guarantees only bind chunking_complete/processing_completed).
func (p *Pipeline) runBatch(ctx context.Context, batch []chunker.Draft, doc types.Document, sourceURL, jobID, sessionID string, totalChunks int, opt types.Options) []chunkResult {
	results := make([]chunkResult, len(batch))
	g, gctx := errgroup.WithContext(ctx)
	for i, draft := range batch {
		i, draft := i, draft
		g.Go(func() error {
			if err := p.chunkSem.Acquire(gctx, 1); err != nil {
				return nil // ctx done; leave this draft's result as the zero chunkResult
			}
			defer p.chunkSem.Release(1)
			results[i] = p.processChunk(gctx, draft, doc, sourceURL, jobID, sessionID, totalChunks, opt)
			return nil
		})
	}
	_ = g.Wait() // processChunk never returns an error; failures are recorded per-chunkResult instead
	return results
}

// processChunk runs the analyze→contextualize→embed→persist sequence for
// one chunk draft under a hard per-task timeout (§4.5 step 4).
func (p *Pipeline) processChunk(ctx context.Context, draft chunker.Draft, doc types.Document, sourceURL, jobID, sessionID string, totalChunks int, opt types.Options) chunkResult {
	taskCtx, cancel := context.WithTimeout(ctx, p.cfg.ChunkTimeout)
	defer cancel()

	chunkID := uuid.NewString()
	taskStart := time.Now()

	analysis, err := p.ai.AnalyzeChunk(taskCtx, draft.Text)
	if err != nil {
		p.log.Error("analyze_chunk failed", map[string]any{"chunk_index": draft.Index, "document_id": doc.ID, "error": err.Error()})
		p.publish(ctx, jobID, sessionID, types.EventErrorOccurred, chunkEventPayload(draft.Index, map[string]any{"stage": "analyze", "error": err.Error()}))
		p.recordChunkProgress(sessionID)
		return chunkResult{}
	}
	p.publish(ctx, jobID, sessionID, types.EventAnalysisCompleted, chunkEventPayload(draft.Index, nil))

	var chunkContext string
	var hasContext bool
	if opt.EnableContextualEmbeddings && p.ctxEng != nil {
		chunkContext, hasContext = p.ctxEng.Contextualize(taskCtx, sourceURL, draft.Text, contextengine.Options{
			ChunkIndex:  draft.Index,
			TotalChunks: totalChunks,
		})
	}

	vector, err := p.binder.Embed(taskCtx, draft.Text, chunkContext)
	if err != nil {
		p.log.Error("embed failed", map[string]any{"chunk_index": draft.Index, "document_id": doc.ID, "error": err.Error()})
		p.publish(ctx, jobID, sessionID, types.EventErrorOccurred, chunkEventPayload(draft.Index, map[string]any{"stage": "embed", "error": err.Error()}))
		p.recordChunkProgress(sessionID)
		return chunkResult{}
	}
	p.publish(ctx, jobID, sessionID, types.EventEmbeddingCreated, chunkEventPayload(draft.Index, nil))

	chunk := types.Chunk{
		ChunkID:              chunkID,
		DocumentID:           doc.ID,
		ChunkIndex:           draft.Index,
		ChunkText:            draft.Text,
		ContextualSummary:    chunkContext,
		HasContextualSummary: hasContext,
		Analysis:             analysis,
		UsesContextualEmbed:  hasContext,
		EmbeddingStatus:      types.EmbeddingPending,
		ProcessingStatus:     types.StatusProcessing,
	}

	stored := true
	payload := map[string]string{
		"content_type": analysis.ContentType,
		"sentiment":    analysis.Sentiment,
		"document_id":  doc.ID,
		"source_url":   sourceURL,
	}
	if err := p.coord.StoreVector(taskCtx, chunkID, vector, payload); err != nil {
		chunk.EmbeddingStatus = types.EmbeddingFailed
		stored = false
		p.publish(ctx, jobID, sessionID, types.EventVectorError, chunkEventPayload(draft.Index, map[string]any{"error": err.Error()}))
	} else {
		chunk.EmbeddingStatus = types.EmbeddingCompleted
		p.publish(ctx, jobID, sessionID, types.EventVectorStored, chunkEventPayload(draft.Index, nil))
	}
	chunk.ProcessingStatus = types.StatusCompleted

	meta := types.EnhancedMetadata{
		DocumentType:     analysis.ContentType,
		ChunkingMethod:   string(draft.Boundary),
		SectionTitle:     draft.SectionTitle,
		SectionLevel:     draft.SectionLevel,
		DocumentPosition: float64(draft.Index+1) / float64(maxInt(totalChunks, 1)),
		ContextGenerated: hasContext,
		ElapsedMS:        time.Since(taskStart).Milliseconds(),
	}

	processed := true
	if err := p.coord.StoreChunk(taskCtx, chunk, meta); err != nil {
		processed = false
		p.publish(ctx, jobID, sessionID, types.EventErrorOccurred, chunkEventPayload(draft.Index, map[string]any{"stage": "store_chunk", "error": err.Error()}))
	}

	p.recordChunkProgress(sessionID)

	if taskCtx.Err() != nil {
		p.log.Error("chunk task exceeded hard timeout", map[string]any{"chunk_index": draft.Index, "document_id": doc.ID})
		return chunkResult{}
	}

	return chunkResult{processed: processed, stored: stored}
}

func (p *Pipeline) recordChunkProgress(sessionID string) {
	if p.sessions == nil || sessionID == "" {
		return
	}
	_ = p.sessions.RecordProgress(sessionID, 1)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
