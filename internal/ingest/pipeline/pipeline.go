// Package pipeline implements C5 DocumentPipeline (§4.5): the
// chunk→document→fan-out→finalize state machine that turns parsed content
// into stored chunks and vectors.
//
// Grounded on the teacher's internal/documents.Ingest (a Splitter→worker
// pool→Storage.UpsertChunks pipeline): the same "stream chunks into a
// worker pool, batch writes, drain on context cancellation" shape is kept,
// generalized from the teacher's single EmbedFn/SummariseFn closures into
// the spec's full per-chunk analyze→contextualize→embed→persist sequence
// and its adaptive batch-concurrency table.
package pipeline

import (
	"context"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/autollama/autollama-sub002/internal/ingest/chunker"
	"github.com/autollama/autollama-sub002/internal/ingest/contextengine"
	"github.com/autollama/autollama-sub002/internal/ingest/embedbinder"
	"github.com/autollama/autollama-sub002/internal/ingest/obs"
	"github.com/autollama/autollama-sub002/internal/ingest/persistence"
	"github.com/autollama/autollama-sub002/internal/ingest/types"
)

// SessionGate is the narrow session.Tracker capability the pipeline needs
// to observe cancellation at its suspension points (§4.5 state machine).
type SessionGate interface {
	IsCancelled(sessionID string) bool
	RecordProgress(sessionID string, processedDelta int) error
}

// Publisher is the narrow progress.Bus capability the pipeline needs.
type Publisher interface {
	Publish(ctx context.Context, event types.Event)
}

// Config carries the tunables §4.5/§5 name explicitly, so callers (C7
// JobQueue, tests) can override them without reaching into the Pipeline's
// unexported fields.
type Config struct {
	MaxConcurrent       int           // upper bound on adaptive batch concurrency; default 3
	BatchPause          time.Duration // inter-batch pause; default 200ms
	ChunkTimeout        time.Duration // hard per-chunk-task timeout; default 10 minutes
	SummaryMaxRune      int           // document summary source window; default 2000
	MaxGlobalConcurrent int64         // process-wide cap on in-flight chunk tasks across all jobs; default 16
}

func (c Config) normalized() Config {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 3
	}
	if c.BatchPause <= 0 {
		c.BatchPause = 200 * time.Millisecond
	}
	if c.ChunkTimeout <= 0 {
		c.ChunkTimeout = 10 * time.Minute
	}
	if c.SummaryMaxRune <= 0 {
		c.SummaryMaxRune = 2000
	}
	if c.MaxGlobalConcurrent <= 0 {
		c.MaxGlobalConcurrent = 16
	}
	return c
}

const fallbackSummary = "Summary generation failed"

// Pipeline wires C1-C4 plus AIClient.AnalyzeChunk into the ordered
// process documented in §4.5.
type Pipeline struct {
	ai       types.AIClient
	ctxEng   *contextengine.Engine
	binder   *embedbinder.Binder
	coord    *persistence.Coordinator
	bus      Publisher
	sessions SessionGate
	log      obs.Logger
	metrics  obs.Metrics
	cfg      Config
	// chunkSem bounds total in-flight chunk tasks across every job this
	// pipeline is running concurrently, independent of any one job's own
	// batch size — protects the AIClient backend from a burst of several
	// large jobs each fanning out their own MaxConcurrent batch at once.
	chunkSem *semaphore.Weighted
}

// New constructs a Pipeline. log/metrics/bus/sessions may be nil (bus/
// sessions nil-ness is checked per-call; log/metrics fall back to noop).
func New(ai types.AIClient, ctxEng *contextengine.Engine, binder *embedbinder.Binder, coord *persistence.Coordinator, bus Publisher, sessions SessionGate, log obs.Logger, metrics obs.Metrics, cfg Config) *Pipeline {
	if log == nil {
		log = obs.NoopLogger{}
	}
	if metrics == nil {
		metrics = obs.NoopMetrics{}
	}
	cfg = cfg.normalized()
	return &Pipeline{
		ai: ai, ctxEng: ctxEng, binder: binder, coord: coord,
		bus: bus, sessions: sessions, log: log, metrics: metrics,
		cfg:      cfg,
		chunkSem: semaphore.NewWeighted(cfg.MaxGlobalConcurrent),
	}
}

// Result mirrors the return shape named in §4.5's contract.
type Result struct {
	TotalChunks     int
	ProcessedChunks int
	VectorStored    int
	Document        types.Document
	ProcessingMS    int64
	State           State
}

// State is the pipeline's per-document lifecycle state (§4.5 state
// machine: starting → chunking → documenting → batching → completed |
// failed | cancelled).
type State string

const (
	StateStarting   State = "starting"
	StateChunking   State = "chunking"
	StateDocumenting State = "documenting"
	StateBatching   State = "batching"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
	StateCancelled  State = "cancelled"
)

var headingRe = regexp.MustCompile(`(?m)^#{1,6}\s+(.+)$`)

// Process runs the full C1→C4 sequence against content and returns the
// counters §4.5 names. jobID/sessionID are carried through to every
// published event; sessionID additionally gates cancellation.
func (p *Pipeline) Process(ctx context.Context, content, sourceURL string, jobID, sessionID string, opt types.Options) (Result, error) {
	start := time.Now()
	state := StateStarting
	p.publish(ctx, jobID, sessionID, types.EventProcessingStarted, nil)

	state = StateChunking
	drafts := chunker.Chunk(content, sourceURL, chunker.Options{TargetSize: opt.ChunkSize, Overlap: opt.Overlap})
	p.publish(ctx, jobID, sessionID, types.EventChunkingComplete, map[string]any{"total_chunks": len(drafts)})

	state = StateDocumenting
	doc := p.documentRecord(ctx, content, sourceURL, len(drafts))

	state = StateBatching
	maxConcurrent := opt.MaxConcurrentChunks
	if maxConcurrent <= 0 || maxConcurrent > p.cfg.MaxConcurrent {
		maxConcurrent = p.cfg.MaxConcurrent
	}
	batches := batchByConcurrency(drafts, maxConcurrent)

	var processed, stored int
	cancelled := false
	for bi, batch := range batches {
		if p.sessions != nil && sessionID != "" && p.sessions.IsCancelled(sessionID) {
			cancelled = true
			break
		}
		results := p.runBatch(ctx, batch, doc, sourceURL, jobID, sessionID, len(drafts), opt)
		for _, r := range results {
			if r.processed {
				processed++
			}
			if r.stored {
				stored++
			}
		}
		if bi < len(batches)-1 {
			if !p.pause(ctx, p.cfg.BatchPause) {
				cancelled = true
				break
			}
		}
	}

	switch {
	case cancelled:
		state = StateCancelled
	default:
		state = StateCompleted
	}

	if doc.ID != "" {
		fields := map[string]any{"total_chunks": len(drafts), "expected_updated_at": doc.UpdatedAt}
		_ = p.coord.UpdateDocumentStatus(ctx, doc.ID, statusFor(state), fields)
	}

	p.publish(ctx, jobID, sessionID, types.EventProcessingComplete, map[string]any{
		"total_chunks":     len(drafts),
		"processed_chunks": processed,
		"vector_stored":    stored,
		"state":            string(state),
	})

	return Result{
		TotalChunks:     len(drafts),
		ProcessedChunks: processed,
		VectorStored:    stored,
		Document:        doc,
		ProcessingMS:    time.Since(start).Milliseconds(),
		State:           state,
	}, nil
}

func statusFor(s State) types.ProcessingStatus {
	switch s {
	case StateCancelled:
		return types.StatusCancelled
	case StateFailed:
		return types.StatusFailed
	default:
		return types.StatusCompleted
	}
}

// documentRecord extracts a title, generates a short summary, and upserts
// the document row. Failure is logged but non-fatal (§4.5 step 2): the
// pipeline proceeds with chunk processing even without a persisted
// document row, returning whatever UpsertDocument gave back (zero-value
// on failure).
func (p *Pipeline) documentRecord(ctx context.Context, content, sourceURL string, totalChunks int) types.Document {
	title := extractTitle(content, sourceURL)
	summary := p.summarize(ctx, content)

	doc := types.Document{
		ID:               uuid.NewString(),
		SourceURL:        sourceURL,
		Title:            title,
		SummaryPreview:   summary,
		TotalChunks:      totalChunks,
		ContentLength:    len([]rune(content)),
		ProcessingStatus: types.StatusProcessing,
		RecordKind:       types.RecordKindDocument,
	}
	saved, err := p.coord.UpsertDocument(ctx, doc)
	if err != nil {
		p.log.Error("document record creation failed, continuing without it", map[string]any{"source_url": sourceURL, "error": err.Error()})
		return types.Document{}
	}
	return saved
}

func (p *Pipeline) summarize(ctx context.Context, content string) string {
	runes := []rune(content)
	if len(runes) > p.cfg.SummaryMaxRune {
		runes = runes[:p.cfg.SummaryMaxRune]
	}
	summary, err := p.ai.GenerateSummary(ctx, string(runes))
	if err != nil || strings.TrimSpace(summary) == "" {
		return fallbackSummary
	}
	return summary
}

func extractTitle(content, sourceURL string) string {
	if m := headingRe.FindStringSubmatch(content); m != nil {
		return strings.TrimSpace(m[1])
	}
	base := path.Base(sourceURL)
	if base == "." || base == "/" || base == "" {
		return sourceURL
	}
	return base
}

// concurrencyFor implements the adaptive table from §4.5 step 3.
func concurrencyFor(totalChunks, maxConcurrent int) int {
	var c int
	switch {
	case totalChunks > 1000:
		c = 1
	case totalChunks > 200:
		c = 1
	case totalChunks > 50:
		c = 2
	case totalChunks < 10:
		c = 3
	default:
		c = 2
	}
	if c > maxConcurrent {
		c = maxConcurrent
	}
	if c < 1 {
		c = 1
	}
	return c
}

func batchByConcurrency(drafts []chunker.Draft, maxConcurrent int) [][]chunker.Draft {
	if len(drafts) == 0 {
		return nil
	}
	size := concurrencyFor(len(drafts), maxConcurrent)
	var batches [][]chunker.Draft
	for i := 0; i < len(drafts); i += size {
		end := i + size
		if end > len(drafts) {
			end = len(drafts)
		}
		batches = append(batches, drafts[i:end])
	}
	return batches
}

// pause sleeps for d, returning false if ctx was cancelled first — the
// inter-batch pause is itself a suspension point (§5).
func (p *Pipeline) pause(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (p *Pipeline) publish(ctx context.Context, jobID, sessionID string, kind types.EventKind, payload map[string]any) {
	if p.bus == nil {
		return
	}
	p.bus.Publish(ctx, types.Event{
		JobID:     jobID,
		SessionID: sessionID,
		Kind:      kind,
		Payload:   payload,
		Timestamp: time.Now(),
	})
}

func chunkEventPayload(idx int, extra map[string]any) map[string]any {
	out := map[string]any{"chunk_index": idx}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
