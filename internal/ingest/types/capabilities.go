package types

import "context"

// Chapter is one logical section of a structured document, as extracted
// by a Parser. Content is passed through directly by the parser rather
// than re-derived from the combined text by marker search (Open Question
// decision recorded in DESIGN.md).
type Chapter struct {
	Title     string
	Content   string
	Length    int
	WordCount int
}

// ParsedContent is what a Parser produces from raw bytes.
type ParsedContent struct {
	Content  string
	Kind     string // "epub", "pdf", "docx", "html", "text", "csv", ...
	Chapters []Chapter
	Metadata map[string]any
}

// Parser is the single capability the core consumes for format-specific
// parsing (PDF/DOCX/EPUB/CSV/HTML/plain text). The module's own concrete
// parser lives in internal/ingest/parse; the core only depends on this
// interface.
type Parser interface {
	Parse(ctx context.Context, data []byte, mime, originalName string) (ParsedContent, error)
}

// FetchResult is what a URLFetcher produces.
type FetchResult struct {
	Content  string
	Kind     string
	Metadata map[string]any // final_url, status_code, ...
}

// FetchOptions controls a URLFetcher.Fetch call.
type FetchOptions struct {
	MaxRedirects int
	Timeout      int // seconds
	Retries      int
	RetryDelayMS int
}

// URLFetcher is the single capability the core consumes to acquire bytes
// from a remote URL.
type URLFetcher interface {
	Fetch(ctx context.Context, url string, opt FetchOptions) (FetchResult, error)
}

// CompleteOptions controls an AIClient.Complete call.
type CompleteOptions struct {
	MaxTokens   int
	Temperature float64
}

// AIClient is the single capability the core consumes for chunk analysis,
// summarization, embeddings, and free-form completion. All methods are
// failable; classifying a given failure as retryable vs. permanent is the
// client implementation's job (it should wrap the error in
// types.ErrTransientExternal or types.ErrPermanentExternal accordingly).
type AIClient interface {
	AnalyzeChunk(ctx context.Context, text string) (Analysis, error)
	GenerateSummary(ctx context.Context, text string) (string, error)
	GenerateEmbedding(ctx context.Context, text, context_ string) ([]float32, error)
	Complete(ctx context.Context, prompt string, opt CompleteOptions) (string, error)
}

// VectorStore is the capability the core consumes to durably write and
// remove chunk embeddings. Payload carries analysis/context fields
// alongside the vector so retrieval can filter without a relational join.
type VectorStore interface {
	Upsert(ctx context.Context, chunkID string, vector []float32, payload map[string]string) error
	Delete(ctx context.Context, chunkID string) error
}

// RelationalStore is the capability the core consumes for document and
// chunk metadata; the job queue keeps its jobs in its own
// queue.DurableStore instead. Query/Transaction are exposed for callers
// that need direct access beyond the narrow Upsert/Insert/Update surface.
type RelationalStore interface {
	UpsertDocument(ctx context.Context, doc Document) (Document, error)
	InsertChunk(ctx context.Context, chunk Chunk, meta EnhancedMetadata) error
	UpdateDocumentStatus(ctx context.Context, id string, status ProcessingStatus, fields map[string]any) error
	Query(ctx context.Context, sql string, params ...any) (Rows, error)
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Rows is a minimal row-cursor abstraction so RelationalStore.Query does
// not leak a specific driver's type into the core.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Close()
	Err() error
}
