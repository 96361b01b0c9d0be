package types

import "time"

// ProcessingStatus is the lifecycle state shared by Document, Job, and
// per-chunk records. Terminal states are sticky: once reached, no further
// transition is permitted.
type ProcessingStatus string

const (
	StatusProcessing ProcessingStatus = "processing"
	StatusCompleted  ProcessingStatus = "completed"
	StatusFailed     ProcessingStatus = "failed"
	StatusCancelled  ProcessingStatus = "cancelled"
)

// Terminal reports whether s is one of the sticky terminal states.
func (s ProcessingStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// RecordKind distinguishes ordinary documents, chunk rows, and the parent
// row created for a document that was split into sub-documents.
type RecordKind string

const (
	RecordKindChunk           RecordKind = "chunk"
	RecordKindDocument        RecordKind = "document"
	RecordKindParentDocument  RecordKind = "parent_document"
)

// Document is the logical source unit row persisted to the relational
// store. A parent_document row never carries an embedding; its children
// (the per-section documents created by the streaming splitter) do.
type Document struct {
	ID                string
	SourceURL         string
	Title             string
	SummaryPreview    string
	ContentTypeTag    string
	TotalChunks       int
	ContentLength     int
	CreatedAt         time.Time
	UpdatedAt         time.Time
	ProcessingStatus  ProcessingStatus
	RecordKind        RecordKind
	ParentDocumentID  string
}

// EmbeddingStatus tracks whether a chunk's vector was durably written to
// the VectorStore.
type EmbeddingStatus string

const (
	EmbeddingPending       EmbeddingStatus = "pending"
	EmbeddingCompleted     EmbeddingStatus = "completed"
	EmbeddingFailed        EmbeddingStatus = "failed"
	EmbeddingNotApplicable EmbeddingStatus = "not_applicable"
)

// Analysis is the opaque-to-the-core enrichment produced by AIClient.AnalyzeChunk.
type Analysis struct {
	Sentiment       string
	ContentType     string
	TechnicalLevel  string
	Topics          []string
	Entities        []string
}

// Chunk is a bounded substring of a Document plus its enrichment.
type Chunk struct {
	ChunkID               string
	DocumentID            string
	ChunkIndex            int
	ChunkText             string
	ContextualSummary     string
	HasContextualSummary  bool
	Analysis              Analysis
	UsesContextualEmbed   bool
	EmbeddingStatus       EmbeddingStatus
	ProcessingStatus      ProcessingStatus
}

// EnhancedMetadata is attached to a chunk at persistence time, carrying
// fields derived from the pipeline run rather than the chunk content
// itself (§4.5 step 4).
type EnhancedMetadata struct {
	DocumentType      string
	ChunkingMethod    string
	SectionTitle      string
	SectionLevel      int
	DocumentPosition  float64 // (index+1)/total_chunks
	ContextGenerated  bool
	ElapsedMS         int64
}
