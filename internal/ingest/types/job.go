package types

import "time"

// JobType enumerates the kinds of ingestion work a Job can describe.
type JobType string

const (
	JobURLProcessing             JobType = "url_processing"
	JobFileProcessing            JobType = "file_processing"
	JobChapterDocumentProcessing JobType = "chapter_document_processing"
)

// JobStatus is the Job lifecycle state.
type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobCancelled  JobStatus = "cancelled"
)

// FileDescriptor carries file bytes for a file_processing job. Bytes are
// serialized as a base64 envelope (see fileEnvelope in the queue package's
// store_postgres.go) rather than relying on a
// language-specific buffer helper, so jobs round-trip losslessly through
// the durable store.
type FileDescriptor struct {
	Bytes        []byte
	MimeType     string
	OriginalName string
	Size         int64
}

// SectionDescriptor describes one sub-document produced by the streaming
// splitter (§4.6). It is only ever constructed internally by C6 and
// consumed by C5 through a chapter_document_processing job.
type SectionDescriptor struct {
	ParentDocumentID string
	ParentURL        string
	SectionIndex     int
	SectionTitle     string
	SectionKind      string // e.g. "epub", "pdf", "docx" — the parent's parsed kind
	Content          string
}

// Options enumerates the recognized ingestion options (§6). Modeled as a
// closed struct with defaults rather than a loose option bag, per the
// Design Notes.
type Options struct {
	ChunkSize                  int
	Overlap                    int
	EnableContextualEmbeddings bool
	Priority                   int
	SessionID                  string
	MaxConcurrentChunks        int
}

// DefaultOptions returns the spec-mandated defaults for Options.
func DefaultOptions() Options {
	return Options{
		ChunkSize:                  1000,
		Overlap:                    100,
		EnableContextualEmbeddings: true,
		Priority:                   5,
	}
}

// Job is a durable unit of ingestion work in the queue (§3 Job).
type Job struct {
	JobID     string
	SessionID string
	Type      JobType

	// Exactly one of URL, File, or Section is populated, matching Type.
	URL     string
	File    *FileDescriptor
	Section *SectionDescriptor

	Options Options

	Status      JobStatus
	Priority    int
	CreatedAt   time.Time
	UpdatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	FailedAt    *time.Time

	Retries     int
	NextRetryAt *time.Time

	Result *JobResult
	Error  *JobError

	DurationMS int64
}

// JobResult mirrors DocumentPipeline.process's return shape (§4.5).
type JobResult struct {
	TotalChunks     int
	ProcessedChunks int
	VectorStored    int
	DocumentID      string
	ProcessingMS    int64
}

// JobError records the classified reason a job failed or was cancelled.
type JobError struct {
	Kind    string
	Message string
}
