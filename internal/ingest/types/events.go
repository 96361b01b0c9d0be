package types

import "time"

// EventKind enumerates the typed progress events published over the
// ProgressBus (§4.8).
type EventKind string

const (
	EventProcessingStarted EventKind = "processing_started"
	EventChunkingComplete  EventKind = "chunking_complete"
	EventAnalysisCompleted EventKind = "analysis_completed"
	EventEmbeddingCreated  EventKind = "embedding_created"
	EventVectorStored      EventKind = "vector_stored"
	EventVectorError       EventKind = "vector_error"
	EventProgressUpdate    EventKind = "progress_update"
	EventHeartbeat         EventKind = "heartbeat"
	EventProcessingComplete EventKind = "processing_completed"
	EventErrorOccurred     EventKind = "error_occurred"
	EventJobQueued         EventKind = "job_queued"
	EventJobStarted        EventKind = "job_started"
	EventJobCompleted      EventKind = "job_completed"
	EventJobFailed         EventKind = "job_failed"
	EventJobCancelled      EventKind = "job_cancelled"
)

// Event is the envelope published by the ProgressBus.
type Event struct {
	JobID     string
	SessionID string
	Kind      EventKind
	Payload   map[string]any
	Timestamp time.Time
}
