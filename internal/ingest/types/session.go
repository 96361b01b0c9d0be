package types

import "time"

// Session is the live, in-memory state of an executing job: heartbeat and
// progress clocks plus running chunk counters. It is created when a job
// leaves queued and destroyed when the job reaches a terminal state.
type Session struct {
	SessionID string
	JobID     string

	Processed int
	Total     int

	LastActivity       time.Time
	LastProgressUpdate time.Time
	LastHeartbeat      time.Time

	ProgressUpdates int
	ChunksProcessed int

	Cancelled     bool
	FailureReason string
}
