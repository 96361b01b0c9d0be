package queue

import (
	"context"
	"sync"
	"time"

	"github.com/autollama/autollama-sub002/internal/ingest/types"
)

type memoryStore struct {
	mu   sync.Mutex
	jobs map[string]types.Job
}

// NewMemoryStore constructs a DurableStore backed by a plain map — used
// in tests and as a fallback when no database is configured. It is not
// actually durable across process restarts: a new process starts with an
// empty map, so Recovery only finds jobs saved earlier in the same
// process.
func NewMemoryStore() DurableStore {
	return &memoryStore{jobs: make(map[string]types.Job)}
}

func (m *memoryStore) Save(_ context.Context, job types.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.JobID] = job
	return nil
}

func (m *memoryStore) UpdateStatus(_ context.Context, jobID string, status types.JobStatus, fields map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return types.Wrap(types.ErrInvalidInput, errUnknownJob)
	}
	job.Status = status
	applyJobFields(&job, fields)
	m.jobs[jobID] = job
	return nil
}

func (m *memoryStore) Get(_ context.Context, jobID string) (types.Job, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	return job, ok, nil
}

func (m *memoryStore) ListByStatus(_ context.Context, status types.JobStatus) ([]types.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.Job
	for _, j := range m.jobs {
		if j.Status == status {
			out = append(out, j)
		}
	}
	return out, nil
}

func (m *memoryStore) Delete(_ context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, jobID)
	return nil
}

// applyJobFields applies the same ad-hoc field set both store
// implementations accept from UpdateStatus callers (retries,
// started_at/completed_at/failed_at, next_retry_at, result, error,
// duration_ms) — mirrored in store_postgres.go's column updates.
func applyJobFields(job *types.Job, fields map[string]any) {
	if v, ok := fields["retries"].(int); ok {
		job.Retries = v
	}
	if v, ok := fields["duration_ms"].(int64); ok {
		job.DurationMS = v
	}
	if v, ok := fields["started_at"].(*time.Time); ok {
		job.StartedAt = v
	}
	if v, ok := fields["completed_at"].(*time.Time); ok {
		job.CompletedAt = v
	}
	if v, ok := fields["failed_at"].(*time.Time); ok {
		job.FailedAt = v
	}
	if v, ok := fields["next_retry_at"].(*time.Time); ok {
		job.NextRetryAt = v
	}
	if v, ok := fields["result"].(*types.JobResult); ok {
		job.Result = v
	}
	if v, ok := fields["error"].(*types.JobError); ok {
		job.Error = v
	}
}
