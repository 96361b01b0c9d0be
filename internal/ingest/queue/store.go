package queue

import (
	"context"

	"github.com/autollama/autollama-sub002/internal/ingest/types"
)

// DurableStore is the persistence the job queue needs to survive a
// restart (§4.7 Recovery, §4.6 "Durable job schema"). It is deliberately
// separate from types.RelationalStore: that interface is scoped to
// document/chunk rows, while a Job is a queue-internal record with its
// own lifecycle (file bytes, retry bookkeeping, timestamps) that has no
// reason to flow through the document persistence path.
type DurableStore interface {
	Save(ctx context.Context, job types.Job) error
	UpdateStatus(ctx context.Context, jobID string, status types.JobStatus, fields map[string]any) error
	Get(ctx context.Context, jobID string) (types.Job, bool, error)
	ListByStatus(ctx context.Context, status types.JobStatus) ([]types.Job, error)
	Delete(ctx context.Context, jobID string) error
}
