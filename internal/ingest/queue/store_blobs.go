package queue

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/autollama/autollama-sub002/internal/objectstore"

	"github.com/autollama/autollama-sub002/internal/ingest/types"
)

// blobOffloadingStore decorates a DurableStore so that a file_processing
// job's bytes above sizeThreshold are written to an objectstore.ObjectStore
// instead of inline on the Job row, per SPEC_FULL.md's DOMAIN STACK note:
// "object-store backing for file-ingestion job payloads above a size
// threshold, so large file_processing jobs don't bloat the durable job
// table with inline base64." The Job's File.Bytes field is replaced with a
// reference key on Save and rehydrated on Get/ListByStatus, so every other
// DurableStore implementation and caller stays unaware of the offload.
type blobOffloadingStore struct {
	inner     DurableStore
	blobs     objectstore.ObjectStore
	threshold int64
}

// WithBlobOffload wraps store so file payloads at or above thresholdBytes
// are kept in blobs rather than inline. blobs may be nil, in which case
// the wrapper is a no-op passthrough (useful when ObjectStore backend is
// configured "memory"-sized-down or disabled entirely).
func WithBlobOffload(store DurableStore, blobs objectstore.ObjectStore, thresholdBytes int64) DurableStore {
	if blobs == nil || thresholdBytes <= 0 {
		return store
	}
	return &blobOffloadingStore{inner: store, blobs: blobs, threshold: thresholdBytes}
}

func blobKey(jobID string) string { return fmt.Sprintf("ingest-jobs/%s/payload", jobID) }

func (s *blobOffloadingStore) Save(ctx context.Context, job types.Job) error {
	if job.File != nil && int64(len(job.File.Bytes)) >= s.threshold {
		key := blobKey(job.JobID)
		if _, err := s.blobs.Put(ctx, key, bytes.NewReader(job.File.Bytes), objectstore.PutOptions{ContentType: job.File.MimeType}); err != nil {
			return fmt.Errorf("offload job payload: %w", err)
		}
		offloaded := *job.File
		offloaded.Bytes = nil
		job.File = &offloaded
	}
	return s.inner.Save(ctx, job)
}

func (s *blobOffloadingStore) UpdateStatus(ctx context.Context, jobID string, status types.JobStatus, fields map[string]any) error {
	return s.inner.UpdateStatus(ctx, jobID, status, fields)
}

func (s *blobOffloadingStore) Get(ctx context.Context, jobID string) (types.Job, bool, error) {
	job, ok, err := s.inner.Get(ctx, jobID)
	if err != nil || !ok {
		return job, ok, err
	}
	if err := s.rehydrate(ctx, &job); err != nil {
		return types.Job{}, false, err
	}
	return job, true, nil
}

func (s *blobOffloadingStore) ListByStatus(ctx context.Context, status types.JobStatus) ([]types.Job, error) {
	jobs, err := s.inner.ListByStatus(ctx, status)
	if err != nil {
		return nil, err
	}
	for i := range jobs {
		if err := s.rehydrate(ctx, &jobs[i]); err != nil {
			return nil, err
		}
	}
	return jobs, nil
}

func (s *blobOffloadingStore) Delete(ctx context.Context, jobID string) error {
	_ = s.blobs.Delete(ctx, blobKey(jobID))
	return s.inner.Delete(ctx, jobID)
}

// rehydrate fetches offloaded bytes back onto job.File if the job's
// payload was stored by reference rather than inline.
func (s *blobOffloadingStore) rehydrate(ctx context.Context, job *types.Job) error {
	if job.File == nil || len(job.File.Bytes) > 0 {
		return nil
	}
	key := blobKey(job.JobID)
	r, _, err := s.blobs.Get(ctx, key)
	if err != nil {
		if err == objectstore.ErrNotFound {
			return nil // payload was always inline/empty, not offloaded
		}
		return fmt.Errorf("rehydrate job payload: %w", err)
	}
	defer r.Close()
	body, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read offloaded payload: %w", err)
	}
	job.File.Bytes = body
	return nil
}
