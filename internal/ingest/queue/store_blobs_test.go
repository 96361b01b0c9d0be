package queue

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/autollama/autollama-sub002/internal/ingest/types"
	"github.com/autollama/autollama-sub002/internal/objectstore"
)

func TestBlobOffloadingStore_RoundTripsLargePayloadThroughObjectStore(t *testing.T) {
	blobs := objectstore.NewMemoryStore()
	store := WithBlobOffload(NewMemoryStore(), blobs, 16)

	job := types.Job{
		JobID: "job-1", Type: types.JobFileProcessing,
		File: &types.FileDescriptor{Bytes: []byte("this payload is definitely over sixteen bytes"), MimeType: "text/plain", OriginalName: "a.txt"},
	}
	require.NoError(t, store.Save(context.Background(), job))

	saved, ok, err := store.Get(context.Background(), "job-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, job.File.Bytes, saved.File.Bytes)
}

func TestBlobOffloadingStore_LeavesSmallPayloadsInline(t *testing.T) {
	blobs := objectstore.NewMemoryStore()
	inner := NewMemoryStore()
	store := WithBlobOffload(inner, blobs, 1024)

	job := types.Job{
		JobID: "job-2", Type: types.JobFileProcessing,
		File: &types.FileDescriptor{Bytes: []byte("tiny"), MimeType: "text/plain", OriginalName: "b.txt"},
	}
	require.NoError(t, store.Save(context.Background(), job))

	rawSaved, _, err := inner.Get(context.Background(), "job-2")
	require.NoError(t, err)
	require.Equal(t, []byte("tiny"), rawSaved.File.Bytes, "payload below threshold must stay inline on the wrapped store")
}

func TestWithBlobOffload_NilObjectStoreIsPassthrough(t *testing.T) {
	inner := NewMemoryStore()
	store := WithBlobOffload(inner, nil, 16)
	require.Same(t, inner, store)
}
