package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/autollama/autollama-sub002/internal/ingest/types"
)

type fakeLock struct {
	mu      sync.Mutex
	held    map[string]bool
	deny    map[string]bool
	acquire int
}

func newFakeLock() *fakeLock {
	return &fakeLock{held: make(map[string]bool), deny: make(map[string]bool)}
}

func (l *fakeLock) Acquire(_ context.Context, jobID string, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.acquire++
	if l.deny[jobID] {
		return false, nil
	}
	l.held[jobID] = true
	return true, nil
}

func (l *fakeLock) Release(_ context.Context, jobID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, jobID)
	return nil
}

func TestQueue_SkipsJobAlreadyHeldByAnotherInstance(t *testing.T) {
	store := NewMemoryStore()
	runner := &fakeRunner{}
	lock := newFakeLock()
	q := New(store, runner, newFakeSessions(), nil, nil, nil, Config{DispatchInterval: 10 * time.Millisecond})
	q.SetLock(lock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, q.Start(ctx))
	defer q.Stop()

	job, err := q.Submit(ctx, types.Job{Type: types.JobURLProcessing, URL: "https://example.com"})
	require.NoError(t, err)

	lock.mu.Lock()
	lock.deny[job.JobID] = true
	lock.mu.Unlock()

	time.Sleep(50 * time.Millisecond)

	saved, ok, err := store.Get(ctx, job.JobID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, types.JobQueued, saved.Status, "a job another instance holds the lock on must stay queued, not run locally")
}

func TestQueue_ReleasesLockAfterJobCompletes(t *testing.T) {
	store := NewMemoryStore()
	runner := &fakeRunner{}
	lock := newFakeLock()
	q := New(store, runner, newFakeSessions(), nil, nil, nil, Config{DispatchInterval: 10 * time.Millisecond})
	q.SetLock(lock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, q.Start(ctx))
	defer q.Stop()

	job, err := q.Submit(ctx, types.Job{Type: types.JobURLProcessing, URL: "https://example.com"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		saved, ok, _ := store.Get(ctx, job.JobID)
		return ok && saved.Status == types.JobCompleted
	}, time.Second, 10*time.Millisecond)

	lock.mu.Lock()
	defer lock.mu.Unlock()
	require.False(t, lock.held[job.JobID], "lock must be released once the job finishes")
}
