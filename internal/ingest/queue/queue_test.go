package queue

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/autollama/autollama-sub002/internal/ingest/types"
)

type fakeRunner struct {
	mu       sync.Mutex
	calls    int
	behavior func(call int, job types.Job) (types.JobResult, error)
}

func (f *fakeRunner) Run(_ context.Context, job types.Job) (types.JobResult, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.mu.Unlock()
	if f.behavior != nil {
		return f.behavior(n, job)
	}
	return types.JobResult{TotalChunks: 1, ProcessedChunks: 1}, nil
}

type fakeSessions struct {
	mu       sync.Mutex
	sessions map[string]*types.Session
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{sessions: make(map[string]*types.Session)}
}

func (s *fakeSessions) Start(sessionID, jobID string, total int) *types.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	sess := &types.Session{SessionID: sessionID, JobID: jobID, Total: total, LastHeartbeat: now, LastProgressUpdate: now}
	s.sessions[sessionID] = sess
	return sess
}
func (s *fakeSessions) Get(sessionID string) (types.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return types.Session{}, false
	}
	return *sess, true
}
func (s *fakeSessions) UpdateActivity(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[sessionID]; ok {
		sess.LastHeartbeat = time.Now()
	}
	return nil
}
func (s *fakeSessions) MarkFailed(sessionID, reason string) error { return nil }
func (s *fakeSessions) Cancel(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[sessionID]; ok {
		sess.Cancelled = true
	}
	return nil
}
func (s *fakeSessions) Stop(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}
func (s *fakeSessions) StaleSince(cutoff time.Time) []types.Session { return nil }

func TestQueue_SubmitAndDispatchRunsJobToCompletion(t *testing.T) {
	store := NewMemoryStore()
	runner := &fakeRunner{}
	sessions := newFakeSessions()
	q := New(store, runner, sessions, nil, nil, nil, Config{DispatchInterval: 10 * time.Millisecond})

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
}

func TestQueue_RespectsMaxConcurrentJobs(t *testing.T) {
	store := NewMemoryStore()
	started := make(chan struct{}, 10)
	release := make(chan struct{})
	runner := &fakeRunner{behavior: func(call int, job types.Job) (types.JobResult, error) {
		started <- struct{}{}
		<-release
		return types.JobResult{}, nil
	}}
	q := New(store, runner, newFakeSessions(), nil, nil, nil, Config{MaxConcurrentJobs: 2, DispatchInterval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, q.Start(ctx))
	defer func() { close(release); q.Stop() }()

	for i := 0; i < 5; i++ {
		_, err := q.Submit(ctx, types.Job{Type: types.JobURLProcessing, URL: fmt.Sprintf("https://example.com/%d", i)})
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool { return len(started) == 2 }, time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 2, len(started))
}

func TestQueue_RetriesFailedJobThenTerminates(t *testing.T) {
	store := NewMemoryStore()
	runner := &fakeRunner{behavior: func(call int, job types.Job) (types.JobResult, error) {
		return types.JobResult{}, fmt.Errorf("boom")
	}}
	q := New(store, runner, newFakeSessions(), nil, nil, nil, Config{
		MaxConcurrentJobs: 1, MaxRetries: 2, RetryDelay: 10 * time.Millisecond, DispatchInterval: 5 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, q.Start(ctx))
	defer q.Stop()

	job, err := q.Submit(ctx, types.Job{Type: types.JobURLProcessing, URL: "https://example.com/fails"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		saved, ok, _ := store.Get(ctx, job.JobID)
		return ok && saved.Status == types.JobFailed
	}, 2*time.Second, 10*time.Millisecond)

	runner.mu.Lock()
	defer runner.mu.Unlock()
	require.Equal(t, 2, runner.calls)
}

func TestQueue_CancelJobRemovesQueuedJob(t *testing.T) {
	store := NewMemoryStore()
	runner := &fakeRunner{}
	// No dispatcher running: job stays queued so CancelJob hits the heap path.
	q := New(store, runner, newFakeSessions(), nil, nil, nil, Config{})

	job, err := q.Submit(context.Background(), types.Job{Type: types.JobURLProcessing, URL: "https://example.com/cancel"})
	require.NoError(t, err)

	require.NoError(t, q.CancelJob(context.Background(), job.JobID))

	saved, ok, _ := store.Get(context.Background(), job.JobID)
	require.True(t, ok)
	require.Equal(t, types.JobCancelled, saved.Status)
	require.Equal(t, 0, q.heap.len())
}

func TestQueue_CancelJobUnknownReturnsError(t *testing.T) {
	q := New(NewMemoryStore(), &fakeRunner{}, newFakeSessions(), nil, nil, nil, Config{})
	err := q.CancelJob(context.Background(), "does-not-exist")
	require.Error(t, err)
}

func TestQueue_RecoversJobsStuckInProcessing(t *testing.T) {
	store := NewMemoryStore()
	stuckNow := time.Now()
	require.NoError(t, store.Save(context.Background(), types.Job{
		JobID: "stuck-1", SessionID: "s1", Type: types.JobURLProcessing,
		Status: types.JobProcessing, StartedAt: &stuckNow, Retries: 1,
	}))

	runner := &fakeRunner{}
	q := New(store, runner, newFakeSessions(), nil, nil, nil, Config{DispatchInterval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, q.Start(ctx))
	defer q.Stop()

	require.Eventually(t, func() bool {
		saved, ok, _ := store.Get(ctx, "stuck-1")
		return ok && saved.Status == types.JobCompleted
	}, time.Second, 10*time.Millisecond)

	saved, _, _ := store.Get(ctx, "stuck-1")
	require.Equal(t, 1, saved.Retries, "recovery must preserve the prior retry count")
}
