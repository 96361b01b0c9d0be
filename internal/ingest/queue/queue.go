// Package queue implements C7 JobQueue (§4.7): durable scheduling,
// bounded concurrency, retries, timeout/heartbeat/progress enforcement,
// cancellation, and crash recovery.
//
// Grounded on internal/orchestrator/kafka.go's StartKafkaConsumer: that
// function reads a channel into a fixed worker pool with per-message
// retry/backoff and DLQ-on-exhaustion. This queue keeps the same
// "bounded worker count, retry with backoff, exhaust to terminal
// failure" shape but replaces the worker pool's unbounded channel with
// an explicit priority heap (container/heap) so priority/FIFO ordering
// and a periodic dispatcher tick (rather than a blocking channel read)
// govern when a job starts, matching §4.7's "dispatcher runs every ~1s"
// contract.
package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/autollama/autollama-sub002/internal/ingest/obs"
	"github.com/autollama/autollama-sub002/internal/ingest/types"
)

func errorsIsCancelled(err error) bool {
	return errors.Is(err, types.ErrCancelled)
}

// Runner executes one job end to end (acquiring content, running the
// pipeline or the streaming splitter's sub-dispatch) and returns its
// result. The concrete implementation is wired in cmd/ingestd, combining
// a Parser, URLFetcher, pipeline.Pipeline, and streaming.Dispatcher —
// the queue itself only needs this one capability.
type Runner interface {
	Run(ctx context.Context, job types.Job) (types.JobResult, error)
}

// SessionManager is the narrow session.Tracker surface the queue drives:
// it starts/stops sessions around a job's lifetime and consults/updates
// their clocks during monitoring.
type SessionManager interface {
	Start(sessionID, jobID string, total int) *types.Session
	Get(sessionID string) (types.Session, bool)
	UpdateActivity(sessionID string) error
	MarkFailed(sessionID, reason string) error
	Cancel(sessionID string) error
	Stop(sessionID string)
	StaleSince(cutoff time.Time) []types.Session
}

// Publisher is the narrow progress.Bus surface used for job_* events.
type Publisher interface {
	Publish(ctx context.Context, event types.Event)
}

// Config carries the §4.7/§6 timing tunables. Decoupled from
// internal/config the same way pipeline.Config and streaming.Thresholds
// are.
type Config struct {
	MaxConcurrentJobs int
	JobTimeout        time.Duration
	MaxRetries        int
	RetryDelay        time.Duration
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
	ProgressTimeout   time.Duration
	CleanupInterval   time.Duration
	DispatchInterval  time.Duration
}

func (c Config) normalized() Config {
	if c.MaxConcurrentJobs <= 0 {
		c.MaxConcurrentJobs = 3
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = 2 * time.Hour
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 30 * time.Second
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = 5 * time.Minute
	}
	if c.ProgressTimeout <= 0 {
		c.ProgressTimeout = 10 * time.Minute
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = 3 * time.Minute
	}
	if c.DispatchInterval <= 0 {
		c.DispatchInterval = time.Second
	}
	return c
}

// activeJob tracks a currently-processing job's cancellation func so
// CancelJob/CancelSession/the cleanup sweep can stop it.
type activeJob struct {
	job       types.Job
	cancel    context.CancelFunc
	startedAt time.Time
	// reason disambiguates why cancel was called, since context.Canceled
	// alone can't tell an explicit CancelJob from a heartbeat/progress
	// timeout detected by the cleanup sweep. Empty until a stop is forced.
	reason string
}

// Queue is the C7 JobQueue: an in-memory priority heap backed by a
// DurableStore, dispatched by a ticker, monitored by a cleanup sweep and
// heartbeat timer.
type Queue struct {
	mu      sync.Mutex
	heap    *jobHeap
	active  map[string]*activeJob // jobID -> activeJob
	cfg     Config

	store    DurableStore
	runner   Runner
	sessions SessionManager
	bus      Publisher
	log      obs.Logger
	metrics  obs.Metrics
	// lock is an optional distributed claim so multiple ingestd instances
	// sharing a DurableStore don't both dispatch the same job. Nil in a
	// single-instance deployment.
	lock JobLock

	now func() time.Time

	wg     sync.WaitGroup
	stopCh chan struct{}
}

// New constructs a Queue. log/metrics/bus may be nil.
func New(store DurableStore, runner Runner, sessions SessionManager, bus Publisher, log obs.Logger, metrics obs.Metrics, cfg Config) *Queue {
	if log == nil {
		log = obs.NoopLogger{}
	}
	if metrics == nil {
		metrics = obs.NoopMetrics{}
	}
	return &Queue{
		heap:     newJobHeap(),
		active:   make(map[string]*activeJob),
		cfg:      cfg.normalized(),
		store:    store,
		runner:   runner,
		sessions: sessions,
		bus:      bus,
		log:      log,
		metrics:  metrics,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

// SetRunner replaces the Queue's Runner. Exists because streaming.Dispatcher
// needs the Queue itself as its JobSubmitter, so the Runner (which holds a
// Dispatcher) can only be fully constructed after the Queue is; callers build
// the Queue with a nil Runner, build the Dispatcher/Runner around it, then
// call SetRunner before Start. Not safe to call after Start.
func (q *Queue) SetRunner(runner Runner) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.runner = runner
}

// SetLock attaches a distributed JobLock for multi-instance deployments.
// Not safe to call after Start.
func (q *Queue) SetLock(lock JobLock) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.lock = lock
}

// Submit assigns a job_id/session_id (if absent), persists it, and
// enqueues it for dispatch. Matches the types.Job-shaped Runner contract
// so streaming.Dispatcher can submit chapter_document_processing jobs
// through the same path as a top-level URL/file job.
func (q *Queue) Submit(ctx context.Context, job types.Job) (types.Job, error) {
	if job.JobID == "" {
		job.JobID = uuid.NewString()
	}
	if job.SessionID == "" {
		job.SessionID = uuid.NewString()
	}
	if job.Priority == 0 {
		job.Priority = 5
	}
	job.Status = types.JobQueued
	now := q.now()
	job.CreatedAt = now
	job.UpdatedAt = now

	if err := q.store.Save(ctx, job); err != nil {
		return types.Job{}, err
	}

	q.mu.Lock()
	q.heap.push(job)
	q.mu.Unlock()

	q.publish(ctx, job, types.EventJobQueued)
	q.metrics.IncCounter("ingest_jobs_submitted_total", map[string]string{"type": string(job.Type)})
	return job, nil
}

// Start launches the dispatcher, cleanup sweep, and heartbeat timer as
// background goroutines, after running crash Recovery. It returns
// immediately; call Stop to shut everything down.
func (q *Queue) Start(ctx context.Context) error {
	if err := q.recover(ctx); err != nil {
		return err
	}

	q.wg.Add(3)
	go q.dispatchLoop(ctx)
	go q.cleanupLoop(ctx)
	go q.heartbeatLoop(ctx)
	return nil
}

// Stop signals all background loops to exit and waits for them.
func (q *Queue) Stop() {
	close(q.stopCh)
	q.wg.Wait()
}

// recover resets any durable job left in `processing` back to `queued`,
// preserving its retry count (§4.7 Recovery; the Open Question on
// whether to reset retries is decided in DESIGN.md: preserve them, since
// a crash mid-attempt shouldn't grant a free retry).
func (q *Queue) recover(ctx context.Context) error {
	stuck, err := q.store.ListByStatus(ctx, types.JobProcessing)
	if err != nil {
		return err
	}
	for _, job := range stuck {
		job.Status = types.JobQueued
		job.StartedAt = nil
		job.NextRetryAt = nil
		if err := q.store.Save(ctx, job); err != nil {
			q.log.Error("recovery: failed to requeue stuck job", map[string]any{"job_id": job.JobID, "error": err.Error()})
			continue
		}
		q.mu.Lock()
		q.heap.push(job)
		q.mu.Unlock()
		q.log.Info("recovery: requeued job stuck in processing", map[string]any{"job_id": job.JobID, "retries": job.Retries})
	}
	return nil
}

func (q *Queue) dispatchLoop(ctx context.Context) {
	defer q.wg.Done()
	t := time.NewTicker(q.cfg.DispatchInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.stopCh:
			return
		case <-t.C:
			q.dispatchTick(ctx)
		}
	}
}

func (q *Queue) dispatchTick(ctx context.Context) {
	for {
		q.mu.Lock()
		if len(q.active) >= q.cfg.MaxConcurrentJobs {
			q.mu.Unlock()
			return
		}
		job, ok := q.heap.pop()
		q.mu.Unlock()
		if !ok {
			return
		}
		if q.lock != nil {
			acquired, err := q.lock.Acquire(ctx, job.JobID, q.cfg.JobTimeout)
			if err != nil {
				q.log.Error("job lock acquire failed, requeuing", map[string]any{"job_id": job.JobID, "error": err.Error()})
				q.mu.Lock()
				q.heap.push(job)
				q.mu.Unlock()
				return
			}
			if !acquired {
				// Another instance holds it; leave it off this instance's
				// heap rather than busy-polling the same claim every tick.
				continue
			}
		}
		q.startJob(ctx, job)
	}
}

func (q *Queue) startJob(parent context.Context, job types.Job) {
	now := q.now()
	job.Status = types.JobProcessing
	job.StartedAt = &now
	job.UpdatedAt = now

	jobCtx, cancel := context.WithTimeout(parent, q.cfg.JobTimeout)

	q.mu.Lock()
	q.active[job.JobID] = &activeJob{job: job, cancel: cancel, startedAt: now}
	q.mu.Unlock()

	if q.sessions != nil {
		q.sessions.Start(job.SessionID, job.JobID, 0)
	}
	if err := q.store.UpdateStatus(parent, job.JobID, types.JobProcessing, map[string]any{"started_at": &now}); err != nil {
		q.log.Error("persist job start failed", map[string]any{"job_id": job.JobID, "error": err.Error()})
	}
	q.publish(parent, job, types.EventJobStarted)
	q.metrics.IncCounter("ingest_jobs_started_total", map[string]string{"type": string(job.Type)})

	q.wg.Add(1)
	go q.execute(jobCtx, cancel, job)
}

func (q *Queue) execute(ctx context.Context, cancel context.CancelFunc, job types.Job) {
	defer q.wg.Done()
	defer cancel()

	result, err := q.runner.Run(ctx, job)

	if q.lock != nil {
		if releaseErr := q.lock.Release(context.Background(), job.JobID); releaseErr != nil {
			q.log.Error("job lock release failed", map[string]any{"job_id": job.JobID, "error": releaseErr.Error()})
		}
	}

	q.mu.Lock()
	reason := ""
	if aj, ok := q.active[job.JobID]; ok {
		reason = aj.reason
	}
	delete(q.active, job.JobID)
	q.mu.Unlock()

	if q.sessions != nil {
		q.sessions.Stop(job.SessionID)
	}

	switch {
	case ctx.Err() == context.Canceled && reason == "heartbeat_timeout":
		q.finishFailure(context.Background(), job, types.Wrap(types.ErrTimeout, errHeartbeatTimeout))
	case ctx.Err() == context.Canceled && reason == "progress_timeout":
		q.finishFailure(context.Background(), job, types.Wrap(types.ErrTimeout, errProgressTimeout))
	case ctx.Err() == context.Canceled:
		q.finishCancelled(context.Background(), job)
	case ctx.Err() == context.DeadlineExceeded:
		q.finishFailure(context.Background(), job, types.Wrap(types.ErrTimeout, ctx.Err()))
	case err != nil:
		q.finishFailure(context.Background(), job, err)
	default:
		q.finishSuccess(context.Background(), job, result)
	}
}

func (q *Queue) finishSuccess(ctx context.Context, job types.Job, result types.JobResult) {
	now := q.now()
	job.Status = types.JobCompleted
	job.CompletedAt = &now
	job.Result = &result
	job.DurationMS = result.ProcessingMS
	_ = q.store.UpdateStatus(ctx, job.JobID, types.JobCompleted, map[string]any{
		"completed_at": &now, "result": &result, "duration_ms": result.ProcessingMS,
	})
	q.publish(ctx, job, types.EventJobCompleted)
	q.metrics.IncCounter("ingest_jobs_completed_total", map[string]string{"type": string(job.Type)})
}

func (q *Queue) finishCancelled(ctx context.Context, job types.Job) {
	now := q.now()
	job.Status = types.JobCancelled
	job.CompletedAt = &now
	_ = q.store.UpdateStatus(ctx, job.JobID, types.JobCancelled, map[string]any{"completed_at": &now})
	q.publish(ctx, job, types.EventJobCancelled)
	q.metrics.IncCounter("ingest_jobs_cancelled_total", map[string]string{"type": string(job.Type)})
}

// finishFailure applies the §4.7 retry policy: retries < max_retries is
// re-queued after retry_delay * retries; otherwise the job becomes
// terminal failed. A runner that reports ErrCancelled without the queue
// itself having cancelled the job's context is still never retried,
// matching "cancellation is never retried."
func (q *Queue) finishFailure(ctx context.Context, job types.Job, cause error) {
	if errorsIsCancelled(cause) {
		q.finishCancelled(ctx, job)
		return
	}
	job.Retries++
	jobErr := &types.JobError{Kind: errKind(cause), Message: cause.Error()}
	job.Error = jobErr

	if job.Retries < q.cfg.MaxRetries {
		delay := q.cfg.RetryDelay * time.Duration(job.Retries)
		nextAt := q.now().Add(delay)
		job.NextRetryAt = &nextAt
		job.Status = types.JobQueued
		_ = q.store.UpdateStatus(ctx, job.JobID, types.JobQueued, map[string]any{
			"retries": job.Retries, "next_retry_at": &nextAt, "error": jobErr,
		})
		q.log.Info("job failed, scheduling retry", map[string]any{"job_id": job.JobID, "retries": job.Retries, "delay": delay.String()})
		q.scheduleRetry(job, delay)
		return
	}

	now := q.now()
	job.Status = types.JobFailed
	job.FailedAt = &now
	_ = q.store.UpdateStatus(ctx, job.JobID, types.JobFailed, map[string]any{
		"failed_at": &now, "retries": job.Retries, "error": jobErr,
	})
	if q.sessions != nil {
		_ = q.sessions.MarkFailed(job.SessionID, cause.Error())
	}
	q.publish(ctx, job, types.EventJobFailed)
	q.metrics.IncCounter("ingest_jobs_failed_total", map[string]string{"type": string(job.Type)})
}

func (q *Queue) scheduleRetry(job types.Job, delay time.Duration) {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-q.stopCh:
			return
		}
		q.mu.Lock()
		q.heap.push(job)
		q.mu.Unlock()
	}()
}

func errKind(err error) string {
	switch {
	case types.Retryable(err):
		return "transient"
	default:
		return "permanent"
	}
}

func (q *Queue) publish(ctx context.Context, job types.Job, kind types.EventKind) {
	if q.bus == nil {
		return
	}
	q.bus.Publish(ctx, types.Event{JobID: job.JobID, SessionID: job.SessionID, Kind: kind, Timestamp: q.now()})
}
