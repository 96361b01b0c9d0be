package queue

import (
	"context"
	"time"

	"github.com/autollama/autollama-sub002/internal/ingest/types"
)

// heartbeatLoop periodically refreshes last_heartbeat for every active
// job's session (§4.7: "last_heartbeat updated by a periodic timer").
func (q *Queue) heartbeatLoop(ctx context.Context) {
	defer q.wg.Done()
	if q.sessions == nil {
		<-q.stopCh
		return
	}
	t := time.NewTicker(q.cfg.HeartbeatInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.stopCh:
			return
		case <-t.C:
			for _, sessionID := range q.activeSessionIDs() {
				_ = q.sessions.UpdateActivity(sessionID)
			}
			q.publishHeartbeats(ctx)
		}
	}
}

func (q *Queue) publishHeartbeats(ctx context.Context) {
	q.mu.Lock()
	jobs := make([]types.Job, 0, len(q.active))
	for _, aj := range q.active {
		jobs = append(jobs, aj.job)
	}
	q.mu.Unlock()
	for _, job := range jobs {
		q.publish(ctx, job, types.EventHeartbeat)
	}
}

func (q *Queue) activeSessionIDs() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, 0, len(q.active))
	for _, aj := range q.active {
		out = append(out, aj.job.SessionID)
	}
	return out
}

// cleanupLoop implements the §4.7 cleanup sweep: fail any active job
// whose session has gone quiet past heartbeat_timeout/progress_timeout.
// A job past its absolute deadline is skipped by the sweep; the job's own
// context timeout set in startJob ends it.
func (q *Queue) cleanupLoop(ctx context.Context) {
	defer q.wg.Done()
	t := time.NewTicker(q.cfg.CleanupInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.stopCh:
			return
		case <-t.C:
			q.sweep()
		}
	}
}

func (q *Queue) sweep() {
	if q.sessions == nil {
		return
	}
	now := q.now()

	q.mu.Lock()
	type candidate struct {
		jobID  string
		reason string
	}
	var stale []candidate
	for jobID, aj := range q.active {
		if now.Sub(aj.startedAt) > q.cfg.JobTimeout {
			continue // the job's own context deadline will fire imminently
		}
		session, ok := q.sessions.Get(aj.job.SessionID)
		if !ok {
			continue
		}
		switch {
		case now.Sub(session.LastHeartbeat) > q.cfg.HeartbeatTimeout:
			stale = append(stale, candidate{jobID, "heartbeat_timeout"})
		case now.Sub(session.LastProgressUpdate) > q.cfg.ProgressTimeout:
			stale = append(stale, candidate{jobID, "progress_timeout"})
		}
	}
	for _, c := range stale {
		if aj, ok := q.active[c.jobID]; ok {
			aj.reason = c.reason
			aj.cancel()
		}
	}
	q.mu.Unlock()
}

// CancelJob removes jobID from the pending queue, or — if it is already
// active — flips it to cancelled via its context (§4.7 cancellation).
func (q *Queue) CancelJob(ctx context.Context, jobID string) error {
	q.mu.Lock()
	if job, ok := q.heap.removeByJobID(jobID); ok {
		q.mu.Unlock()
		job.Status = types.JobCancelled
		return q.store.UpdateStatus(ctx, job.JobID, types.JobCancelled, nil)
	}
	aj, ok := q.active[jobID]
	if !ok {
		q.mu.Unlock()
		return types.Wrap(types.ErrInvalidInput, errUnknownJob)
	}
	aj.reason = "cancelled"
	if q.sessions != nil {
		_ = q.sessions.Cancel(aj.job.SessionID)
	}
	aj.cancel()
	q.mu.Unlock()
	return nil
}

// CancelSession atomically cancels every job belonging to sessionID,
// whether queued or active (§4.7: "cancels all jobs for that session
// atomically (in-memory plus durable store update)").
func (q *Queue) CancelSession(ctx context.Context, sessionID string) error {
	q.mu.Lock()
	removed := q.heap.removeBySessionID(sessionID)
	var activeMatches []*activeJob
	for _, aj := range q.active {
		if aj.job.SessionID == sessionID {
			aj.reason = "cancelled"
			activeMatches = append(activeMatches, aj)
		}
	}
	q.mu.Unlock()

	if len(removed) == 0 && len(activeMatches) == 0 {
		return types.Wrap(types.ErrInvalidInput, errUnknownSession)
	}

	for _, job := range removed {
		_ = q.store.UpdateStatus(ctx, job.JobID, types.JobCancelled, nil)
	}
	if q.sessions != nil {
		_ = q.sessions.Cancel(sessionID)
	}
	for _, aj := range activeMatches {
		aj.cancel()
	}
	return nil
}
