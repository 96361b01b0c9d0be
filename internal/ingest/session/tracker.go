// Package session implements C9 SessionTracker (§4.9): the in-memory
// record of a currently-executing job's heartbeat/progress clocks and
// chunk counters, indexed by session_id.
package session

import (
	"sync"
	"time"

	"github.com/autollama/autollama-sub002/internal/ingest/obs"
	"github.com/autollama/autollama-sub002/internal/ingest/types"
)

// errors returned by Tracker methods.
var (
	ErrUnknownSession = trackerError("session: unknown session_id")
)

type trackerError string

func (e trackerError) Error() string { return string(e) }

// Tracker maintains the `session_id → session record` map described in
// §4.9, grounded on the same mutex-guarded-map shape
// internal/orchestrator/dedupe.go's Redis client wraps for its idempotency
// keys, simplified here since session state lives only as long as the
// owning process (no durability requirement — the durable source of truth
// is the Job row in C7, per §3's Job/Session split).
type Tracker struct {
	mu       sync.Mutex
	sessions map[string]*types.Session
	log      obs.Logger
	metrics  obs.Metrics
	now      func() time.Time
}

// New constructs an empty Tracker. log/metrics may be nil.
func New(log obs.Logger, metrics obs.Metrics) *Tracker {
	if log == nil {
		log = obs.NoopLogger{}
	}
	if metrics == nil {
		metrics = obs.NoopMetrics{}
	}
	return &Tracker{sessions: make(map[string]*types.Session), log: log, metrics: metrics, now: time.Now}
}

// Start creates a session record for a job entering `processing`. Calling
// Start on a session_id that already exists resets its counters — the
// queue guarantees one active job per session at a time (§4.7 retries
// reuse the original session_id, not a new one).
func (t *Tracker) Start(sessionID, jobID string, total int) *types.Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	s := &types.Session{
		SessionID:          sessionID,
		JobID:              jobID,
		Total:              total,
		LastActivity:       now,
		LastProgressUpdate: now,
		LastHeartbeat:      now,
	}
	t.sessions[sessionID] = s
	t.metrics.IncCounter("ingest_sessions_started_total", nil)
	return s
}

// Validate reports whether session_id currently refers to a live session.
func (t *Tracker) Validate(sessionID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.sessions[sessionID]
	return ok
}

// Get returns a copy of the session record, or false if unknown.
func (t *Tracker) Get(sessionID string) (types.Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[sessionID]
	if !ok {
		return types.Session{}, false
	}
	return *s, true
}

// UpdateActivity refreshes last_activity and last_heartbeat, used by the
// periodic heartbeat timer (§4.7) independent of chunk progress.
func (t *Tracker) UpdateActivity(sessionID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[sessionID]
	if !ok {
		return ErrUnknownSession
	}
	now := t.now()
	s.LastActivity = now
	s.LastHeartbeat = now
	return nil
}

// RecordProgress advances the processed-chunk counters and refreshes
// last_progress_update/last_activity, called from C5 after each chunk
// task resolves (§4.8: "every progress event additionally refreshes the
// owning session's last_progress_update").
func (t *Tracker) RecordProgress(sessionID string, processedDelta int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[sessionID]
	if !ok {
		return ErrUnknownSession
	}
	now := t.now()
	s.Processed += processedDelta
	s.ChunksProcessed += processedDelta
	s.ProgressUpdates++
	s.LastProgressUpdate = now
	s.LastActivity = now
	return nil
}

// MarkFailed records a terminal failure reason against the session. It
// does not remove the session from the map; Stop (called once the queue
// has durably recorded the job's terminal state) does that.
func (t *Tracker) MarkFailed(sessionID, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[sessionID]
	if !ok {
		return ErrUnknownSession
	}
	s.FailureReason = reason
	t.log.Error("session marked failed", map[string]any{"session_id": sessionID, "reason": reason})
	t.metrics.IncCounter("ingest_sessions_failed_total", nil)
	return nil
}

// Cancel flags the session as cancelled; the owning pipeline observes this
// at its next suspension point (§4.5 state machine, §4.7 cancellation).
func (t *Tracker) Cancel(sessionID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[sessionID]
	if !ok {
		return ErrUnknownSession
	}
	s.Cancelled = true
	return nil
}

// IsCancelled reports whether sessionID has been flagged for cancellation.
// Unknown sessions report true — a task racing session eviction should
// stop rather than keep running against state that no longer exists.
func (t *Tracker) IsCancelled(sessionID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[sessionID]
	if !ok {
		return true
	}
	return s.Cancelled
}

// Stop evicts the session, called when the owning job reaches a terminal
// state (§4.9: "Session eviction occurs when the owning job terminates").
func (t *Tracker) Stop(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, sessionID)
}

// StaleSince returns sessions whose last_heartbeat predates cutoff, for the
// cleanup sweep (§4.7) to cross-reference against job deadlines.
func (t *Tracker) StaleSince(cutoff time.Time) []types.Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []types.Session
	for _, s := range t.sessions {
		if s.LastHeartbeat.Before(cutoff) {
			out = append(out, *s)
		}
	}
	return out
}
