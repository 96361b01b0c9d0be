package session

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTracker_StartAndValidate(t *testing.T) {
	tr := New(nil, nil)
	require.False(t, tr.Validate("s1"))

	tr.Start("s1", "job-1", 10)
	require.True(t, tr.Validate("s1"))

	s, ok := tr.Get("s1")
	require.True(t, ok)
	require.Equal(t, "job-1", s.JobID)
	require.Equal(t, 10, s.Total)
}

func TestTracker_RecordProgressUpdatesCountersAndClock(t *testing.T) {
	tr := New(nil, nil)
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return fixed }
	tr.Start("s1", "job-1", 5)

	require.NoError(t, tr.RecordProgress("s1", 1))
	require.NoError(t, tr.RecordProgress("s1", 1))

	s, ok := tr.Get("s1")
	require.True(t, ok)
	require.Equal(t, 2, s.Processed)
	require.Equal(t, 2, s.ChunksProcessed)
	require.Equal(t, 2, s.ProgressUpdates)
	require.Equal(t, fixed, s.LastProgressUpdate)
}

func TestTracker_RecordProgressUnknownSession(t *testing.T) {
	tr := New(nil, nil)
	err := tr.RecordProgress("missing", 1)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrUnknownSession))
}

func TestTracker_MarkFailedAndStop(t *testing.T) {
	tr := New(nil, nil)
	tr.Start("s1", "job-1", 1)

	require.NoError(t, tr.MarkFailed("s1", "embedding timeout"))
	s, ok := tr.Get("s1")
	require.True(t, ok)
	require.Equal(t, "embedding timeout", s.FailureReason)

	tr.Stop("s1")
	require.False(t, tr.Validate("s1"))
}

func TestTracker_CancelAndIsCancelled(t *testing.T) {
	tr := New(nil, nil)
	tr.Start("s1", "job-1", 1)
	require.False(t, tr.IsCancelled("s1"))

	require.NoError(t, tr.Cancel("s1"))
	require.True(t, tr.IsCancelled("s1"))
}

func TestTracker_IsCancelled_UnknownSessionReportsTrue(t *testing.T) {
	tr := New(nil, nil)
	require.True(t, tr.IsCancelled("nonexistent"))
}

func TestTracker_StaleSince(t *testing.T) {
	tr := New(nil, nil)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return base }
	tr.Start("stale", "job-1", 1)

	tr.now = func() time.Time { return base.Add(10 * time.Minute) }
	tr.Start("fresh", "job-2", 1)

	stale := tr.StaleSince(base.Add(5 * time.Minute))
	require.Len(t, stale, 1)
	require.Equal(t, "stale", stale[0].SessionID)
}
