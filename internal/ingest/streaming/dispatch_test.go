package streaming

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/autollama/autollama-sub002/internal/ingest/types"
)

type fakeSubmitter struct {
	mu       sync.Mutex
	jobs     []types.Job
	submitted chan struct{}
}

func newFakeSubmitter(expect int) *fakeSubmitter {
	return &fakeSubmitter{submitted: make(chan struct{}, expect)}
}

func (f *fakeSubmitter) Submit(_ context.Context, job types.Job) (types.Job, error) {
	f.mu.Lock()
	f.jobs = append(f.jobs, job)
	f.mu.Unlock()
	f.submitted <- struct{}{}
	return job, nil
}

func TestDispatcher_FirstThreeImmediateRestStaggered(t *testing.T) {
	sections := make([]Section, 5)
	for i := range sections {
		sections[i] = Section{Index: i, Title: "s", Content: "c"}
	}

	sub := newFakeSubmitter(len(sections))
	d := NewDispatcher(sub, nil)
	var sleptFor []time.Duration
	var mu sync.Mutex
	d.sleep = func(dur time.Duration) {
		mu.Lock()
		sleptFor = append(sleptFor, dur)
		mu.Unlock()
	}

	err := d.Dispatch(context.Background(), "doc-1", "book.pdf", "https://example.com/book.pdf", "pdf", sections, types.DefaultOptions(), "session-1")
	require.NoError(t, err)

	for i := 0; i < len(sections); i++ {
		select {
		case <-sub.submitted:
		case <-time.After(time.Second):
			t.Fatalf("section %d never submitted", i)
		}
	}

	sub.mu.Lock()
	defer sub.mu.Unlock()
	require.Len(t, sub.jobs, 5)
	for _, job := range sub.jobs {
		require.Equal(t, types.JobChapterDocumentProcessing, job.Type)
		require.NotNil(t, job.Section)
		if job.Section.SectionIndex < 3 {
			require.Equal(t, 1, job.Priority)
		} else {
			require.Equal(t, 2, job.Priority)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, sleptFor, 2)
	require.Equal(t, 6*time.Second, sleptFor[0])
	require.Equal(t, 8*time.Second, sleptFor[1])
}
