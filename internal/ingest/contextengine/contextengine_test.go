package contextengine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/autollama/autollama-sub002/internal/ingest/types"
)

type fakeAI struct {
	calls     int
	failTimes int
	failErr   error
	result    string
}

func (f *fakeAI) AnalyzeChunk(context.Context, string) (types.Analysis, error) { return types.Analysis{}, nil }
func (f *fakeAI) GenerateSummary(context.Context, string) (string, error)      { return "", nil }
func (f *fakeAI) GenerateEmbedding(context.Context, string, string) ([]float32, error) {
	return nil, nil
}
func (f *fakeAI) Complete(context.Context, string, types.CompleteOptions) (string, error) {
	f.calls++
	if f.calls <= f.failTimes {
		return "", f.failErr
	}
	return f.result, nil
}

func noSleep(_ context.Context, _ time.Duration) error { return nil }

func TestContextualize_SucceedsFirstTry(t *testing.T) {
	ai := &fakeAI{result: "This chunk introduces the topic."}
	e := New(ai, 10, 0, 0.2)
	e.sleep = noSleep
	summary, ok := e.Contextualize(context.Background(), "full document text", "chunk text", Options{ChunkIndex: 0, TotalChunks: 1})
	require.True(t, ok)
	require.Equal(t, "This chunk introduces the topic.", summary)
	require.Equal(t, 1, ai.calls)
}

func TestContextualize_RetriesOnTransientThenSucceeds(t *testing.T) {
	ai := &fakeAI{failTimes: 2, failErr: types.ErrTransientExternal, result: "summary"}
	e := New(ai, 10, 0, 0.2)
	e.sleep = noSleep
	summary, ok := e.Contextualize(context.Background(), "doc", "chunk", Options{TotalChunks: 1})
	require.True(t, ok)
	require.Equal(t, "summary", summary)
	require.Equal(t, 3, ai.calls)
}

func TestContextualize_NonRetryableReturnsAbsentImmediately(t *testing.T) {
	ai := &fakeAI{failTimes: 10, failErr: types.ErrPermanentExternal}
	e := New(ai, 10, 0, 0.2)
	e.sleep = noSleep
	_, ok := e.Contextualize(context.Background(), "doc", "chunk", Options{TotalChunks: 1})
	require.False(t, ok)
	require.Equal(t, 1, ai.calls)
}

func TestContextualize_ExhaustsRetriesReturnsAbsent(t *testing.T) {
	ai := &fakeAI{failTimes: 10, failErr: errors.New("boom")} // unclassified -> treated as transient/retryable
	e := New(ai, 10, 0, 0.2)
	e.sleep = noSleep
	_, ok := e.Contextualize(context.Background(), "doc", "chunk", Options{TotalChunks: 1})
	require.False(t, ok)
	require.Equal(t, 3, ai.calls)
}

func TestContextualize_StatsTrackRequestsAndSuccesses(t *testing.T) {
	ai := &fakeAI{result: "s"}
	e := New(ai, 10, 0, 0.2)
	e.sleep = noSleep
	_, _ = e.Contextualize(context.Background(), "doc", "chunk", Options{TotalChunks: 1})
	_, _ = e.Contextualize(context.Background(), "doc", "chunk2", Options{TotalChunks: 1})
	stats := e.Stats()
	require.Equal(t, int64(2), stats.TotalRequests)
	require.Equal(t, int64(2), stats.Successes)
	// second call should hit the document-analysis cache
	require.Equal(t, int64(1), stats.CacheHits)
}

func TestSampleWindow_BoundedAndCentered(t *testing.T) {
	big := make([]byte, 50000)
	for i := range big {
		big[i] = 'a'
	}
	doc := string(big)
	w := sampleWindow(doc, "", 25, 50, MaxSampleWindow)
	require.LessOrEqual(t, len([]rune(w)), MaxSampleWindow)
}
