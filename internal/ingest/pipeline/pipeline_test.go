package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/autollama/autollama-sub002/internal/ingest/contextengine"
	"github.com/autollama/autollama-sub002/internal/ingest/embedbinder"
	"github.com/autollama/autollama-sub002/internal/ingest/persistence"
	"github.com/autollama/autollama-sub002/internal/ingest/types"
)

type fakeAIClient struct {
	mu           sync.Mutex
	analyzeCalls int
	failAnalyzeAt map[int]bool
}

func (f *fakeAIClient) AnalyzeChunk(_ context.Context, text string) (types.Analysis, error) {
	f.mu.Lock()
	f.analyzeCalls++
	n := f.analyzeCalls
	f.mu.Unlock()
	if f.failAnalyzeAt != nil && f.failAnalyzeAt[n] {
		return types.Analysis{}, fmt.Errorf("analysis unavailable")
	}
	return types.Analysis{ContentType: "prose", Sentiment: "neutral"}, nil
}

func (f *fakeAIClient) GenerateSummary(_ context.Context, text string) (string, error) {
	return "a short summary", nil
}

func (f *fakeAIClient) GenerateEmbedding(_ context.Context, text, context_ string) ([]float32, error) {
	return []float32{1, 2, 3}, nil
}

func (f *fakeAIClient) Complete(_ context.Context, prompt string, _ types.CompleteOptions) (string, error) {
	return "situates the chunk", nil
}

func newTestPipeline(ai types.AIClient, cfg Config) (*Pipeline, *persistence.Coordinator) {
	rel := persistence.NewMemoryRelationalStore()
	vec := persistence.NewMemoryVectorStore()
	coord := persistence.New(rel, vec, nil, nil)
	ctxEng := contextengine.New(ai, 10, 150, 0.3)
	binder := embedbinder.New(ai)
	p := New(ai, ctxEng, binder, coord, nil, nil, nil, nil, cfg)
	return p, coord
}

func TestPipeline_ProcessSmallDocumentStoresAllChunks(t *testing.T) {
	ai := &fakeAIClient{}
	p, _ := newTestPipeline(ai, Config{})

	content := "# Title\n\n" + sampleParagraphs(6)
	result, err := p.Process(context.Background(), content, "https://example.com/doc", "job-1", "session-1", types.DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, StateCompleted, result.State)
	require.Greater(t, result.TotalChunks, 0)
	require.Equal(t, result.TotalChunks, result.ProcessedChunks)
	require.Equal(t, result.TotalChunks, result.VectorStored)
	require.Equal(t, "Title", result.Document.Title)
}

func TestPipeline_AnalyzeFailureMarksChunkUnprocessedButContinues(t *testing.T) {
	ai := &fakeAIClient{failAnalyzeAt: map[int]bool{1: true}}
	p, _ := newTestPipeline(ai, Config{MaxConcurrent: 1})

	content := sampleParagraphs(4)
	result, err := p.Process(context.Background(), content, "https://example.com/partial", "job-2", "", types.DefaultOptions())
	require.NoError(t, err)
	require.Less(t, result.ProcessedChunks, result.TotalChunks)
}

func TestPipeline_CancelledSessionStopsEnqueuingFurtherBatches(t *testing.T) {
	ai := &fakeAIClient{}
	p, _ := newTestPipeline(ai, Config{MaxConcurrent: 1})
	p.sessions = alwaysCancelled{}

	content := sampleParagraphs(10)
	result, err := p.Process(context.Background(), content, "https://example.com/cancel", "job-3", "session-3", types.DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, StateCancelled, result.State)
	require.Equal(t, 0, result.ProcessedChunks)
}

func TestConcurrencyFor_AdaptiveTable(t *testing.T) {
	require.Equal(t, 1, concurrencyFor(1500, 3))
	require.Equal(t, 1, concurrencyFor(300, 3))
	require.Equal(t, 2, concurrencyFor(100, 3))
	require.Equal(t, 3, concurrencyFor(5, 3))
	require.Equal(t, 2, concurrencyFor(20, 3))
	require.Equal(t, 2, concurrencyFor(5, 2))
}

type alwaysCancelled struct{}

func (alwaysCancelled) IsCancelled(string) bool                  { return true }
func (alwaysCancelled) RecordProgress(string, int) error { return nil }

func sampleParagraphs(n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += fmt.Sprintf("Paragraph number %d contains a handful of sentences. It exists only to give the chunker real text to split on. Another sentence follows for good measure.\n\n", i)
	}
	return out
}
