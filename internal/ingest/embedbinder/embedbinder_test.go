package embedbinder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/autollama/autollama-sub002/internal/ingest/types"
)

type fakeAI struct {
	lastText, lastContext string
}

func (f *fakeAI) AnalyzeChunk(context.Context, string) (types.Analysis, error) { return types.Analysis{}, nil }
func (f *fakeAI) GenerateSummary(context.Context, string) (string, error)      { return "", nil }
func (f *fakeAI) Complete(context.Context, string, types.CompleteOptions) (string, error) {
	return "", nil
}
func (f *fakeAI) GenerateEmbedding(_ context.Context, text, ctx string) ([]float32, error) {
	f.lastText, f.lastContext = text, ctx
	return []float32{1, 2, 3}, nil
}

func TestBinder_EmbedWithoutContext(t *testing.T) {
	ai := &fakeAI{}
	b := New(ai)
	v, err := b.Embed(context.Background(), "hello", "")
	require.NoError(t, err)
	require.Equal(t, []float32{1, 2, 3}, v)
	require.Equal(t, "hello", ai.lastText)
	require.Empty(t, ai.lastContext)
	require.False(t, UsesContext(""))
}

func TestBinder_EmbedWithContext(t *testing.T) {
	ai := &fakeAI{}
	b := New(ai)
	_, err := b.Embed(context.Background(), "hello", "  situating summary  ")
	require.NoError(t, err)
	require.Equal(t, "situating summary", ai.lastContext)
	require.True(t, UsesContext("situating summary"))
}
