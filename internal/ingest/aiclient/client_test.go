package aiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/autollama/autollama-sub002/internal/ingest/types"
)

type fakeCompleter struct {
	response string
	err      error
	lastPrompt string
}

func (f *fakeCompleter) complete(_ context.Context, prompt string, _ types.CompleteOptions) (string, error) {
	f.lastPrompt = prompt
	return f.response, f.err
}

func TestClient_AnalyzeChunk_ParsesJSONResponse(t *testing.T) {
	fc := &fakeCompleter{response: `{"sentiment":"positive","content_type":"narrative","technical_level":"beginner","topics":["go","testing"],"entities":["testify"]}`}
	c := &Client{backend: fc}

	analysis, err := c.AnalyzeChunk(context.Background(), "some chunk text")
	require.NoError(t, err)
	require.Equal(t, "positive", analysis.Sentiment)
	require.Equal(t, []string{"go", "testing"}, analysis.Topics)
	require.Contains(t, fc.lastPrompt, "some chunk text")
}

func TestClient_AnalyzeChunk_StripsCodeFence(t *testing.T) {
	fc := &fakeCompleter{response: "```json\n{\"sentiment\":\"neutral\",\"content_type\":\"reference\",\"technical_level\":\"advanced\",\"topics\":[],\"entities\":[]}\n```"}
	c := &Client{backend: fc}

	analysis, err := c.AnalyzeChunk(context.Background(), "text")
	require.NoError(t, err)
	require.Equal(t, "neutral", analysis.Sentiment)
}

func TestClient_AnalyzeChunk_PropagatesCompleteError(t *testing.T) {
	fc := &fakeCompleter{err: types.Wrap(types.ErrTransientExternal, errEmptyCompletion)}
	c := &Client{backend: fc}

	_, err := c.AnalyzeChunk(context.Background(), "text")
	require.Error(t, err)
}

func TestClient_GenerateSummary_TruncatesToFirst2000Chars(t *testing.T) {
	long := make([]byte, 5000)
	for i := range long {
		long[i] = 'a'
	}
	fc := &fakeCompleter{response: "a short summary"}
	c := &Client{backend: fc}

	summary, err := c.GenerateSummary(context.Background(), string(long))
	require.NoError(t, err)
	require.Equal(t, "a short summary", summary)

	embedded := string(long[:maxSummaryInput])
	require.Contains(t, fc.lastPrompt, embedded)
	require.NotContains(t, fc.lastPrompt, string(long[:maxSummaryInput+1]))
}

func TestClient_GenerateEmbedding_PostsToEmbeddingsEndpoint(t *testing.T) {
	var gotReq embeddingRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/embeddings", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(embeddingResponse{
			Data: []struct {
				Embedding []float32 `json:"embedding"`
				Index     int       `json:"index"`
			}{{Embedding: []float32{0.1, 0.2, 0.3}, Index: 0}},
		})
	}))
	defer server.Close()

	c := &Client{
		embeddingHTTP:  server.Client(),
		embeddingURL:   server.URL + "/v1/embeddings",
		embeddingKey:   "test-key",
		embeddingModel: "text-embedding-3-small",
	}

	vec, err := c.GenerateEmbedding(context.Background(), "hello world", "")
	require.NoError(t, err)
	require.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
	require.Equal(t, []string{"hello world"}, gotReq.Input)
}

func TestClient_GenerateEmbedding_PrependsContext(t *testing.T) {
	var gotReq embeddingRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		_ = json.NewEncoder(w).Encode(embeddingResponse{Data: []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}{{Embedding: []float32{1}, Index: 0}}})
	}))
	defer server.Close()

	c := &Client{embeddingHTTP: server.Client(), embeddingURL: server.URL, embeddingModel: "m"}
	_, err := c.GenerateEmbedding(context.Background(), "chunk text", "situating summary")
	require.NoError(t, err)
	require.Equal(t, []string{"situating summary\n\nchunk text"}, gotReq.Input)
}

func TestClient_GenerateEmbedding_RateLimitIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	c := &Client{embeddingHTTP: server.Client(), embeddingURL: server.URL, embeddingModel: "m"}
	_, err := c.GenerateEmbedding(context.Background(), "text", "")
	require.Error(t, err)
	require.True(t, types.Retryable(err))
}

func TestClient_GenerateEmbedding_UnauthorizedIsNotRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	c := &Client{embeddingHTTP: server.Client(), embeddingURL: server.URL, embeddingModel: "m"}
	_, err := c.GenerateEmbedding(context.Background(), "text", "")
	require.Error(t, err)
	require.False(t, types.Retryable(err))
}

func TestIsThinkingModel(t *testing.T) {
	require.True(t, isThinkingModel("o4-mini"))
	require.True(t, isThinkingModel("o1-pro"))
	require.False(t, isThinkingModel("gpt-4o-mini"))
	require.False(t, isThinkingModel("o"))
}
