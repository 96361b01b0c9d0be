package aiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/autollama/autollama-sub002/internal/ingest/types"
)

// embeddingRequest/embeddingResponse mirror the OpenAI-compatible wire
// format the teacher's internal/llm/embeddings.go speaks to local and
// hosted embedding servers alike (nomic-embed-text, text-embedding-3-*,
// ...). Kept as raw HTTP rather than going through an SDK, same as the
// teacher: there is no single SDK shared across embedding backends.
type embeddingRequest struct {
	Input          []string `json:"input"`
	Model          string   `json:"model"`
	EncodingFormat string   `json:"encoding_format"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// GenerateEmbedding implements types.AIClient. When context_ is non-empty
// it is prepended to text (situated-context embedding, §4.2/§4.3); a bare
// concatenation matches the contextual-embedding convention the contextual
// retrieval technique this ingestion pipeline descends from uses.
func (c *Client) GenerateEmbedding(ctx context.Context, text, context_ string) ([]float32, error) {
	input := text
	if strings.TrimSpace(context_) != "" {
		input = context_ + "\n\n" + text
	}

	body, err := json.Marshal(embeddingRequest{
		Input:          []string{input},
		Model:          c.embeddingModel,
		EncodingFormat: "float",
	})
	if err != nil {
		return nil, types.Wrap(types.ErrInvalidInput, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.embeddingURL, bytes.NewReader(body))
	if err != nil {
		return nil, types.Wrap(types.ErrInvalidInput, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.embeddingKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.embeddingKey)
	}

	resp, err := c.embeddingHTTP.Do(req)
	if err != nil {
		return nil, classifyProviderError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("embeddings endpoint returned status %d", resp.StatusCode)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, types.Wrap(types.ErrTransientExternal, err)
		}
		return nil, types.Wrap(types.ErrPermanentExternal, err)
	}

	var parsed embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, types.Wrap(types.ErrTransientExternal, err)
	}
	if len(parsed.Data) == 0 {
		return nil, types.Wrap(types.ErrTransientExternal, fmt.Errorf("embeddings endpoint returned no data"))
	}
	return parsed.Data[0].Embedding, nil
}
