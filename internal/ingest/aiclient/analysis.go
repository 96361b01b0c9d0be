package aiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/autollama/autollama-sub002/internal/ingest/types"
)

const analysisPromptTemplate = `Analyze the following text chunk and respond with a single JSON object with exactly these fields: sentiment (one of positive/negative/neutral), content_type (a short label such as "narrative", "code", "reference"), technical_level (one of beginner/intermediate/advanced), topics (array of up to 5 short strings), entities (array of up to 10 named entities). Respond with JSON only, no surrounding text.

Text:
%s`

const summaryPromptTemplate = `Summarize the following text in 2-3 sentences, plain prose, no preamble.

Text:
%s`

// maxSummaryInput matches §4.5 step 2: the document summary is generated
// from the first 2 000 characters only.
const maxSummaryInput = 2000

// AnalyzeChunk implements types.AIClient. Failures (including a
// non-JSON response from a model that ignored the format instruction)
// propagate so C2/C5 callers can decide whether to mark the chunk
// unprocessed or retry.
func (c *Client) AnalyzeChunk(ctx context.Context, text string) (types.Analysis, error) {
	raw, err := c.Complete(ctx, fmt.Sprintf(analysisPromptTemplate, text), types.CompleteOptions{MaxTokens: 300, Temperature: 0})
	if err != nil {
		return types.Analysis{}, err
	}

	var parsed struct {
		Sentiment      string   `json:"sentiment"`
		ContentType    string   `json:"content_type"`
		TechnicalLevel string   `json:"technical_level"`
		Topics         []string `json:"topics"`
		Entities       []string `json:"entities"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &parsed); err != nil {
		return types.Analysis{}, types.Wrap(types.ErrTransientExternal, fmt.Errorf("parse analysis response: %w", err))
	}
	return types.Analysis{
		Sentiment:      parsed.Sentiment,
		ContentType:    parsed.ContentType,
		TechnicalLevel: parsed.TechnicalLevel,
		Topics:         parsed.Topics,
		Entities:       parsed.Entities,
	}, nil
}

// GenerateSummary implements types.AIClient. The caller (C5, §4.5 step 2)
// is responsible for the literal "Summary generation failed" fallback on
// error; this method only ever does the AI call.
func (c *Client) GenerateSummary(ctx context.Context, text string) (string, error) {
	if len(text) > maxSummaryInput {
		text = text[:maxSummaryInput]
	}
	return c.Complete(ctx, fmt.Sprintf(summaryPromptTemplate, text), types.CompleteOptions{MaxTokens: 150, Temperature: 0.2})
}

// extractJSONObject trims any leading/trailing prose or code fences a model
// might add despite being asked for JSON only, returning the first
// balanced-brace substring.
func extractJSONObject(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end < start {
		return s
	}
	return s[start : end+1]
}
