package aiclient

import (
	"context"
	"net/http"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/autollama/autollama-sub002/internal/config"
	"github.com/autollama/autollama-sub002/internal/ingest/types"
)

const defaultAnthropicMaxTokens = int64(1024)

// anthropicBackend is a minimal single-turn completer over the Anthropic
// SDK, narrowed from the teacher's internal/llm/anthropic.Client (which
// additionally handles tool calling, prompt caching, and streaming — none
// of which this ingestion-only AIClient surface needs).
type anthropicBackend struct {
	sdk   anthropic.Client
	model string
}

func newAnthropicBackend(cfg config.AIConfig, httpClient *http.Client) *anthropicBackend {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithHTTPClient(httpClient)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")))
	}
	model := cfg.Model
	if model == "" {
		model = string(anthropic.ModelClaude3_7SonnetLatest)
	}
	return &anthropicBackend{sdk: anthropic.NewClient(opts...), model: model}
}

func (b *anthropicBackend) complete(ctx context.Context, prompt string, opt types.CompleteOptions) (string, error) {
	maxTokens := defaultAnthropicMaxTokens
	if opt.MaxTokens > 0 {
		maxTokens = int64(opt.MaxTokens)
	}
	resp, err := b.sdk.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(b.model),
		MaxTokens: maxTokens,
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
	})
	if err != nil {
		return "", classifyAnthropicError(err)
	}
	var out strings.Builder
	for _, block := range resp.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			out.WriteString(tb.Text)
		}
	}
	if out.Len() == 0 {
		return "", types.Wrap(types.ErrTransientExternal, errEmptyCompletion)
	}
	return out.String(), nil
}
