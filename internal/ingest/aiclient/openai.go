package aiclient

import (
	"context"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/packages/param"
	"github.com/openai/openai-go/v2/shared"

	"github.com/autollama/autollama-sub002/internal/config"
	"github.com/autollama/autollama-sub002/internal/ingest/types"
)

// openAIBackend wraps the OpenAI SDK client, adapted from the teacher's
// internal/llm/openai_client.go CallLLM (same isThinkingModel branch for
// o-series reasoning models, which take max_completion_tokens instead of
// max_tokens).
type openAIBackend struct {
	sdk   openai.Client
	model string
}

func newOpenAIBackend(cfg config.AIConfig, httpClient *http.Client) *openAIBackend {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithHTTPClient(httpClient)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &openAIBackend{sdk: openai.NewClient(opts...), model: model}
}

func isThinkingModel(model string) bool {
	model = strings.ToLower(model)
	if !strings.HasPrefix(model, "o") {
		return false
	}
	rest := model[1:]
	i := 0
	for ; i < len(rest) && rest[i] >= '0' && rest[i] <= '9'; i++ {
	}
	return i > 0 && i < len(rest) && rest[i] == '-'
}

func (b *openAIBackend) complete(ctx context.Context, prompt string, opt types.CompleteOptions) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(b.model),
		Messages:    []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
		Temperature: param.NewOpt(opt.Temperature),
	}
	if isThinkingModel(b.model) {
		params.MaxCompletionTokens = param.NewOpt(int64(opt.MaxTokens))
	} else {
		params.MaxTokens = param.NewOpt(int64(opt.MaxTokens))
	}

	resp, err := b.sdk.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", types.Wrap(types.ErrTransientExternal, errEmptyCompletion)
	}
	return resp.Choices[0].Message.Content, nil
}
