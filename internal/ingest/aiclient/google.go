package aiclient

import (
	"context"
	"net/http"
	"strings"

	genai "google.golang.org/genai"

	"github.com/autollama/autollama-sub002/internal/config"
	"github.com/autollama/autollama-sub002/internal/ingest/types"
)

// googleBackend is a minimal single-turn completer over the Gemini SDK,
// narrowed from the teacher's internal/llm/google.Client (which also
// handles tool calling and streaming).
type googleBackend struct {
	client *genai.Client
	model  string
}

func newGoogleBackend(cfg config.AIConfig, httpClient *http.Client) (*googleBackend, error) {
	model := cfg.Model
	if model == "" {
		model = "gemini-1.5-flash"
	}
	httpOpts := genai.HTTPOptions{}
	if cfg.Timeout > 0 {
		t := cfg.Timeout
		httpOpts.Timeout = &t
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		httpOpts.BaseURL = strings.TrimSuffix(base, "/") + "/"
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		HTTPClient:  httpClient,
		HTTPOptions: httpOpts,
	})
	if err != nil {
		return nil, err
	}
	return &googleBackend{client: client, model: model}, nil
}

func (b *googleBackend) complete(ctx context.Context, prompt string, opt types.CompleteOptions) (string, error) {
	temp := float32(opt.Temperature)
	cfg := &genai.GenerateContentConfig{Temperature: &temp}
	if opt.MaxTokens > 0 {
		maxTokens := int32(opt.MaxTokens)
		cfg.MaxOutputTokens = maxTokens
	}
	resp, err := b.client.Models.GenerateContent(ctx, b.model, genai.Text(prompt), cfg)
	if err != nil {
		return "", classifyGoogleError(err)
	}
	text := resp.Text()
	if text == "" {
		return "", types.Wrap(types.ErrTransientExternal, errEmptyCompletion)
	}
	return text, nil
}
