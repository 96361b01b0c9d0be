// Package aiclient implements types.AIClient against the teacher's three
// chat-model SDKs (OpenAI, Anthropic, Google), selected by AIConfig.Provider,
// plus an OpenAI-compatible embeddings endpoint shared by all three
// providers (text-embedding-3-small and most local/self-hosted embedding
// servers speak this wire format regardless of the chat provider in use).
package aiclient

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/autollama/autollama-sub002/internal/config"
	"github.com/autollama/autollama-sub002/internal/ingest/types"
)

// completer is the minimal "send a prompt, get text back" capability each
// provider backend implements; Client dispatches to one based on
// config.AIConfig.Provider.
type completer interface {
	complete(ctx context.Context, prompt string, opt types.CompleteOptions) (string, error)
}

// Client implements types.AIClient, wiring a provider-specific completer
// for Complete/AnalyzeChunk/GenerateSummary and a shared HTTP embeddings
// client for GenerateEmbedding.
type Client struct {
	backend       completer
	embeddingHTTP *http.Client
	embeddingURL  string
	embeddingKey  string
	embeddingModel string
}

// New constructs a Client for the configured provider. Supported providers:
// "openai" (default), "anthropic", "google".
func New(cfg config.AIConfig) (*Client, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}

	var backend completer
	var err error
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "openai":
		backend = newOpenAIBackend(cfg, httpClient)
	case "anthropic":
		backend = newAnthropicBackend(cfg, httpClient)
	case "google":
		backend, err = newGoogleBackend(cfg, httpClient)
		if err != nil {
			return nil, fmt.Errorf("aiclient: init google backend: %w", err)
		}
	default:
		return nil, fmt.Errorf("aiclient: unknown provider %q", cfg.Provider)
	}

	embeddingURL := strings.TrimSuffix(cfg.BaseURL, "/") + "/embeddings"
	if cfg.BaseURL == "" {
		embeddingURL = "https://api.openai.com/v1/embeddings"
	}

	return &Client{
		backend:        backend,
		embeddingHTTP:  httpClient,
		embeddingURL:   embeddingURL,
		embeddingKey:   cfg.APIKey,
		embeddingModel: cfg.EmbeddingModel,
	}, nil
}

// Complete implements types.AIClient.
func (c *Client) Complete(ctx context.Context, prompt string, opt types.CompleteOptions) (string, error) {
	return c.backend.complete(ctx, prompt, opt)
}
