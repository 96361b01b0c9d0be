// Package embedbinder implements C3: combining chunk text with an optional
// contextual summary and requesting an embedding vector from an AIClient.
//
// Generalized from internal/rag/embedder.Embedder, with the contract
// widened to accept the optional context string the spec's ContextEngine
// produces. Binder itself applies no rate limiting.
package embedbinder

import (
	"context"
	"strings"

	"github.com/autollama/autollama-sub002/internal/ingest/types"
)

// Binder combines chunk text with an optional context and requests an
// embedding from an AIClient. Failures propagate: unlike ContextEngine,
// there is no "fall back to absent" behavior here.
type Binder struct {
	ai types.AIClient
}

// New constructs a Binder backed by the given AIClient.
func New(ai types.AIClient) *Binder {
	return &Binder{ai: ai}
}

// Embed requests an embedding for chunkText. When context is non-empty,
// it is supplied to the AIClient so the resulting embedding reflects
// chunk + context (contextual embedding); otherwise a plain embedding of
// chunkText is requested.
func (b *Binder) Embed(ctx context.Context, chunkText, context_ string) ([]float32, error) {
	context_ = strings.TrimSpace(context_)
	return b.ai.GenerateEmbedding(ctx, chunkText, context_)
}

// UsesContext reports whether a non-empty context would be attached for
// the given context string, mirroring the Chunk.UsesContextualEmbedding
// flag the pipeline persists.
func UsesContext(context_ string) bool {
	return strings.TrimSpace(context_) != ""
}
