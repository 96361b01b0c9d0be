package persistence

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/autollama/autollama-sub002/internal/ingest/types"
)

// pgVectorStore implements types.VectorStore on pgvector, adapted from
// intelligencedev-manifold's internal/persistence/databases.pgVector —
// same CREATE-IF-NOT-EXISTS bootstrap and `vector` literal encoding,
// narrowed to Upsert/Delete (no SimilaritySearch: this service has no
// query-time surface).
type pgVectorStore struct {
	pool       *pgxpool.Pool
	dimensions int
}

// NewPostgresVectorStore bootstraps (if needed) and returns a pgvector-backed
// types.VectorStore.
func NewPostgresVectorStore(ctx context.Context, pool *pgxpool.Pool, dimensions int) (types.VectorStore, error) {
	if _, err := pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return nil, fmt.Errorf("enable pgvector extension: %w", err)
	}
	vecType := "vector"
	if dimensions > 0 {
		vecType = fmt.Sprintf("vector(%d)", dimensions)
	}
	_, err := pool.Exec(ctx, fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS chunk_embeddings (
  chunk_id TEXT PRIMARY KEY,
  vec %s,
  payload JSONB NOT NULL DEFAULT '{}'::jsonb
)`, vecType))
	if err != nil {
		return nil, fmt.Errorf("create chunk_embeddings table: %w", err)
	}
	return &pgVectorStore{pool: pool, dimensions: dimensions}, nil
}

func (p *pgVectorStore) Upsert(ctx context.Context, chunkID string, vector []float32, payload map[string]string) error {
	_, err := p.pool.Exec(ctx, `
INSERT INTO chunk_embeddings(chunk_id, vec, payload) VALUES ($1, $2::vector, $3)
ON CONFLICT (chunk_id) DO UPDATE SET vec = EXCLUDED.vec, payload = EXCLUDED.payload
`, chunkID, toVectorLiteral(vector), payload)
	if err != nil {
		return types.Wrap(types.ErrTransientExternal, err)
	}
	return nil
}

func (p *pgVectorStore) Delete(ctx context.Context, chunkID string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM chunk_embeddings WHERE chunk_id = $1`, chunkID)
	if err != nil {
		return types.Wrap(types.ErrTransientExternal, err)
	}
	return nil
}

func toVectorLiteral(v []float32) string {
	if len(v) == 0 {
		return "[]"
	}
	var b strings.Builder
	b.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%g", x)
	}
	b.WriteByte(']')
	return b.String()
}
