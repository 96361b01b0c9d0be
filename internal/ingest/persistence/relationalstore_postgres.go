package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/autollama/autollama-sub002/internal/ingest/types"
)

const pgUniqueViolation = "23505"

// pgQuerier is the subset of pgxpool.Pool / pgx.Tx this store needs; queries
// route through whichever is active in ctx so Transaction(fn) actually
// scopes fn's writes to one transaction.
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txKey struct{}

func (s *pgRelationalStore) querier(ctx context.Context) pgQuerier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return s.pool
}

// pgRelationalStore implements types.RelationalStore on Postgres. Schema
// follows the column layout documented in intelligencedev-manifold's
// internal/persistence/databases/postgres_doc.go (a doc-comment-only file
// in the teacher describing the documents/embeddings/nodes/edges tables);
// this is that schema made real for the ingestion domain's document/chunk
// tables instead of the teacher's generic documents/nodes/edges layout.
type pgRelationalStore struct {
	pool *pgxpool.Pool
}

// NewPostgresRelationalStore bootstraps the documents/chunks tables (best
// effort CREATE IF NOT EXISTS, matching the teacher's dev-time migration
// stance — production deployments manage migrations externally) and
// returns a types.RelationalStore.
func NewPostgresRelationalStore(ctx context.Context, pool *pgxpool.Pool) (types.RelationalStore, error) {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			source_url TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			summary_preview TEXT NOT NULL DEFAULT '',
			content_type_tag TEXT NOT NULL DEFAULT '',
			total_chunks INT NOT NULL DEFAULT 0,
			content_length INT NOT NULL DEFAULT 0,
			processing_status TEXT NOT NULL DEFAULT 'processing',
			record_kind TEXT NOT NULL DEFAULT 'document',
			parent_document_id TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS documents_url_kind_idx ON documents(source_url, record_kind)`,
		`CREATE TABLE IF NOT EXISTS chunks (
			chunk_id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL REFERENCES documents(id),
			chunk_index INT NOT NULL,
			chunk_text TEXT NOT NULL,
			contextual_summary TEXT NOT NULL DEFAULT '',
			uses_contextual_embedding BOOLEAN NOT NULL DEFAULT false,
			embedding_status TEXT NOT NULL DEFAULT 'pending',
			processing_status TEXT NOT NULL DEFAULT 'processing',
			analysis JSONB NOT NULL DEFAULT '{}'::jsonb,
			enhanced_metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (document_id, chunk_index)
		)`,
	}
	for _, s := range stmts {
		if _, err := pool.Exec(ctx, s); err != nil {
			return nil, fmt.Errorf("bootstrap relational schema: %w", err)
		}
	}
	return &pgRelationalStore{pool: pool}, nil
}

func (s *pgRelationalStore) UpsertDocument(ctx context.Context, doc types.Document) (types.Document, error) {
	row := s.querier(ctx).QueryRow(ctx, `
INSERT INTO documents (id, source_url, title, summary_preview, content_type_tag, total_chunks, content_length, processing_status, record_kind, parent_document_id)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NULLIF($10,''))
ON CONFLICT (source_url, record_kind) DO UPDATE SET
  title = EXCLUDED.title,
  summary_preview = EXCLUDED.summary_preview,
  content_type_tag = EXCLUDED.content_type_tag,
  total_chunks = EXCLUDED.total_chunks,
  content_length = EXCLUDED.content_length,
  processing_status = EXCLUDED.processing_status,
  updated_at = now()
RETURNING id, created_at, updated_at
`, doc.ID, doc.SourceURL, doc.Title, doc.SummaryPreview, doc.ContentTypeTag, doc.TotalChunks, doc.ContentLength,
		string(doc.ProcessingStatus), string(doc.RecordKind), doc.ParentDocumentID)

	if err := row.Scan(&doc.ID, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return types.Document{}, types.Wrap(types.ErrTransientExternal, err)
	}
	return doc, nil
}

func (s *pgRelationalStore) InsertChunk(ctx context.Context, chunk types.Chunk, meta types.EnhancedMetadata) error {
	analysisJSON, err := json.Marshal(chunk.Analysis)
	if err != nil {
		return types.Wrap(types.ErrInvalidInput, err)
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return types.Wrap(types.ErrInvalidInput, err)
	}
	_, err = s.querier(ctx).Exec(ctx, `
INSERT INTO chunks (chunk_id, document_id, chunk_index, chunk_text, contextual_summary, uses_contextual_embedding, embedding_status, processing_status, analysis, enhanced_metadata)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (document_id, chunk_index) DO UPDATE SET
  chunk_text = EXCLUDED.chunk_text,
  contextual_summary = EXCLUDED.contextual_summary,
  uses_contextual_embedding = EXCLUDED.uses_contextual_embedding,
  embedding_status = EXCLUDED.embedding_status,
  processing_status = EXCLUDED.processing_status,
  analysis = EXCLUDED.analysis,
  enhanced_metadata = EXCLUDED.enhanced_metadata
`, chunk.ChunkID, chunk.DocumentID, chunk.ChunkIndex, chunk.ChunkText, chunk.ContextualSummary,
		chunk.UsesContextualEmbed, string(chunk.EmbeddingStatus), string(chunk.ProcessingStatus), analysisJSON, metaJSON)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return types.Wrap(types.ErrPersistenceConflict, err)
		}
		return types.Wrap(types.ErrTransientExternal, err)
	}
	return nil
}

// UpdateDocumentStatus advances a document's lifecycle state. When fields
// carries "expected_updated_at" (the UpdatedAt a caller last read, e.g.
// from UpsertDocument's RETURNING), the write is guarded by it: a row
// whose updated_at has moved on since then means some other writer (the
// other half of a duplicate-URL race, per DESIGN.md Open Question 3)
// already completed more recently, and this write is rejected with
// types.ErrPersistenceConflict rather than clobbering it. Callers that
// don't have a prior read (fields without that key) get the old
// unconditional overwrite.
func (s *pgRelationalStore) UpdateDocumentStatus(ctx context.Context, id string, status types.ProcessingStatus, fields map[string]any) error {
	totalChunks, hasTotalChunks := fields["total_chunks"].(int)
	expected, guarded := fields["expected_updated_at"].(time.Time)

	var (
		tag pgconn.CommandTag
		err error
	)
	switch {
	case guarded && hasTotalChunks:
		tag, err = s.querier(ctx).Exec(ctx, `
UPDATE documents SET processing_status = $2, total_chunks = $3, updated_at = now()
WHERE id = $1 AND updated_at <= $4
`, id, string(status), totalChunks, expected)
	case guarded:
		tag, err = s.querier(ctx).Exec(ctx, `
UPDATE documents SET processing_status = $2, updated_at = now()
WHERE id = $1 AND updated_at <= $3
`, id, string(status), expected)
	case hasTotalChunks:
		tag, err = s.querier(ctx).Exec(ctx, `
UPDATE documents SET processing_status = $2, total_chunks = $3, updated_at = now() WHERE id = $1
`, id, string(status), totalChunks)
	default:
		tag, err = s.querier(ctx).Exec(ctx, `
UPDATE documents SET processing_status = $2, updated_at = now() WHERE id = $1
`, id, string(status))
	}
	if err != nil {
		return types.Wrap(types.ErrTransientExternal, err)
	}
	if guarded && tag.RowsAffected() == 0 {
		return types.Wrap(types.ErrPersistenceConflict, errStaleDocumentUpdate)
	}
	return nil
}

func (s *pgRelationalStore) Query(ctx context.Context, sql string, params ...any) (types.Rows, error) {
	rows, err := s.querier(ctx).Query(ctx, sql, params...)
	if err != nil {
		return nil, types.Wrap(types.ErrTransientExternal, err)
	}
	return &pgRows{rows: rows}, nil
}

func (s *pgRelationalStore) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return types.Wrap(types.ErrTransientExternal, err)
	}
	txCtx := context.WithValue(ctx, txKey{}, tx)
	if err := fn(txCtx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return types.Wrap(types.ErrTransientExternal, err)
	}
	return nil
}

type pgRows struct{ rows pgx.Rows }

func (r *pgRows) Next() bool          { return r.rows.Next() }
func (r *pgRows) Scan(dest ...any) error { return r.rows.Scan(dest...) }
func (r *pgRows) Close()              { r.rows.Close() }
func (r *pgRows) Err() error          { return r.rows.Err() }
