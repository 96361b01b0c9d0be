package queue

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/autollama/autollama-sub002/internal/ingest/types"
)

// pgStore implements DurableStore on Postgres, following the same
// bootstrap-on-construct idiom as
// internal/ingest/persistence.pgRelationalStore: best-effort CREATE TABLE
// IF NOT EXISTS rather than a separate migration tool, matching the
// teacher's dev-time stance. File bytes round-trip as a base64 envelope
// (§4.7 "Durable job schema"); Options/Section/Result/Error are small
// enough to serialize as JSONB wholesale rather than normalizing columns.
type pgStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore bootstraps the jobs table and returns a DurableStore.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (DurableStore, error) {
	const stmt = `CREATE TABLE IF NOT EXISTS ingest_jobs (
		job_id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		job_type TEXT NOT NULL,
		url TEXT NOT NULL DEFAULT '',
		file_envelope JSONB,
		section JSONB,
		options JSONB NOT NULL DEFAULT '{}'::jsonb,
		status TEXT NOT NULL DEFAULT 'queued',
		priority INT NOT NULL DEFAULT 5,
		retries INT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		started_at TIMESTAMPTZ,
		completed_at TIMESTAMPTZ,
		failed_at TIMESTAMPTZ,
		next_retry_at TIMESTAMPTZ,
		result JSONB,
		job_error JSONB,
		duration_ms BIGINT NOT NULL DEFAULT 0
	)`
	if _, err := pool.Exec(ctx, stmt); err != nil {
		return nil, fmt.Errorf("bootstrap ingest_jobs schema: %w", err)
	}
	return &pgStore{pool: pool}, nil
}

type fileEnvelope struct {
	Bytes        string `json:"bytes"` // base64
	MimeType     string `json:"mime_type"`
	OriginalName string `json:"original_name"`
	Size         int64  `json:"size"`
}

func toEnvelope(f *types.FileDescriptor) *fileEnvelope {
	if f == nil {
		return nil
	}
	return &fileEnvelope{
		Bytes:        base64.StdEncoding.EncodeToString(f.Bytes),
		MimeType:     f.MimeType,
		OriginalName: f.OriginalName,
		Size:         f.Size,
	}
}

func fromEnvelope(e *fileEnvelope) (*types.FileDescriptor, error) {
	if e == nil {
		return nil, nil
	}
	raw, err := base64.StdEncoding.DecodeString(e.Bytes)
	if err != nil {
		return nil, err
	}
	return &types.FileDescriptor{Bytes: raw, MimeType: e.MimeType, OriginalName: e.OriginalName, Size: e.Size}, nil
}

func (s *pgStore) Save(ctx context.Context, job types.Job) error {
	fileJSON, optJSON, sectionJSON, resultJSON, errJSON, err := marshalJobColumns(job)
	if err != nil {
		return types.Wrap(types.ErrInvalidInput, err)
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO ingest_jobs (job_id, session_id, job_type, url, file_envelope, section, options, status, priority, retries,
	started_at, completed_at, failed_at, next_retry_at, result, job_error, duration_ms)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
ON CONFLICT (job_id) DO UPDATE SET
	status = EXCLUDED.status,
	priority = EXCLUDED.priority,
	retries = EXCLUDED.retries,
	started_at = EXCLUDED.started_at,
	completed_at = EXCLUDED.completed_at,
	failed_at = EXCLUDED.failed_at,
	next_retry_at = EXCLUDED.next_retry_at,
	result = EXCLUDED.result,
	job_error = EXCLUDED.job_error,
	duration_ms = EXCLUDED.duration_ms,
	updated_at = now()
`, job.JobID, job.SessionID, string(job.Type), job.URL, fileJSON, sectionJSON, optJSON, string(job.Status), job.Priority, job.Retries,
		job.StartedAt, job.CompletedAt, job.FailedAt, job.NextRetryAt, resultJSON, errJSON, job.DurationMS)
	if err != nil {
		return types.Wrap(types.ErrTransientExternal, err)
	}
	return nil
}

func marshalJobColumns(job types.Job) (fileJSON, optJSON, sectionJSON, resultJSON, errJSON []byte, err error) {
	if fileJSON, err = json.Marshal(toEnvelope(job.File)); err != nil {
		return
	}
	if optJSON, err = json.Marshal(job.Options); err != nil {
		return
	}
	if sectionJSON, err = json.Marshal(job.Section); err != nil {
		return
	}
	if resultJSON, err = json.Marshal(job.Result); err != nil {
		return
	}
	if errJSON, err = json.Marshal(job.Error); err != nil {
		return
	}
	return
}

func (s *pgStore) UpdateStatus(ctx context.Context, jobID string, status types.JobStatus, fields map[string]any) error {
	job, ok, err := s.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if !ok {
		return types.Wrap(types.ErrInvalidInput, errUnknownJob)
	}
	job.Status = status
	applyJobFields(&job, fields)
	return s.Save(ctx, job)
}

func (s *pgStore) Get(ctx context.Context, jobID string) (types.Job, bool, error) {
	row := s.pool.QueryRow(ctx, `SELECT job_id, session_id, job_type, url, file_envelope, section, options, status, priority, retries,
		created_at, updated_at, started_at, completed_at, failed_at, next_retry_at, result, job_error, duration_ms
		FROM ingest_jobs WHERE job_id = $1`, jobID)
	job, err := scanJob(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return types.Job{}, false, nil
		}
		return types.Job{}, false, types.Wrap(types.ErrTransientExternal, err)
	}
	return job, true, nil
}

func (s *pgStore) ListByStatus(ctx context.Context, status types.JobStatus) ([]types.Job, error) {
	rows, err := s.pool.Query(ctx, `SELECT job_id, session_id, job_type, url, file_envelope, section, options, status, priority, retries,
		created_at, updated_at, started_at, completed_at, failed_at, next_retry_at, result, job_error, duration_ms
		FROM ingest_jobs WHERE status = $1`, string(status))
	if err != nil {
		return nil, types.Wrap(types.ErrTransientExternal, err)
	}
	defer rows.Close()

	var out []types.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, types.Wrap(types.ErrTransientExternal, err)
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

func (s *pgStore) Delete(ctx context.Context, jobID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM ingest_jobs WHERE job_id = $1`, jobID)
	if err != nil {
		return types.Wrap(types.ErrTransientExternal, err)
	}
	return nil
}

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (types.Job, error) {
	var job types.Job
	var jobType, status string
	var fileJSON, sectionJSON, optJSON, resultJSON, errJSON []byte
	var createdAt, updatedAt time.Time

	if err := row.Scan(&job.JobID, &job.SessionID, &jobType, &job.URL, &fileJSON, &sectionJSON, &optJSON, &status,
		&job.Priority, &job.Retries, &createdAt, &updatedAt, &job.StartedAt, &job.CompletedAt, &job.FailedAt,
		&job.NextRetryAt, &resultJSON, &errJSON, &job.DurationMS); err != nil {
		return types.Job{}, err
	}
	job.Type = types.JobType(jobType)
	job.Status = types.JobStatus(status)
	job.CreatedAt = createdAt
	job.UpdatedAt = updatedAt

	var env *fileEnvelope
	if len(fileJSON) > 0 {
		if err := json.Unmarshal(fileJSON, &env); err == nil {
			job.File, _ = fromEnvelope(env)
		}
	}
	if len(sectionJSON) > 0 {
		_ = json.Unmarshal(sectionJSON, &job.Section)
	}
	if len(optJSON) > 0 {
		_ = json.Unmarshal(optJSON, &job.Options)
	}
	if len(resultJSON) > 0 {
		_ = json.Unmarshal(resultJSON, &job.Result)
	}
	if len(errJSON) > 0 {
		_ = json.Unmarshal(errJSON, &job.Error)
	}
	return job, nil
}
