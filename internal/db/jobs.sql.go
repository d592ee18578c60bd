package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

const jobColumns = `id, source_format, target_format, original_filename, artifact_path, size_bytes, status, download_url, metadata, api_key_id, created_at, updated_at, completed_at`

func scanConversionJob(row interface{ Scan(...interface{}) error }) (ConversionJob, error) {
	var j ConversionJob
	err := row.Scan(
		&j.ID,
		&j.SourceFormat,
		&j.TargetFormat,
		&j.OriginalFilename,
		&j.ArtifactPath,
		&j.SizeBytes,
		&j.Status,
		&j.DownloadUrl,
		nullRawJSON{&j.Metadata},
		&j.ApiKeyID,
		&j.CreatedAt,
		&j.UpdatedAt,
		&j.CompletedAt,
	)
	return j, err
}

// nullRawJSON scans a nullable JSON column into a NullRawMessage.
// Postgres hands jsonb over as []byte while sqlite returns the TEXT
// column as a string, so both representations are accepted here.
type nullRawJSON struct {
	dest *pqtype.NullRawMessage
}

func (n nullRawJSON) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*n.dest = pqtype.NullRawMessage{}
	case string:
		*n.dest = pqtype.NullRawMessage{RawMessage: json.RawMessage(v), Valid: true}
	case []byte:
		buf := make(json.RawMessage, len(v))
		copy(buf, v)
		*n.dest = pqtype.NullRawMessage{RawMessage: buf, Valid: true}
	default:
		return fmt.Errorf("unsupported metadata column type %T", src)
	}
	return nil
}

// rawJSONArg converts a NullRawMessage into a driver argument stored as
// JSON text, which both the jsonb and TEXT metadata columns accept.
func rawJSONArg(m pqtype.NullRawMessage) interface{} {
	if !m.Valid {
		return nil
	}
	return string(m.RawMessage)
}

const insertConversionJob = `
INSERT INTO conversion_jobs (
	id, source_format, target_format, original_filename, artifact_path,
	size_bytes, status, metadata, api_key_id, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
RETURNING ` + jobColumns

type InsertConversionJobParams struct {
	ID               uuid.UUID
	SourceFormat     string
	TargetFormat     string
	OriginalFilename string
	ArtifactPath     string
	SizeBytes        int64
	Status           string
	Metadata         pqtype.NullRawMessage
	ApiKeyID         uuid.NullUUID
	CreatedAt        time.Time
}

func (q *Queries) InsertConversionJob(ctx context.Context, arg InsertConversionJobParams) (ConversionJob, error) {
	row := q.db.QueryRowContext(ctx, insertConversionJob,
		arg.ID,
		arg.SourceFormat,
		arg.TargetFormat,
		arg.OriginalFilename,
		arg.ArtifactPath,
		arg.SizeBytes,
		arg.Status,
		rawJSONArg(arg.Metadata),
		arg.ApiKeyID,
		arg.CreatedAt,
	)
	return scanConversionJob(row)
}

const getConversionJob = `
SELECT ` + jobColumns + `
FROM conversion_jobs
WHERE id = $1`

func (q *Queries) GetConversionJob(ctx context.Context, id uuid.UUID) (ConversionJob, error) {
	return scanConversionJob(q.db.QueryRowContext(ctx, getConversionJob, id))
}

const updateConversionJob = `
UPDATE conversion_jobs SET
	status = COALESCE($1, status),
	download_url = COALESCE($2, download_url),
	completed_at = COALESCE($3, completed_at),
	metadata = COALESCE($4, metadata),
	updated_at = $5
WHERE id = $6
RETURNING ` + jobColumns

type UpdateConversionJobParams struct {
	ID          uuid.UUID
	Status      sql.NullString
	DownloadUrl sql.NullString
	CompletedAt sql.NullTime
	Metadata    pqtype.NullRawMessage
	UpdatedAt   time.Time
}

// UpdateConversionJob merges the non-null fields into the stored row.
// Absent rows surface as sql.ErrNoRows.
func (q *Queries) UpdateConversionJob(ctx context.Context, arg UpdateConversionJobParams) (ConversionJob, error) {
	row := q.db.QueryRowContext(ctx, updateConversionJob,
		arg.Status,
		arg.DownloadUrl,
		arg.CompletedAt,
		rawJSONArg(arg.Metadata),
		arg.UpdatedAt,
		arg.ID,
	)
	return scanConversionJob(row)
}

const deleteConversionJob = `
DELETE FROM conversion_jobs
WHERE id = $1`

func (q *Queries) DeleteConversionJob(ctx context.Context, id uuid.UUID) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteConversionJob, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const listConversionJobsByBatch = `
SELECT ` + jobColumns + `
FROM conversion_jobs
WHERE metadata ->> 'batchId' = $1
ORDER BY created_at, id`

// ListConversionJobsByBatch reconstructs batch membership from the
// batch id stamped into member metadata. The expression index on
// metadata ->> 'batchId' keeps this a point lookup rather than a scan.
func (q *Queries) ListConversionJobsByBatch(ctx context.Context, batchID string) ([]ConversionJob, error) {
	rows, err := q.db.QueryContext(ctx, listConversionJobsByBatch, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []ConversionJob
	for rows.Next() {
		j, err := scanConversionJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

const listConversionJobs = `
SELECT ` + jobColumns + `
FROM conversion_jobs
WHERE ($1 = '' OR status = $1)
  AND ($2 IS NULL OR api_key_id = $2)
ORDER BY created_at DESC
LIMIT $3 OFFSET $4`

type ListConversionJobsParams struct {
	Status   string
	ApiKeyID uuid.NullUUID
	Limit    int32
	Offset   int32
}

func (q *Queries) ListConversionJobs(ctx context.Context, arg ListConversionJobsParams) ([]ConversionJob, error) {
	rows, err := q.db.QueryContext(ctx, listConversionJobs, arg.Status, arg.ApiKeyID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []ConversionJob
	for rows.Next() {
		j, err := scanConversionJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

const countConversionJobsByStatus = `
SELECT status, COUNT(*)
FROM conversion_jobs
GROUP BY status`

type StatusCountRow struct {
	Status string
	Count  int64
}

func (q *Queries) CountConversionJobsByStatus(ctx context.Context) ([]StatusCountRow, error) {
	rows, err := q.db.QueryContext(ctx, countConversionJobsByStatus)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StatusCountRow
	for rows.Next() {
		var r StatusCountRow
		if err := rows.Scan(&r.Status, &r.Count); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const deleteExpiredJobsByStatus = `
DELETE FROM conversion_jobs
WHERE status = $1 AND created_at < $2
RETURNING artifact_path`

// DeleteExpiredJobsByStatus removes terminal jobs older than the cutoff
// and returns their artifact paths so callers can reap files from disk.
func (q *Queries) DeleteExpiredJobsByStatus(ctx context.Context, status string, cutoff time.Time) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, deleteExpiredJobsByStatus, status, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}
