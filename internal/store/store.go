package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sqlc-dev/pqtype"

	"morpho/internal/db"
)

// Store wraps access to the database via the internal/db query layer.
// The same Store works over either backend (postgres or sqlite); the
// variant is fixed at process startup when the *sql.DB is opened.
type Store struct {
	DB *sql.DB
}

// hashAPIKey hashes a raw API key string using SHA-256 and returns a hex string.
func hashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// New creates a new Store that uses a shared *sql.DB with pooling.
func New(database *sql.DB) *Store {
	return &Store{DB: database}
}

// withQueries constructs a Queries wrapper on the shared *sql.DB and
// executes the callback.
func (s *Store) withQueries(ctx context.Context, fn func(ctx context.Context, q *db.Queries) error) error {
	q := db.New(s.DB)
	return fn(ctx, q)
}

// CreateJobSpec carries the caller-supplied fields of a new conversion
// job. Metadata is stored as JSON and is where batch correlation and
// quality/settings live.
type CreateJobSpec struct {
	SourceFormat     string
	TargetFormat     string
	OriginalFilename string
	ArtifactPath     string
	SizeBytes        int64
	Metadata         map[string]any
	ApiKeyID         *uuid.UUID
}

// CreateConversionJob inserts a new conversion job row with status
// pending and returns the full record including server-assigned fields.
func (s *Store) CreateConversionJob(ctx context.Context, id uuid.UUID, spec CreateJobSpec) (db.ConversionJob, error) {
	var metadata pqtype.NullRawMessage
	if len(spec.Metadata) > 0 {
		payload, err := json.Marshal(spec.Metadata)
		if err != nil {
			return db.ConversionJob{}, err
		}
		metadata = pqtype.NullRawMessage{RawMessage: payload, Valid: true}
	}

	var apiKeyID uuid.NullUUID
	if spec.ApiKeyID != nil {
		apiKeyID = uuid.NullUUID{UUID: *spec.ApiKeyID, Valid: true}
	}

	var job db.ConversionJob
	err := s.withQueries(ctx, func(ctx context.Context, q *db.Queries) error {
		var err error
		job, err = q.InsertConversionJob(ctx, db.InsertConversionJobParams{
			ID:               id,
			SourceFormat:     spec.SourceFormat,
			TargetFormat:     spec.TargetFormat,
			OriginalFilename: spec.OriginalFilename,
			ArtifactPath:     spec.ArtifactPath,
			SizeBytes:        spec.SizeBytes,
			Status:           "pending",
			Metadata:         metadata,
			ApiKeyID:         apiKeyID,
			CreatedAt:        time.Now().UTC(),
		})
		return err
	})

	return job, err
}

// GetJob fetches a conversion job by id. Absent rows surface as
// sql.ErrNoRows, which callers treat as "absent", not as a fault.
func (s *Store) GetJob(ctx context.Context, id uuid.UUID) (db.ConversionJob, error) {
	var job db.ConversionJob
	err := s.withQueries(ctx, func(ctx context.Context, q *db.Queries) error {
		var err error
		job, err = q.GetConversionJob(ctx, id)
		return err
	})
	return job, err
}

// UpdateJobParams lists the post-creation mutable fields. Nil fields
// are left untouched (partial merge, not replace); concurrent updates
// to the same id are last-write-wins.
type UpdateJobParams struct {
	Status      *string
	DownloadURL *string
	CompletedAt *time.Time
}

// UpdateJob merges the supplied fields into the stored record and
// returns the updated row, or sql.ErrNoRows if no such id exists.
func (s *Store) UpdateJob(ctx context.Context, id uuid.UUID, params UpdateJobParams) (db.ConversionJob, error) {
	var status, downloadURL sql.NullString
	if params.Status != nil {
		status = sql.NullString{String: *params.Status, Valid: true}
	}
	if params.DownloadURL != nil {
		downloadURL = sql.NullString{String: *params.DownloadURL, Valid: true}
	}
	var completedAt sql.NullTime
	if params.CompletedAt != nil {
		completedAt = sql.NullTime{Time: *params.CompletedAt, Valid: true}
	}

	var job db.ConversionJob
	err := s.withQueries(ctx, func(ctx context.Context, q *db.Queries) error {
		var err error
		job, err = q.UpdateConversionJob(ctx, db.UpdateConversionJobParams{
			ID:          id,
			Status:      status,
			DownloadUrl: downloadURL,
			CompletedAt: completedAt,
			UpdatedAt:   time.Now().UTC(),
		})
		return err
	})
	return job, err
}

// DeleteJob removes a conversion job and reports whether a row existed.
// Deleting an absent id is not an error.
func (s *Store) DeleteJob(ctx context.Context, id uuid.UUID) (bool, error) {
	var affected int64
	err := s.withQueries(ctx, func(ctx context.Context, q *db.Queries) error {
		var err error
		affected, err = q.DeleteConversionJob(ctx, id)
		return err
	})
	return affected > 0, err
}

// ListJobsByBatch returns the members of a batch in creation order.
// A batch with no members yields an empty slice, not an error.
func (s *Store) ListJobsByBatch(ctx context.Context, batchID uuid.UUID) ([]db.ConversionJob, error) {
	var jobs []db.ConversionJob
	err := s.withQueries(ctx, func(ctx context.Context, q *db.Queries) error {
		var err error
		jobs, err = q.ListConversionJobsByBatch(ctx, batchID.String())
		return err
	})
	return jobs, err
}

// JobListFilter narrows ListJobs. A nil ApiKeyID means all keys.
type JobListFilter struct {
	Status   string
	ApiKeyID *uuid.UUID
	Limit    int32
	Offset   int32
}

// ListJobs returns recent jobs, newest first.
func (s *Store) ListJobs(ctx context.Context, filter JobListFilter) ([]db.ConversionJob, error) {
	var apiKeyID uuid.NullUUID
	if filter.ApiKeyID != nil {
		apiKeyID = uuid.NullUUID{UUID: *filter.ApiKeyID, Valid: true}
	}

	var jobs []db.ConversionJob
	err := s.withQueries(ctx, func(ctx context.Context, q *db.Queries) error {
		var err error
		jobs, err = q.ListConversionJobs(ctx, db.ListConversionJobsParams{
			Status:   filter.Status,
			ApiKeyID: apiKeyID,
			Limit:    filter.Limit,
			Offset:   filter.Offset,
		})
		return err
	})
	return jobs, err
}

// JobStatusCounts returns the number of jobs per status.
func (s *Store) JobStatusCounts(ctx context.Context) (map[string]int64, error) {
	counts := make(map[string]int64)
	err := s.withQueries(ctx, func(ctx context.Context, q *db.Queries) error {
		rows, err := q.CountConversionJobsByStatus(ctx)
		if err != nil {
			return err
		}
		for _, r := range rows {
			counts[r.Status] = r.Count
		}
		return nil
	})
	return counts, err
}

// DeleteExpiredJobsByStatus removes terminal jobs created before the
// cutoff and returns the artifact paths of the deleted rows.
func (s *Store) DeleteExpiredJobsByStatus(ctx context.Context, status string, cutoff time.Time) ([]string, error) {
	var paths []string
	err := s.withQueries(ctx, func(ctx context.Context, q *db.Queries) error {
		var err error
		paths, err = q.DeleteExpiredJobsByStatus(ctx, status, cutoff)
		return err
	})
	return paths, err
}

// GetAPIKeyByRawKey looks up a non-revoked API key by its raw value.
func (s *Store) GetAPIKeyByRawKey(ctx context.Context, rawKey string) (db.ApiKey, error) {
	hash := hashAPIKey(rawKey)
	var key db.ApiKey

	err := s.withQueries(ctx, func(ctx context.Context, q *db.Queries) error {
		var err error
		key, err = q.GetAPIKeyByHash(ctx, hash)
		return err
	})

	return key, err
}

// EnsureAdminAPIKey ensures that there is an admin API key for the given raw key and label.
// If it already exists, it is returned; otherwise, it is created.
func (s *Store) EnsureAdminAPIKey(ctx context.Context, rawKey, label string) (db.ApiKey, error) {
	hash := hashAPIKey(rawKey)
	var out db.ApiKey

	err := s.withQueries(ctx, func(ctx context.Context, q *db.Queries) error {
		key, err := q.GetAPIKeyByHash(ctx, hash)
		if err == nil {
			out = key
			return nil
		}
		if err != sql.ErrNoRows {
			return err
		}

		key, err = q.InsertAPIKey(ctx, db.InsertAPIKeyParams{
			ID:        uuid.New(),
			KeyHash:   hash,
			Label:     label,
			IsAdmin:   true,
			CreatedAt: time.Now().UTC(),
		})
		if err != nil {
			return err
		}
		out = key
		return nil
	})

	return out, err
}

// CreateRandomAPIKey creates a new random API key (with morpho_ prefix).
// It returns the raw key plus the stored record.
func (s *Store) CreateRandomAPIKey(ctx context.Context, label string, isAdmin bool, rateLimitPerMinute *int, tenant *string) (string, db.ApiKey, error) {
	raw := "morpho_" + uuid.New().String()
	hash := hashAPIKey(raw)
	var out db.ApiKey

	err := s.withQueries(ctx, func(ctx context.Context, q *db.Queries) error {
		var rl sql.NullInt32
		if rateLimitPerMinute != nil && *rateLimitPerMinute > 0 {
			rl = sql.NullInt32{Int32: int32(*rateLimitPerMinute), Valid: true}
		}
		var t sql.NullString
		if tenant != nil && *tenant != "" {
			t = sql.NullString{String: *tenant, Valid: true}
		}

		key, err := q.InsertAPIKey(ctx, db.InsertAPIKeyParams{
			ID:                 uuid.New(),
			KeyHash:            hash,
			Label:              label,
			IsAdmin:            isAdmin,
			RateLimitPerMinute: rl,
			Tenant:             t,
			CreatedAt:          time.Now().UTC(),
		})
		if err != nil {
			return err
		}
		out = key
		return nil
	})

	return raw, out, err
}

// ListAPIKeys lists API keys, newest first.
func (s *Store) ListAPIKeys(ctx context.Context, includeRevoked bool, limit, offset int32) ([]db.ApiKey, error) {
	var keys []db.ApiKey
	err := s.withQueries(ctx, func(ctx context.Context, q *db.Queries) error {
		var err error
		keys, err = q.ListAPIKeys(ctx, db.ListAPIKeysParams{
			IncludeRevoked: includeRevoked,
			Limit:          limit,
			Offset:         offset,
		})
		return err
	})
	return keys, err
}

// RevokeAPIKey marks a key revoked. Already-revoked or absent keys
// surface as sql.ErrNoRows.
func (s *Store) RevokeAPIKey(ctx context.Context, id uuid.UUID) (db.ApiKey, error) {
	var key db.ApiKey
	err := s.withQueries(ctx, func(ctx context.Context, q *db.Queries) error {
		var err error
		key, err = q.RevokeAPIKey(ctx, id, time.Now().UTC())
		return err
	})
	return key, err
}

// RecordAPIKeyUsage bumps the lifetime request counter on the key plus
// the per-day usage row used by admin billing summaries.
func (s *Store) RecordAPIKeyUsage(ctx context.Context, apiKeyID uuid.UUID) error {
	day := time.Now().UTC().Truncate(24 * time.Hour)
	return s.withQueries(ctx, func(ctx context.Context, q *db.Queries) error {
		if err := q.IncrementAPIKeyRequestCount(ctx, apiKeyID); err != nil {
			return err
		}
		return q.UpsertDailyUsage(ctx, day, apiKeyID)
	})
}

// ListDailyUsageSince returns per-key daily request counts.
func (s *Store) ListDailyUsageSince(ctx context.Context, since time.Time) ([]db.DailyUsage, error) {
	var usage []db.DailyUsage
	err := s.withQueries(ctx, func(ctx context.Context, q *db.Queries) error {
		var err error
		usage, err = q.ListDailyUsageSince(ctx, since)
		return err
	})
	return usage, err
}

// TouchVisitor records a visit for the cookie-assigned visitor id.
func (s *Store) TouchVisitor(ctx context.Context, id uuid.UUID) error {
	return s.withQueries(ctx, func(ctx context.Context, q *db.Queries) error {
		return q.UpsertVisitor(ctx, id, time.Now().UTC())
	})
}

// VisitorStats reports total known visitors and those seen since the
// given time.
func (s *Store) VisitorStats(ctx context.Context, activeSince time.Time) (total, active int64, err error) {
	err = s.withQueries(ctx, func(ctx context.Context, q *db.Queries) error {
		var err error
		total, err = q.CountVisitors(ctx)
		if err != nil {
			return err
		}
		active, err = q.CountVisitorsSince(ctx, activeSince)
		return err
	})
	return total, active, err
}
