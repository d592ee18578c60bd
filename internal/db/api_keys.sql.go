package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

const apiKeyColumns = `id, key_hash, label, is_admin, rate_limit_per_minute, tenant, request_count, created_at, revoked_at`

func scanAPIKey(row interface{ Scan(...interface{}) error }) (ApiKey, error) {
	var k ApiKey
	err := row.Scan(
		&k.ID,
		&k.KeyHash,
		&k.Label,
		&k.IsAdmin,
		&k.RateLimitPerMinute,
		&k.Tenant,
		&k.RequestCount,
		&k.CreatedAt,
		&k.RevokedAt,
	)
	return k, err
}

const insertAPIKey = `
INSERT INTO api_keys (id, key_hash, label, is_admin, rate_limit_per_minute, tenant, request_count, created_at)
VALUES ($1, $2, $3, $4, $5, $6, 0, $7)
RETURNING ` + apiKeyColumns

type InsertAPIKeyParams struct {
	ID                 uuid.UUID
	KeyHash            string
	Label              string
	IsAdmin            bool
	RateLimitPerMinute sql.NullInt32
	Tenant             sql.NullString
	CreatedAt          time.Time
}

func (q *Queries) InsertAPIKey(ctx context.Context, arg InsertAPIKeyParams) (ApiKey, error) {
	row := q.db.QueryRowContext(ctx, insertAPIKey,
		arg.ID,
		arg.KeyHash,
		arg.Label,
		arg.IsAdmin,
		arg.RateLimitPerMinute,
		arg.Tenant,
		arg.CreatedAt,
	)
	return scanAPIKey(row)
}

const getAPIKeyByHash = `
SELECT ` + apiKeyColumns + `
FROM api_keys
WHERE key_hash = $1 AND revoked_at IS NULL`

func (q *Queries) GetAPIKeyByHash(ctx context.Context, keyHash string) (ApiKey, error) {
	return scanAPIKey(q.db.QueryRowContext(ctx, getAPIKeyByHash, keyHash))
}

const listAPIKeysSQL = `
SELECT ` + apiKeyColumns + `
FROM api_keys
WHERE ($1 OR revoked_at IS NULL)
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`

type ListAPIKeysParams struct {
	IncludeRevoked bool
	Limit          int32
	Offset         int32
}

func (q *Queries) ListAPIKeys(ctx context.Context, arg ListAPIKeysParams) ([]ApiKey, error) {
	rows, err := q.db.QueryContext(ctx, listAPIKeysSQL, arg.IncludeRevoked, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []ApiKey
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

const revokeAPIKey = `
UPDATE api_keys SET revoked_at = $1
WHERE id = $2 AND revoked_at IS NULL
RETURNING ` + apiKeyColumns

func (q *Queries) RevokeAPIKey(ctx context.Context, id uuid.UUID, revokedAt time.Time) (ApiKey, error) {
	return scanAPIKey(q.db.QueryRowContext(ctx, revokeAPIKey, revokedAt, id))
}

const incrementAPIKeyRequestCount = `
UPDATE api_keys SET request_count = request_count + 1
WHERE id = $1`

func (q *Queries) IncrementAPIKeyRequestCount(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, incrementAPIKeyRequestCount, id)
	return err
}
