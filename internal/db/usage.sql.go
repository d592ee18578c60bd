package db

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const upsertDailyUsage = `
INSERT INTO usage_daily (day, api_key_id, requests)
VALUES ($1, $2, 1)
ON CONFLICT (day, api_key_id) DO UPDATE SET
	requests = usage_daily.requests + 1`

// UpsertDailyUsage bumps the per-key request counter for the given day.
// Day should be a UTC midnight timestamp so windows line up across keys.
func (q *Queries) UpsertDailyUsage(ctx context.Context, day time.Time, apiKeyID uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, upsertDailyUsage, day, apiKeyID)
	return err
}

const listDailyUsageSince = `
SELECT day, api_key_id, requests
FROM usage_daily
WHERE day >= $1
ORDER BY day, api_key_id`

func (q *Queries) ListDailyUsageSince(ctx context.Context, since time.Time) ([]DailyUsage, error) {
	rows, err := q.db.QueryContext(ctx, listDailyUsageSince, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DailyUsage
	for rows.Next() {
		var u DailyUsage
		if err := rows.Scan(&u.Day, &u.ApiKeyID, &u.Requests); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
