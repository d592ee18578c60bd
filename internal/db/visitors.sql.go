package db

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const upsertVisitor = `
INSERT INTO visitors (id, first_seen, last_seen, visits)
VALUES ($1, $2, $2, 1)
ON CONFLICT (id) DO UPDATE SET
	last_seen = $2,
	visits = visitors.visits + 1`

// UpsertVisitor records a visit for the cookie-assigned visitor id,
// creating the row on first sight.
func (q *Queries) UpsertVisitor(ctx context.Context, id uuid.UUID, seenAt time.Time) error {
	_, err := q.db.ExecContext(ctx, upsertVisitor, id, seenAt)
	return err
}

const countVisitors = `
SELECT COUNT(*) FROM visitors`

func (q *Queries) CountVisitors(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, countVisitors).Scan(&n)
	return n, err
}

const countVisitorsSince = `
SELECT COUNT(*) FROM visitors
WHERE last_seen >= $1`

func (q *Queries) CountVisitorsSince(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, countVisitorsSince, since).Scan(&n)
	return n, err
}
