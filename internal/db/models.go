package db

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

// ConversionJob is a row in conversion_jobs. Status, download_url and
// completed_at are the only fields the system mutates after creation.
type ConversionJob struct {
	ID               uuid.UUID
	SourceFormat     string
	TargetFormat     string
	OriginalFilename string
	ArtifactPath     string
	SizeBytes        int64
	Status           string
	DownloadUrl      sql.NullString
	Metadata         pqtype.NullRawMessage
	ApiKeyID         uuid.NullUUID
	CreatedAt        time.Time
	UpdatedAt        time.Time
	CompletedAt      sql.NullTime
}

type ApiKey struct {
	ID                 uuid.UUID
	KeyHash            string
	Label              string
	IsAdmin            bool
	RateLimitPerMinute sql.NullInt32
	Tenant             sql.NullString
	RequestCount       int64
	CreatedAt          time.Time
	RevokedAt          sql.NullTime
}

type Visitor struct {
	ID        uuid.UUID
	FirstSeen time.Time
	LastSeen  time.Time
	Visits    int64
}

type DailyUsage struct {
	Day      time.Time
	ApiKeyID uuid.UUID
	Requests int64
}
