package model

import (
	"encoding/json"
	"time"

	"morpho/internal/db"
)

// Job is the API-facing projection of a conversion job row.
type Job struct {
	ID               string         `json:"id"`
	SourceFormat     string         `json:"sourceFormat"`
	TargetFormat     string         `json:"targetFormat"`
	OriginalFilename string         `json:"originalFilename"`
	SizeBytes        int64          `json:"sizeBytes"`
	Status           string         `json:"status"`
	DownloadURL      string         `json:"downloadUrl,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	CreatedAt        time.Time      `json:"createdAt"`
	CompletedAt      *time.Time     `json:"completedAt,omitempty"`
}

// JobFromDB maps a stored row into the API shape. Metadata that fails
// to decode is dropped from the response rather than failing the call.
func JobFromDB(j db.ConversionJob) Job {
	out := Job{
		ID:               j.ID.String(),
		SourceFormat:     j.SourceFormat,
		TargetFormat:     j.TargetFormat,
		OriginalFilename: j.OriginalFilename,
		SizeBytes:        j.SizeBytes,
		Status:           j.Status,
		CreatedAt:        j.CreatedAt,
	}
	if j.DownloadUrl.Valid {
		out.DownloadURL = j.DownloadUrl.String
	}
	if j.CompletedAt.Valid {
		t := j.CompletedAt.Time
		out.CompletedAt = &t
	}
	if j.Metadata.Valid {
		var meta map[string]any
		if err := json.Unmarshal(j.Metadata.RawMessage, &meta); err == nil {
			out.Metadata = meta
		}
	}
	return out
}

// JobsFromDB maps a slice of rows, preserving order.
func JobsFromDB(rows []db.ConversionJob) []Job {
	out := make([]Job, 0, len(rows))
	for _, r := range rows {
		out = append(out, JobFromDB(r))
	}
	return out
}
