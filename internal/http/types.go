package http

import (
	"morpho/internal/db"
	"morpho/internal/model"
	"morpho/internal/tools"
)

// Re-export the shared API job shape from the model package.
type Job = model.Job

func jobItem(j db.ConversionJob) Job {
	return model.JobFromDB(j)
}

func jobItems(rows []db.ConversionJob) []Job {
	return model.JobsFromDB(rows)
}

// ErrorResponse is the JSON error envelope shared by every endpoint.
type ErrorResponse struct {
	Success bool        `json:"success"`
	Code    string      `json:"code,omitempty"`
	Error   string      `json:"error"`
	Details interface{} `json:"details,omitempty"`
}

// JobResponse wraps a single job.
type JobResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code,omitempty"`
	Error   string `json:"error,omitempty"`
	Job     *Job   `json:"job,omitempty"`
}

// BatchSubmitResponse is returned by POST /v1/convert/batch.
type BatchSubmitResponse struct {
	Success    bool   `json:"success"`
	Code       string `json:"code,omitempty"`
	Error      string `json:"error,omitempty"`
	BatchID    string `json:"batchId,omitempty"`
	TotalFiles int    `json:"totalFiles,omitempty"`
	Jobs       []Job  `json:"jobs,omitempty"`
}

// BatchStatusResponse is returned by GET /v1/convert/batch/:id.
// StatusCounts aggregates member statuses so pollers can show progress
// without walking the member list.
type BatchStatusResponse struct {
	Success      bool             `json:"success"`
	Code         string           `json:"code,omitempty"`
	Error        string           `json:"error,omitempty"`
	BatchID      string           `json:"batchId,omitempty"`
	Total        int              `json:"total"`
	StatusCounts map[string]int64 `json:"statusCounts,omitempty"`
	Jobs         []Job            `json:"jobs"`
}

// DeleteJobResponse reports whether a record existed; deletion is
// idempotent, so deleting an absent id succeeds with existed=false.
type DeleteJobResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code,omitempty"`
	Error   string `json:"error,omitempty"`
	Existed bool   `json:"existed"`
}

// ListJobsResponse is returned by GET /v1/jobs and /admin/jobs.
type ListJobsResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code,omitempty"`
	Error   string `json:"error,omitempty"`
	Jobs    []Job  `json:"jobs,omitempty"`
}

// ToolsResponse lists the converter catalog.
type ToolsResponse struct {
	Success bool         `json:"success"`
	Code    string       `json:"code,omitempty"`
	Error   string       `json:"error,omitempty"`
	Tools   []tools.Tool `json:"tools,omitempty"`
}

// ToolResponse wraps a single catalog entry.
type ToolResponse struct {
	Success bool        `json:"success"`
	Code    string      `json:"code,omitempty"`
	Error   string      `json:"error,omitempty"`
	Tool    *tools.Tool `json:"tool,omitempty"`
}
