package jobs

// Status represents the lifecycle state of a conversion job in the
// conversion_jobs table. These values must match the text values
// stored in the database (conversion_jobs.status).
//
// The status domain is monotonic: pending -> processing -> completed
// or failed. Nothing transitions a job out of a terminal state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether a status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}
