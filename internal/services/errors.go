package services

import "errors"

// Sentinel errors translated into caller-visible codes at the HTTP
// boundary. None of these propagate as faults across the job-lifecycle
// boundary.
var (
	// ErrJobNotFound: the referenced job does not exist.
	ErrJobNotFound = errors.New("conversion job not found")

	// ErrJobNotReady: the job exists but has not completed; distinct
	// from not-found so clients know to keep polling.
	ErrJobNotReady = errors.New("conversion job is not ready for download")

	// ErrArtifactMissing: the job is completed but its artifact is gone
	// from storage.
	ErrArtifactMissing = errors.New("stored artifact is missing")

	// ErrNoCompletedJobs: the batch has no completed members yet.
	ErrNoCompletedJobs = errors.New("batch has no completed jobs")
)
