package convert

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"morpho/internal/config"
	"morpho/internal/db"
	"morpho/internal/jobs"
	"morpho/internal/metrics"
	"morpho/internal/store"
)

// JobStore is the narrow slice of the store the scheduler mutates.
type JobStore interface {
	UpdateJob(ctx context.Context, id uuid.UUID, params store.UpdateJobParams) (db.ConversionJob, error)
}

// Scheduler advances submitted conversion jobs to a terminal state
// after a deferred delay, independently per job. Submit never blocks
// the caller; a bounded worker pool caps how many terminal transitions
// run at once. There is no cancellation: once submitted, a job's
// transition fires unless the process exits first.
type Scheduler struct {
	cfg    *config.Config
	st     JobStore
	logger *slog.Logger

	ctx context.Context
	sem chan struct{}
}

// NewScheduler constructs a Scheduler whose deferred tasks stop firing
// once ctx is cancelled (jobs still pending at shutdown stay pending).
func NewScheduler(ctx context.Context, cfg *config.Config, st JobStore, logger *slog.Logger) *Scheduler {
	maxWorkers := cfg.Worker.MaxConcurrentConversions
	if maxWorkers <= 0 {
		maxWorkers = 4
	}
	return &Scheduler{
		cfg:    cfg,
		st:     st,
		logger: logger,
		ctx:    ctx,
		sem:    make(chan struct{}, maxWorkers),
	}
}

// Submit schedules the job's terminal transition after the given delay
// and returns immediately. The job id is the task's correlation key;
// a job deleted before the task fires is a silent no-op.
func (s *Scheduler) Submit(job db.ConversionJob, delay time.Duration) {
	go func() {
		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-s.ctx.Done():
			return
		case <-timer.C:
		}

		select {
		case <-s.ctx.Done():
			return
		case s.sem <- struct{}{}:
		}
		defer func() { <-s.sem }()

		s.run(job)
	}()
}

// run performs the simulated conversion: processing, then completed
// with a download reference derived from the job id. Any store error
// along the way collapses the job to failed; there is no retry and no
// distinction between input and internal faults.
func (s *Scheduler) run(job db.ConversionJob) {
	ctx := context.Background()
	quality := qualityFromMetadata(job.Metadata.RawMessage)

	processing := string(jobs.StatusProcessing)
	if _, err := s.st.UpdateJob(ctx, job.ID, store.UpdateJobParams{Status: &processing}); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Job deleted while the task was in flight; nothing to do.
			s.logDebug("conversion target gone", "job_id", job.ID.String())
			return
		}
		s.fail(ctx, job, quality, err)
		return
	}

	completed := string(jobs.StatusCompleted)
	downloadURL := DownloadPath(job.ID)
	now := time.Now().UTC()
	if _, err := s.st.UpdateJob(ctx, job.ID, store.UpdateJobParams{
		Status:      &completed,
		DownloadURL: &downloadURL,
		CompletedAt: &now,
	}); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logDebug("conversion target gone", "job_id", job.ID.String())
			return
		}
		s.fail(ctx, job, quality, err)
		return
	}

	metrics.RecordConversion(quality, completed)
	s.logInfo("conversion completed",
		"job_id", job.ID.String(),
		"from", job.SourceFormat,
		"to", job.TargetFormat,
		"quality", quality,
	)
}

// fail marks the job failed with a completion timestamp, best-effort.
func (s *Scheduler) fail(ctx context.Context, job db.ConversionJob, quality string, cause error) {
	failed := string(jobs.StatusFailed)
	now := time.Now().UTC()
	_, err := s.st.UpdateJob(ctx, job.ID, store.UpdateJobParams{
		Status:      &failed,
		CompletedAt: &now,
	})
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		s.logDebug("failed-state write lost", "job_id", job.ID.String(), "error", err.Error())
	}

	metrics.RecordConversion(quality, failed)
	s.logInfo("conversion failed",
		"job_id", job.ID.String(),
		"from", job.SourceFormat,
		"to", job.TargetFormat,
		"error", cause.Error(),
	)
}

func (s *Scheduler) logInfo(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}

func (s *Scheduler) logDebug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

// DownloadPath derives a job's download reference deterministically
// from its id.
func DownloadPath(id uuid.UUID) string {
	return "/v1/convert/" + id.String() + "/download"
}

func qualityFromMetadata(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var meta struct {
		Quality string `json:"quality"`
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return ""
	}
	return meta.Quality
}
