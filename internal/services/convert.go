package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"morpho/internal/config"
	"morpho/internal/convert"
	"morpho/internal/db"
	"morpho/internal/store"
)

// Submitter hands created jobs to the conversion lifecycle driver.
type Submitter interface {
	Submit(job db.ConversionJob, delay time.Duration)
}

// JobSubmission carries a validated single-file submission from the
// HTTP layer. Settings is already parsed (leniently) by the handler.
type JobSubmission struct {
	SourceFormat     string
	TargetFormat     string
	OriginalFilename string
	ArtifactPath     string
	SizeBytes        int64
	Quality          string
	Settings         map[string]any
	ApiKeyID         *uuid.UUID
}

// BatchSubmission is the result of a batch submit.
type BatchSubmission struct {
	BatchID    uuid.UUID
	Jobs       []db.ConversionJob
	TotalFiles int
}

// ConvertService creates job records and hands each off to the
// scheduler; callers get the pending record back immediately and poll
// for completion.
type ConvertService struct {
	cfg    *config.Config
	st     *store.Store
	sched  Submitter
	logger *slog.Logger
}

func NewConvertService(cfg *config.Config, st *store.Store, sched Submitter, logger *slog.Logger) *ConvertService {
	return &ConvertService{cfg: cfg, st: st, sched: sched, logger: logger}
}

// newJobID prefers uuidv7 so job ids sort by creation time.
func newJobID() uuid.UUID {
	if id, err := uuid.NewV7(); err == nil {
		return id
	}
	return uuid.New()
}

// SubmitSingle persists one pending job and schedules its conversion.
func (s *ConvertService) SubmitSingle(ctx context.Context, sub JobSubmission) (db.ConversionJob, error) {
	job, err := s.createJob(ctx, sub, buildMetadata(sub, nil, 0))
	if err != nil {
		return db.ConversionJob{}, err
	}

	s.sched.Submit(job, convert.Delay(s.cfg.Conversion, sub.Quality, 0))
	return job, nil
}

// SubmitBatch persists the submissions as individual jobs sharing one
// batch id stamped into each member's metadata, then schedules each
// member with an index-staggered delay. Creation is not transactional:
// a failure partway through leaves earlier members persisted (and
// unscheduled) and is surfaced to the caller as a storage fault.
func (s *ConvertService) SubmitBatch(ctx context.Context, subs []JobSubmission) (BatchSubmission, error) {
	batchID := newJobID()
	batchSize := len(subs)

	created := make([]db.ConversionJob, 0, batchSize)
	for _, sub := range subs {
		job, err := s.createJob(ctx, sub, buildMetadata(sub, &batchID, batchSize))
		if err != nil {
			return BatchSubmission{}, err
		}
		created = append(created, job)
	}

	for i, job := range created {
		s.sched.Submit(job, convert.Delay(s.cfg.Conversion, subs[i].Quality, i))
	}

	s.logInfo("batch submitted",
		"batch_id", batchID.String(),
		"total_files", batchSize,
	)

	return BatchSubmission{
		BatchID:    batchID,
		Jobs:       created,
		TotalFiles: batchSize,
	}, nil
}

// GetBatch returns the batch members in creation order; an unknown
// batch id reads as an empty batch.
func (s *ConvertService) GetBatch(ctx context.Context, batchID uuid.UUID) ([]db.ConversionJob, error) {
	return s.st.ListJobsByBatch(ctx, batchID)
}

func (s *ConvertService) createJob(ctx context.Context, sub JobSubmission, metadata map[string]any) (db.ConversionJob, error) {
	return s.st.CreateConversionJob(ctx, newJobID(), store.CreateJobSpec{
		SourceFormat:     sub.SourceFormat,
		TargetFormat:     sub.TargetFormat,
		OriginalFilename: sub.OriginalFilename,
		ArtifactPath:     sub.ArtifactPath,
		SizeBytes:        sub.SizeBytes,
		Metadata:         metadata,
		ApiKeyID:         sub.ApiKeyID,
	})
}

// buildMetadata merges caller-supplied quality/settings with batch
// correlation fields for batch members.
func buildMetadata(sub JobSubmission, batchID *uuid.UUID, batchSize int) map[string]any {
	meta := make(map[string]any)
	if sub.Quality != "" {
		meta["quality"] = sub.Quality
	}
	if len(sub.Settings) > 0 {
		meta["settings"] = sub.Settings
	}
	if batchID != nil {
		meta["batchId"] = batchID.String()
		meta["batchSize"] = batchSize
	}
	return meta
}

// ParseSettings decodes the optional free-form settings JSON. A parse
// failure is logged and treated as empty settings, not as a
// validation error.
func ParseSettings(raw string, logger *slog.Logger) map[string]any {
	if raw == "" {
		return nil
	}
	var settings map[string]any
	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		if logger != nil {
			logger.Warn("ignoring malformed settings JSON", "error", err.Error())
		}
		return nil
	}
	return settings
}

func (s *ConvertService) logInfo(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}
