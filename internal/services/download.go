package services

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"morpho/internal/db"
	"morpho/internal/jobs"
	"morpho/internal/store"
)

// ArtifactChecker is the slice of storage the download path needs.
type ArtifactChecker interface {
	Exists(path string) bool
}

// Artifact is a resolved downloadable file.
type Artifact struct {
	Path     string
	Filename string
}

// DownloadService resolves completed jobs to downloadable artifacts.
type DownloadService struct {
	st    *store.Store
	files ArtifactChecker
}

func NewDownloadService(st *store.Store, files ArtifactChecker) *DownloadService {
	return &DownloadService{st: st, files: files}
}

// ResolveJob maps a job id onto its artifact. It distinguishes an
// absent job (ErrJobNotFound), a job still in flight (ErrJobNotReady),
// and a completed job whose file has vanished from storage
// (ErrArtifactMissing).
func (s *DownloadService) ResolveJob(ctx context.Context, id uuid.UUID) (db.ConversionJob, Artifact, error) {
	job, err := s.st.GetJob(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return db.ConversionJob{}, Artifact{}, ErrJobNotFound
		}
		return db.ConversionJob{}, Artifact{}, err
	}

	if job.Status != string(jobs.StatusCompleted) {
		return job, Artifact{}, ErrJobNotReady
	}

	if !s.files.Exists(job.ArtifactPath) {
		return job, Artifact{}, ErrArtifactMissing
	}

	return job, Artifact{
		Path:     job.ArtifactPath,
		Filename: DownloadFilename(job.OriginalFilename, job.TargetFormat),
	}, nil
}

// ResolveBatch returns the artifacts of all completed batch members
// whose files are still present, in creation order. An unknown batch
// id reads as an empty batch; a batch with members but no completed
// ones is ErrNoCompletedJobs.
func (s *DownloadService) ResolveBatch(ctx context.Context, batchID uuid.UUID) ([]Artifact, error) {
	members, err := s.st.ListJobsByBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}

	var artifacts []Artifact
	for _, job := range members {
		if job.Status != string(jobs.StatusCompleted) {
			continue
		}
		if !s.files.Exists(job.ArtifactPath) {
			continue
		}
		artifacts = append(artifacts, Artifact{
			Path:     job.ArtifactPath,
			Filename: DownloadFilename(job.OriginalFilename, job.TargetFormat),
		})
	}

	if len(artifacts) == 0 {
		return nil, ErrNoCompletedJobs
	}
	return artifacts, nil
}

// DownloadFilename names a download after the original file with the
// target format as its extension.
func DownloadFilename(originalName, targetFormat string) string {
	base := filepath.Base(originalName)
	if ext := filepath.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	if base == "" || base == "." {
		base = "converted"
	}
	return base + "." + strings.TrimPrefix(targetFormat, ".")
}
