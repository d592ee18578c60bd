package jobs

import (
	"context"
	"log/slog"
	"time"

	"morpho/internal/config"
	"morpho/internal/metrics"
	"morpho/internal/store"
)

// ArtifactRemover deletes stored artifact files for reaped jobs.
type ArtifactRemover interface {
	Remove(path string) error
}

// RetentionStats captures the number of records and files deleted by
// TTL cleanup.
type RetentionStats struct {
	JobsDeleted      map[string]int64 `json:"jobsDeleted"`
	ArtifactsDeleted int64            `json:"artifactsDeleted"`
}

// CleanupExpiredJobs deletes old terminal conversion jobs (and their
// stored artifacts, when configured) so that the database and upload
// directory do not grow without bound.
func CleanupExpiredJobs(ctx context.Context, cfg *config.Config, st *store.Store, files ArtifactRemover) RetentionStats {
	now := time.Now().UTC()
	stats := RetentionStats{JobsDeleted: make(map[string]int64)}

	ttl := cfg.Retention.Jobs

	effectiveDays := func(specific int) int {
		if specific > 0 {
			return specific
		}
		return ttl.DefaultDays
	}

	applyTTL := func(status Status, days int) {
		if days <= 0 {
			return
		}
		cutoff := now.AddDate(0, 0, -days)
		paths, err := st.DeleteExpiredJobsByStatus(ctx, string(status), cutoff)
		if err != nil || len(paths) == 0 {
			return
		}

		stats.JobsDeleted[string(status)] += int64(len(paths))
		metrics.RecordRetentionJobs(string(status), int64(len(paths)))

		if !cfg.Retention.DeleteArtifacts || files == nil {
			return
		}
		for _, p := range paths {
			if err := files.Remove(p); err == nil {
				stats.ArtifactsDeleted++
			}
		}
		metrics.RecordRetentionArtifacts(stats.ArtifactsDeleted)
	}

	applyTTL(StatusCompleted, effectiveDays(ttl.CompletedDays))
	applyTTL(StatusFailed, effectiveDays(ttl.FailedDays))

	return stats
}

// StartRetentionSweeper launches a background loop that periodically
// runs TTL cleanup. Callers typically run this from the worker role
// and keep the process alive.
func StartRetentionSweeper(ctx context.Context, cfg *config.Config, st *store.Store, files ArtifactRemover, logger *slog.Logger) {
	go func() {
		interval := time.Duration(cfg.Retention.CleanupIntervalMinutes) * time.Minute
		if interval <= 0 {
			interval = time.Hour
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			if !cfg.Retention.Enabled {
				continue
			}

			stats := CleanupExpiredJobs(ctx, cfg, st, files)
			if logger != nil && (len(stats.JobsDeleted) > 0 || stats.ArtifactsDeleted > 0) {
				logger.Info("retention sweep",
					"jobs_deleted", stats.JobsDeleted,
					"artifacts_deleted", stats.ArtifactsDeleted,
				)
			}
		}
	}()
}
