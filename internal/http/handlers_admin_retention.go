package http

import (
	"github.com/gofiber/fiber/v2"

	"morpho/internal/config"
	"morpho/internal/jobs"
	"morpho/internal/storage"
	"morpho/internal/store"
)

type adminRetentionResponse struct {
	Success          bool             `json:"success"`
	JobsDeleted      map[string]int64 `json:"jobsDeleted"`
	ArtifactsDeleted int64            `json:"artifactsDeleted"`
}

// adminRetentionRunHandler triggers one retention sweep on demand,
// independent of the background sweeper.
func adminRetentionRunHandler(c *fiber.Ctx) error {
	cfg := c.Locals("config").(*config.Config)
	st := c.Locals("store").(*store.Store)
	files := c.Locals("files").(*storage.Dir)

	stats := jobs.CleanupExpiredJobs(c.Context(), cfg, st, files)

	return c.Status(fiber.StatusOK).JSON(adminRetentionResponse{
		Success:          true,
		JobsDeleted:      stats.JobsDeleted,
		ArtifactsDeleted: stats.ArtifactsDeleted,
	})
}
