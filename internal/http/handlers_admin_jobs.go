package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"morpho/internal/store"
)

type adminJobsResponse struct {
	Success      bool             `json:"success"`
	Code         string           `json:"code,omitempty"`
	Error        string           `json:"error,omitempty"`
	StatusCounts map[string]int64 `json:"statusCounts,omitempty"`
	Jobs         []Job            `json:"jobs"`
}

// adminListJobsHandler lists jobs across all tenants, optionally
// filtered by status or owning api key.
func adminListJobsHandler(c *fiber.Ctx) error {
	st := c.Locals("store").(*store.Store)

	filter := store.JobListFilter{
		Status: c.Query("status"),
		Limit:  queryInt(c, "limit", 50),
		Offset: queryInt(c, "offset", 0),
	}
	if raw := c.Query("apiKeyId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(adminJobsResponse{
				Success: false,
				Code:    "BAD_REQUEST",
				Error:   "invalid apiKeyId",
			})
		}
		filter.ApiKeyID = &id
	}

	rows, err := st.ListJobs(c.Context(), filter)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(adminJobsResponse{
			Success: false,
			Code:    "ADMIN_JOBS_LIST_FAILED",
			Error:   err.Error(),
		})
	}

	counts, err := st.JobStatusCounts(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(adminJobsResponse{
			Success: false,
			Code:    "ADMIN_JOBS_LIST_FAILED",
			Error:   err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(adminJobsResponse{
		Success:      true,
		StatusCounts: counts,
		Jobs:         jobItems(rows),
	})
}
