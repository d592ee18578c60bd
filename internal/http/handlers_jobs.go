package http

import (
	"database/sql"
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"morpho/internal/store"
)

func getJobHandler(c *fiber.Ctx) error {
	st := c.Locals("store").(*store.Store)

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Success: false,
			Code:    "BAD_REQUEST",
			Error:   "Invalid job id",
		})
	}

	job, err := st.GetJob(c.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
				Success: false,
				Code:    "NOT_FOUND",
				Error:   "Job not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Success: false,
			Code:    "INTERNAL_ERROR",
			Error:   err.Error(),
		})
	}

	item := jobItem(job)
	return c.Status(fiber.StatusOK).JSON(JobResponse{
		Success: true,
		Job:     &item,
	})
}

// deleteJobHandler removes the record regardless of lifecycle phase.
// A conversion already in flight for the deleted id finishes as a
// no-op when it tries to write back.
func deleteJobHandler(c *fiber.Ctx) error {
	st := c.Locals("store").(*store.Store)

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(DeleteJobResponse{
			Success: false,
			Code:    "BAD_REQUEST",
			Error:   "Invalid job id",
		})
	}

	existed, err := st.DeleteJob(c.Context(), id)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(DeleteJobResponse{
			Success: false,
			Code:    "INTERNAL_ERROR",
			Error:   err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(DeleteJobResponse{
		Success: true,
		Existed: existed,
	})
}

// jobsListHandler returns the caller's own jobs; admin keys see every
// tenant's jobs.
func jobsListHandler(c *fiber.Ctx) error {
	st := c.Locals("store").(*store.Store)

	filter := store.JobListFilter{
		Status: c.Query("status"),
		Limit:  queryInt(c, "limit", 50),
		Offset: queryInt(c, "offset", 0),
	}
	if key, ok := apiKeyFromContext(c); ok && !key.IsAdmin {
		id := key.ID
		filter.ApiKeyID = &id
	}

	rows, err := st.ListJobs(c.Context(), filter)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ListJobsResponse{
			Success: false,
			Code:    "INTERNAL_ERROR",
			Error:   err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(ListJobsResponse{
		Success: true,
		Jobs:    jobItems(rows),
	})
}

func queryInt(c *fiber.Ctx, name string, fallback int32) int32 {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.ParseInt(raw, 10, 32)
	if err != nil || n < 0 {
		return fallback
	}
	return int32(n)
}
