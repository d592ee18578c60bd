package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"morpho/internal/services"
)

// batchStatusHandler reports every member of a batch plus per-status
// counts. An unknown batch id reads as an empty batch.
func batchStatusHandler(c *fiber.Ctx) error {
	svc := c.Locals("convertService").(*services.ConvertService)

	batchID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(BatchStatusResponse{
			Success: false,
			Code:    "BAD_REQUEST",
			Error:   "Invalid batch id",
		})
	}

	rows, err := svc.GetBatch(c.Context(), batchID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(BatchStatusResponse{
			Success: false,
			Code:    "INTERNAL_ERROR",
			Error:   err.Error(),
		})
	}

	counts := make(map[string]int64)
	for _, row := range rows {
		counts[row.Status]++
	}

	return c.Status(fiber.StatusOK).JSON(BatchStatusResponse{
		Success:      true,
		BatchID:      batchID.String(),
		Total:        len(rows),
		StatusCounts: counts,
		Jobs:         jobItems(rows),
	})
}
