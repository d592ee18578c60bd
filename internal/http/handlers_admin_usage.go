package http

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"morpho/internal/store"
)

type dailyUsageItem struct {
	Day      string `json:"day"`
	ApiKeyID string `json:"apiKeyId"`
	Requests int64  `json:"requests"`
}

type adminUsageResponse struct {
	Success        bool             `json:"success"`
	Code           string           `json:"code,omitempty"`
	Error          string           `json:"error,omitempty"`
	Since          time.Time        `json:"since"`
	JobsByStatus   map[string]int64 `json:"jobsByStatus,omitempty"`
	VisitorsTotal  int64            `json:"visitorsTotal"`
	VisitorsActive int64            `json:"visitorsActive"`
	DailyUsage     []dailyUsageItem `json:"dailyUsage"`
}

// adminUsageHandler powers the dashboard: job totals by status,
// visitor counts, and per-key daily request usage for the window.
func adminUsageHandler(c *fiber.Ctx) error {
	st := c.Locals("store").(*store.Store)
	ctx := c.Context()

	now := time.Now().UTC()
	since := now.Add(-30 * 24 * time.Hour)
	if s := c.Query("since"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(adminUsageResponse{
				Success: false,
				Code:    "BAD_REQUEST",
				Error:   "invalid since value; expected RFC3339",
			})
		}
		since = t.UTC()
	} else if w := c.Query("window"); w != "" {
		switch w {
		case "24h":
			since = now.Add(-24 * time.Hour)
		case "7d":
			since = now.Add(-7 * 24 * time.Hour)
		case "30d":
			since = now.Add(-30 * 24 * time.Hour)
		default:
			return c.Status(fiber.StatusBadRequest).JSON(adminUsageResponse{
				Success: false,
				Code:    "BAD_REQUEST",
				Error:   "invalid window; expected 24h, 7d, or 30d",
			})
		}
	}

	counts, err := st.JobStatusCounts(ctx)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(adminUsageResponse{
			Success: false,
			Code:    "USAGE_QUERY_FAILED",
			Error:   err.Error(),
		})
	}

	total, active, err := st.VisitorStats(ctx, since)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(adminUsageResponse{
			Success: false,
			Code:    "USAGE_QUERY_FAILED",
			Error:   err.Error(),
		})
	}

	rows, err := st.ListDailyUsageSince(ctx, since)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(adminUsageResponse{
			Success: false,
			Code:    "USAGE_QUERY_FAILED",
			Error:   err.Error(),
		})
	}

	usage := make([]dailyUsageItem, 0, len(rows))
	for _, row := range rows {
		usage = append(usage, dailyUsageItem{
			Day:      row.Day.UTC().Format("2006-01-02"),
			ApiKeyID: row.ApiKeyID.String(),
			Requests: row.Requests,
		})
	}

	return c.Status(fiber.StatusOK).JSON(adminUsageResponse{
		Success:        true,
		Since:          since,
		JobsByStatus:   counts,
		VisitorsTotal:  total,
		VisitorsActive: active,
		DailyUsage:     usage,
	})
}
