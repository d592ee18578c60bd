package http

import (
	"github.com/gofiber/fiber/v2"

	"morpho/internal/tools"
)

func toolsListHandler(c *fiber.Ctx) error {
	catalog := c.Locals("catalog").(*tools.Catalog)
	return c.Status(fiber.StatusOK).JSON(ToolsResponse{
		Success: true,
		Tools:   catalog.List(),
	})
}

func toolDetailHandler(c *fiber.Ctx) error {
	catalog := c.Locals("catalog").(*tools.Catalog)

	tool, ok := catalog.Get(c.Params("slug"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(ToolResponse{
			Success: false,
			Code:    "NOT_FOUND",
			Error:   "Unknown tool",
		})
	}

	return c.Status(fiber.StatusOK).JSON(ToolResponse{
		Success: true,
		Tool:    &tool,
	})
}

// toolPageHandler serves the static landing page for a catalog entry.
func toolPageHandler(c *fiber.Ctx) error {
	catalog := c.Locals("catalog").(*tools.Catalog)

	tool, ok := catalog.Get(c.Params("slug"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(ToolResponse{
			Success: false,
			Code:    "NOT_FOUND",
			Error:   "Unknown tool",
		})
	}

	page := catalog.PagePath(tool)
	if page == "" {
		return c.Status(fiber.StatusNotFound).JSON(ToolResponse{
			Success: false,
			Code:    "NOT_FOUND",
			Error:   "Tool has no landing page",
		})
	}
	return c.SendFile(page)
}
