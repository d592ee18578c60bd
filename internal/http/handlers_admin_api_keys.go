package http

import (
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"morpho/internal/db"
	"morpho/internal/store"
)

type adminAPIKeyItem struct {
	ID                 string     `json:"id"`
	Label              string     `json:"label"`
	IsAdmin            bool       `json:"isAdmin"`
	RateLimitPerMinute *int       `json:"rateLimitPerMinute,omitempty"`
	Tenant             *string    `json:"tenant,omitempty"`
	RequestCount       int64      `json:"requestCount"`
	CreatedAt          time.Time  `json:"createdAt"`
	RevokedAt          *time.Time `json:"revokedAt,omitempty"`
}

type adminAPIKeysResponse struct {
	Success bool              `json:"success"`
	Keys    []adminAPIKeyItem `json:"keys"`
}

type adminCreateAPIKeyRequest struct {
	Label              string  `json:"label"`
	IsAdmin            bool    `json:"isAdmin"`
	RateLimitPerMinute *int    `json:"rateLimitPerMinute"`
	Tenant             *string `json:"tenant"`
}

type adminCreateAPIKeyResponse struct {
	Success bool            `json:"success"`
	Key     string          `json:"key"`
	Item    adminAPIKeyItem `json:"item"`
}

type adminRevokeAPIKeyResponse struct {
	Success   bool      `json:"success"`
	ID        string    `json:"id"`
	RevokedAt time.Time `json:"revokedAt"`
}

func apiKeyItem(row db.ApiKey) adminAPIKeyItem {
	item := adminAPIKeyItem{
		ID:           row.ID.String(),
		Label:        row.Label,
		IsAdmin:      row.IsAdmin,
		RequestCount: row.RequestCount,
		CreatedAt:    row.CreatedAt,
	}
	if row.RateLimitPerMinute.Valid {
		v := int(row.RateLimitPerMinute.Int32)
		item.RateLimitPerMinute = &v
	}
	if row.Tenant.Valid {
		v := row.Tenant.String
		item.Tenant = &v
	}
	if row.RevokedAt.Valid {
		v := row.RevokedAt.Time
		item.RevokedAt = &v
	}
	return item
}

func adminListAPIKeysHandler(c *fiber.Ctx) error {
	st := c.Locals("store").(*store.Store)

	includeRevoked := false
	if v := c.Query("includeRevoked"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
				Success: false,
				Code:    "BAD_REQUEST",
				Error:   "invalid includeRevoked value; expected true or false",
			})
		}
		includeRevoked = parsed
	}

	limit := queryInt(c, "limit", 50)
	if limit > 500 {
		limit = 500
	}
	offset := queryInt(c, "offset", 0)

	rows, err := st.ListAPIKeys(c.Context(), includeRevoked, limit, offset)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Success: false,
			Code:    "ADMIN_API_KEYS_LIST_FAILED",
			Error:   err.Error(),
		})
	}

	keys := make([]adminAPIKeyItem, 0, len(rows))
	for _, row := range rows {
		keys = append(keys, apiKeyItem(row))
	}

	return c.Status(fiber.StatusOK).JSON(adminAPIKeysResponse{
		Success: true,
		Keys:    keys,
	})
}

// adminCreateAPIKeyHandler mints a key and returns the raw secret once.
// Only the SHA-256 hash is stored.
func adminCreateAPIKeyHandler(c *fiber.Ctx) error {
	st := c.Locals("store").(*store.Store)

	var req adminCreateAPIKeyRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Success: false,
			Code:    "BAD_REQUEST",
			Error:   "invalid JSON body",
		})
	}
	if req.Label == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Success: false,
			Code:    "BAD_REQUEST",
			Error:   "label is required",
		})
	}

	rawKey, row, err := st.CreateRandomAPIKey(c.Context(), req.Label, req.IsAdmin, req.RateLimitPerMinute, req.Tenant)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Success: false,
			Code:    "ADMIN_API_KEY_CREATE_FAILED",
			Error:   err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(adminCreateAPIKeyResponse{
		Success: true,
		Key:     rawKey,
		Item:    apiKeyItem(row),
	})
}

func adminRevokeAPIKeyHandler(c *fiber.Ctx) error {
	st := c.Locals("store").(*store.Store)

	keyID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Success: false,
			Code:    "BAD_REQUEST",
			Error:   "invalid api key id",
		})
	}

	row, err := st.RevokeAPIKey(c.Context(), keyID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
				Success: false,
				Code:    "NOT_FOUND",
				Error:   "api key not found or already revoked",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Success: false,
			Code:    "ADMIN_API_KEY_REVOKE_FAILED",
			Error:   err.Error(),
		})
	}

	if !row.RevokedAt.Valid {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Success: false,
			Code:    "ADMIN_API_KEY_REVOKE_FAILED",
			Error:   "api key revoked timestamp missing",
		})
	}

	return c.Status(fiber.StatusOK).JSON(adminRevokeAPIKeyResponse{
		Success:   true,
		ID:        row.ID.String(),
		RevokedAt: row.RevokedAt.Time,
	})
}
