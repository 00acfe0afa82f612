package middleware

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/velora-app/velora/app/models"
	"github.com/velora-app/velora/internal/pkg/database"
)

// OrgContextKey is the Locals key under which the authenticated org id is
// stored for downstream handlers.
const OrgContextKey = "ORG_ID"

// OrgAPIKeyMiddleware authenticates requests against an organization API key
// and rejects keys that do not match the :orgId route parameter, so one
// tenant's key cannot read another tenant's calendar state.
func OrgAPIKeyMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		apiKey := extractAPIKeyFromHeader(c)
		if apiKey == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing API key"})
		}

		db := database.GetDB()
		if db == nil {
			log.Error("api key middleware: database unavailable")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
		}

		hash := models.HashAPIKey(apiKey)
		var org models.Organization
		if err := db.Where("api_key_hash = ?", hash).First(&org).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid API key"})
			}
			log.Errorf("api key lookup failed: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
		}

		if param := c.Params("orgId"); param != "" {
			if routeOrg, err := strconv.ParseUint(param, 10, 32); err != nil || uint(routeOrg) != org.ID {
				return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden"})
			}
		}

		c.Locals(OrgContextKey, org.ID)
		return c.Next()
	}
}

func extractAPIKeyFromHeader(c *fiber.Ctx) string {
	apiKey := strings.TrimSpace(c.Get("X-API-Key"))
	if apiKey != "" {
		return apiKey
	}
	auth := strings.TrimSpace(c.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
