package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/icm-reconcile/database"
	"github.com/sahilchouksey/icm-reconcile/utils/response"
)

func HandleCheckHealth(c *fiber.Ctx, store database.Storage) error {
	if err := store.HealthCheck(); err != nil {
		return response.ErrorWithDetails(c, fiber.StatusServiceUnavailable, "Database unavailable", "SERVICE_UNAVAILABLE", err.Error())
	}
	return c.JSON(fiber.Map{"status": "ok"})
}
