package utils

import (
	fiber "github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/icm-reconcile/database"
	"github.com/sahilchouksey/icm-reconcile/utils/response"
)

// MakeHTTPHandleFunc adapts a store-bound handler to fiber; returned errors go through the response envelope
func MakeHTTPHandleFunc(handler func(c *fiber.Ctx, store database.Storage) error, store database.Storage) func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		if err := handler(c, store); err != nil {
			return response.FromError(c, err)
		}
		return nil
	}
}
