package handlers

import (
	"github.com/gofiber/fiber/v2"

	"mioym/internal/middleware"
)

func GetCurrentUser(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)

	return c.JSON(newUserResponse(user))
}
