package middleware

import (
	"github.com/gofiber/fiber/v2"

	"mioym/internal/database"
	"mioym/internal/platform/auth"
)

func RoleMiddleware(roles ...database.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := auth.RequireRole(CurrentUser(c), roles...); err != nil {
			return err
		}
		return c.Next()
	}
}

// AdminMiddleware must run after AuthMiddleware.
var AdminMiddleware = RoleMiddleware(database.RoleAdmin)
