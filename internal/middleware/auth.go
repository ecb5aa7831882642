package middleware

import (
	"github.com/gofiber/fiber/v2"
	fibersession "github.com/gofiber/fiber/v2/middleware/session"
	"github.com/google/uuid"

	"mioym/internal/apperror"
	"mioym/internal/database"
	"mioym/internal/platform/auth"
	"mioym/internal/platform/session"
)

// SessionMiddleware loads the signed-in account, if any, into Locals("user").
// The record is read on every request so a password change or lock applied
// elsewhere takes effect immediately. A session pointing at an account that no
// longer exists is destroyed.
func SessionMiddleware(c *fiber.Ctx) error {
	store := c.Locals("sessions").(*fibersession.Store)
	authService := c.Locals("auth").(*auth.Service)

	sess, err := store.Get(c)
	if err != nil {
		return apperror.Wrap(apperror.Internal, err)
	}

	raw, ok := sess.Get(session.UserIDKey).(string)
	if !ok {
		return c.Next()
	}

	userID, err := uuid.Parse(raw)
	if err != nil {
		if err := sess.Destroy(); err != nil {
			return apperror.Wrap(apperror.Internal, err)
		}
		return c.Next()
	}

	user, err := authService.User(c.UserContext(), userID)
	if err != nil {
		if apperror.KindOf(err) != apperror.Unauthenticated {
			return err
		}
		if err := sess.Destroy(); err != nil {
			return apperror.Wrap(apperror.Internal, err)
		}
		return c.Next()
	}

	c.Locals("user", user)

	return c.Next()
}

// CurrentUser returns the account loaded by SessionMiddleware, or nil.
func CurrentUser(c *fiber.Ctx) *database.User {
	user, _ := c.Locals("user").(*database.User)
	return user
}

func AuthMiddleware(c *fiber.Ctx) error {
	if err := auth.RequireAuthenticated(CurrentUser(c)); err != nil {
		return err
	}
	return c.Next()
}

// ForcedChangeMiddleware admits only accounts that still carry a temporary password.
func ForcedChangeMiddleware(c *fiber.Ctx) error {
	if err := auth.RequireForcedChangeContext(CurrentUser(c)); err != nil {
		return err
	}
	return c.Next()
}
