package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	fibersession "github.com/gofiber/fiber/v2/middleware/session"

	"mioym/internal/apperror"
	"mioym/internal/database"
	"mioym/internal/handlers/binding"
	"mioym/internal/middleware"
	"mioym/internal/platform/auth"
	"mioym/internal/platform/session"
	userstore "mioym/internal/platform/user"
)

type UserResponse struct {
	*database.User
	IsTemporaryLocked   bool `json:"is_temporary_locked"`
	IsPermanentlyLocked bool `json:"is_permanently_locked"`
}

func newUserResponse(u *database.User) UserResponse {
	return UserResponse{
		User:                u,
		IsTemporaryLocked:   u.LockStatus.IsTemporaryLocked,
		IsPermanentlyLocked: u.LockStatus.IsPermanentlyLocked,
	}
}

func SigninWithPassword(c *fiber.Ctx) error {
	authService := c.Locals("auth").(*auth.Service)
	store := c.Locals("sessions").(*fibersession.Store)

	type LoginInput struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	var input LoginInput
	if err := binding.Parse(c, &input); err != nil {
		return err
	}

	c.Locals(loginEmailKey, userstore.NormalizeEmail(input.Email))

	user, err := authService.Attempt(c.UserContext(), input.Email, input.Password)
	if err != nil {
		return err
	}

	sess, err := store.Get(c)
	if err != nil {
		return apperror.Wrap(apperror.Internal, err)
	}
	// New id on every sign-in so a pre-login cookie cannot be fixated.
	if err := sess.Regenerate(); err != nil {
		return apperror.Wrap(apperror.Internal, err)
	}
	sess.Set(session.UserIDKey, user.ID.String())
	if err := sess.Save(); err != nil {
		return apperror.Wrap(apperror.Internal, err)
	}

	if user.PasswordMustChange {
		return apperror.Redirect()
	}

	return c.JSON(newUserResponse(user))
}

func Logout(c *fiber.Ctx) error {
	store := c.Locals("sessions").(*fibersession.Store)

	sess, err := store.Get(c)
	if err != nil {
		return apperror.Wrap(apperror.Internal, err)
	}
	if _, ok := sess.Get(session.UserIDKey).(string); !ok {
		return apperror.New(apperror.Unauthenticated)
	}

	if err := sess.Destroy(); err != nil {
		return apperror.Wrap(apperror.Internal, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

type ChangePasswordInput struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,password"`
}

// SetPassword replaces the temporary password issued at registration.
func SetPassword(c *fiber.Ctx) error {
	authService := c.Locals("auth").(*auth.Service)
	user := middleware.CurrentUser(c)

	var input ChangePasswordInput
	if err := binding.Parse(c, &input); err != nil {
		return err
	}

	updated, err := authService.ForcedChange(c.UserContext(), user.ID, input.CurrentPassword, input.NewPassword)
	if err != nil {
		return err
	}

	return c.JSON(newUserResponse(updated))
}

func ChangePassword(c *fiber.Ctx) error {
	authService := c.Locals("auth").(*auth.Service)
	user := middleware.CurrentUser(c)

	var input ChangePasswordInput
	if err := binding.Parse(c, &input); err != nil {
		return err
	}

	if _, err := authService.VoluntaryChange(c.UserContext(), user.ID, input.CurrentPassword, input.NewPassword); err != nil {
		return err
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func ForgotPassword(c *fiber.Ctx) error {
	authService := c.Locals("auth").(*auth.Service)

	type ForgotPasswordInput struct {
		Email string `json:"email" validate:"required,email"`
	}

	var input ForgotPasswordInput
	if err := binding.Parse(c, &input); err != nil {
		return err
	}

	if err := authService.RequestReset(c.UserContext(), input.Email); err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"message": "If an account exists for that email, a password reset link has been sent.",
	})
}

// ResetPassword redeems the token from the reset link, passed as a bearer token.
func ResetPassword(c *fiber.Ctx) error {
	authService := c.Locals("auth").(*auth.Service)

	authHeader := c.Get(fiber.HeaderAuthorization)
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return apperror.New(apperror.InvalidOrExpiredToken)
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")

	type ResetPasswordInput struct {
		Password string `json:"password" validate:"required,password"`
	}

	var input ResetPasswordInput
	if err := binding.Parse(c, &input); err != nil {
		return err
	}

	if err := authService.RedeemReset(c.UserContext(), token, input.Password); err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"message": "Your password has been reset. You can now sign in with your new password.",
	})
}
