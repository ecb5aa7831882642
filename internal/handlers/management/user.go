package mngmt

import (
	"github.com/gofiber/fiber/v2"

	"mioym/internal/database"
	"mioym/internal/handlers/binding"
	"mioym/internal/platform/auth"
)

// RegisterUser creates an account, an investor unless another role is given,
// and mails it a temporary password.
func RegisterUser(c *fiber.Ctx) error {
	authService := c.Locals("auth").(*auth.Service)

	type UserInput struct {
		Email     string  `json:"email" validate:"required,email"`
		FirstName string  `json:"first_name" validate:"required,max=100"`
		LastName  string  `json:"last_name" validate:"required,max=100"`
		Telephone *string `json:"telephone" validate:"omitempty,max=32"`
		Role      string  `json:"role" validate:"omitempty,oneof=admin investor member"`
	}

	var input UserInput
	if err := binding.Parse(c, &input); err != nil {
		return err
	}

	user, emailSent, err := authService.Register(c.UserContext(), auth.Registration{
		Email:     input.Email,
		FirstName: input.FirstName,
		LastName:  input.LastName,
		Telephone: input.Telephone,
		Role:      database.Role(input.Role),
	})
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"user":       user,
		"email_sent": emailSent,
	})
}
