// Package binding decodes and validates request bodies.
package binding

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator"
	"github.com/gofiber/fiber/v2"

	"mioym/internal/apperror"
	"mioym/internal/config"
	"mioym/internal/platform/auth"
)

// Parse decodes the request body into input and validates it. Failures are
// InvalidInput errors naming the offending fields.
func Parse(c *fiber.Ctx, input any) error {
	if err := c.BodyParser(input); err != nil {
		return apperror.New(apperror.InvalidInput)
	}

	err := config.Validate.Struct(input)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperror.Wrap(apperror.InvalidInput, err)
	}

	var problems []string
	for _, fe := range verrs {
		if fe.Tag() == "password" {
			return apperror.Newf(apperror.InvalidInput, auth.PasswordPolicyMessage)
		}
		problems = append(problems, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
	}
	return apperror.Newf(apperror.InvalidInput, "Invalid input: %s", strings.Join(problems, ", "))
}
