package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"mioym/internal/apperror"
	"mioym/internal/middleware"
)

// loginEmailKey holds the normalised email of a sign-in attempt so rejected
// logins can be logged against the account that was tried.
const loginEmailKey = "login_email"

var statusByKind = map[apperror.Kind]int{
	apperror.InvalidCredentials:    fiber.StatusUnauthorized,
	apperror.Unauthenticated:       fiber.StatusUnauthorized,
	apperror.TemporarilyLocked:     fiber.StatusLocked,
	apperror.PermanentlyLocked:     fiber.StatusLocked,
	apperror.MustChangePassword:    fiber.StatusSeeOther,
	apperror.PasswordReused:        fiber.StatusBadRequest,
	apperror.InvalidInput:          fiber.StatusBadRequest,
	apperror.InvalidOrExpiredToken: fiber.StatusBadRequest,
	apperror.Forbidden:             fiber.StatusForbidden,
	apperror.Conflict:              fiber.StatusConflict,
	apperror.ConfigurationMissing:  fiber.StatusInternalServerError,
	apperror.Internal:              fiber.StatusInternalServerError,
}

// StatusOf maps an error kind to its HTTP status.
func StatusOf(kind apperror.Kind) int {
	if status, ok := statusByKind[kind]; ok {
		return status
	}
	return fiber.StatusInternalServerError
}

// ErrorHandler writes every error as {"error": kind, "message": text}. Causes
// of internal errors are logged and never sent to the client.
func ErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			kind := "internal"
			switch {
			case fe.Code == fiber.StatusNotFound:
				kind = "not_found"
			case fe.Code == fiber.StatusMethodNotAllowed:
				kind = "method_not_allowed"
			case fe.Code < fiber.StatusInternalServerError:
				kind = string(apperror.InvalidInput)
			}
			return c.Status(fe.Code).JSON(fiber.Map{"error": kind, "message": fe.Message})
		}

		e := apperror.From(err)
		status := StatusOf(e.Kind)

		fields := requestFields(c)
		fields = append(fields, zap.String("kind", string(e.Kind)))

		message := e.Message
		if status >= fiber.StatusInternalServerError {
			log.Error("request failed", append(fields, zap.Error(err))...)
			message = apperror.New(apperror.Internal).Message
		} else {
			log.Info("request rejected", fields...)
		}

		body := fiber.Map{
			"error":   e.Kind,
			"message": message,
		}
		if e.RedirectURL != "" {
			body["redirect_url"] = e.RedirectURL
			body["is_first_login"] = true
		}

		return c.Status(status).JSON(body)
	}
}

func requestFields(c *fiber.Ctx) []zap.Field {
	fields := []zap.Field{
		zap.String("request_id", c.GetRespHeader(fiber.HeaderXRequestID)),
		zap.String("method", c.Method()),
		zap.String("url", c.OriginalURL()),
		zap.String("ip", c.IP()),
	}

	if user := middleware.CurrentUser(c); user != nil {
		fields = append(fields,
			zap.String("user_id", user.ID.String()),
			zap.String("user_email", user.Email),
		)
	} else if email, ok := c.Locals(loginEmailKey).(string); ok && email != "" {
		fields = append(fields, zap.String("user_email", email))
	} else {
		fields = append(fields, zap.String("user_email", "guest"))
	}

	return fields
}
