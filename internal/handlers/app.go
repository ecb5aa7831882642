package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/healthcheck"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	fibersession "github.com/gofiber/fiber/v2/middleware/session"
	"go.uber.org/zap"

	"mioym/internal/config"
	mngmt "mioym/internal/handlers/management"
	"mioym/internal/middleware"
	"mioym/internal/platform/auth"
)

// NewApp assembles the HTTP application. Dependencies reach handlers through
// Locals.
func NewApp(cfg *config.Config, log *zap.Logger, authService *auth.Service, sessions *fibersession.Store) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "mioym",
		ErrorHandler: ErrorHandler(log),
	})

	app.Use(compress.New())
	app.Use(helmet.New())
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(healthcheck.New())

	app.Use(func(c *fiber.Ctx) error {
		c.Locals("config", cfg)
		c.Locals("logger", log)
		c.Locals("auth", authService)
		c.Locals("sessions", sessions)
		return c.Next()
	})

	api := app.Group("/api")

	user := api.Group("/user", middleware.SessionMiddleware)
	user.Post("/login", SigninWithPassword)
	user.Post("/logout", Logout)
	user.Post("/forgot-password", ForgotPassword)
	user.Post("/reset-password", ResetPassword)
	user.Post("/set-password", middleware.ForcedChangeMiddleware, SetPassword)
	user.Get("/me", middleware.AuthMiddleware, GetCurrentUser)
	user.Put("/update-password", middleware.AuthMiddleware, ChangePassword)
	user.Post("/register", middleware.AuthMiddleware, middleware.AdminMiddleware, mngmt.RegisterUser)

	app.Use(func(c *fiber.Ctx) error {
		return fiber.ErrNotFound
	})

	return app
}
