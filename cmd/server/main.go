package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"mioym/internal/config"
	"mioym/internal/database"
	"mioym/internal/handlers"
	"mioym/internal/logger"
	"mioym/internal/mail"
	"mioym/internal/platform/auth"
	"mioym/internal/platform/session"
	"mioym/internal/platform/user"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	zlog, err := logger.New(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer zlog.Sync()

	db, err := database.Connect(cfg, zlog)
	if err != nil {
		zlog.Fatal("database unavailable", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		zlog.Fatal("migration failed", zap.Error(err))
	}

	sessions, err := session.New(cfg, zlog)
	if err != nil {
		zlog.Fatal("session store unavailable", zap.Error(err))
	}

	mailer := mail.FromConfig(cfg, zlog)
	authService := auth.NewService(cfg, user.NewService(db), mailer, zlog)

	if cfg.AdminEmail != "" {
		_, _, err := authService.BootstrapAdmin(context.Background(), auth.Registration{
			Email:     cfg.AdminEmail,
			FirstName: cfg.AdminFirstName,
			LastName:  cfg.AdminLastName,
			Password:  cfg.AdminPassword,
		})
		if err != nil {
			zlog.Fatal("failed to bootstrap admin account", zap.Error(err))
		}
	}

	app := handlers.NewApp(cfg, zlog, authService, sessions)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit

		zlog.Info("shutting down")
		if err := app.Shutdown(); err != nil {
			zlog.Error("shutdown failed", zap.Error(err))
		}
	}()

	zlog.Info("listening", zap.Int("port", cfg.ServerPort), zap.String("env", cfg.AppEnv))
	if err := app.Listen(fmt.Sprintf(":%d", cfg.ServerPort)); err != nil {
		zlog.Fatal("server stopped", zap.Error(err))
	}

	if err := sessions.Storage.Close(); err != nil {
		zlog.Error("failed to close session store", zap.Error(err))
	}
}
