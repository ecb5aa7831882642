package database

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"mioym/internal/config"
)

func Connect(c *config.Config, log *zap.Logger) (*gorm.DB, error) {
	return Open(postgres.Open(c.DatabaseURL), log)
}

// Open opens a gorm session over dialector with the settings the stores rely
// on. Driver errors are translated so duplicate keys surface as
// gorm.ErrDuplicatedKey.
func Open(dialector gorm.Dialector, log *zap.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(dialector, &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Debug("GORM connected to database")

	return db, nil
}

// Migrate creates the application schema and brings the user table up to date.
func Migrate(db *gorm.DB) error {
	if err := db.Exec("CREATE SCHEMA IF NOT EXISTS application").Error; err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	if err := db.AutoMigrate(&User{}); err != nil {
		return fmt.Errorf("failed to migrate user table: %w", err)
	}
	return nil
}
