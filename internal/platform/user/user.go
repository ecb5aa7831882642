package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"mioym/internal/database"
)

var (
	ErrNotFound        = errors.New("user not found")
	ErrDuplicateEmail  = errors.New("email already registered")
	ErrVersionConflict = errors.New("user record changed concurrently")
)

// Store persists identity records. CompareAndSwap writes the authentication
// fields of u only if the stored version still equals version, and bumps the
// version on success.
type Store interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*database.User, error)
	GetUserByEmail(ctx context.Context, email string) (*database.User, error)
	Create(ctx context.Context, u *database.User) error
	CompareAndSwap(ctx context.Context, u *database.User, version int64) error
}

// NormalizeEmail is the lookup form of an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type UserService struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *UserService {
	return &UserService{db: db}
}

func (s *UserService) GetUserByID(ctx context.Context, userID uuid.UUID) (*database.User, error) {
	var user database.User
	result := s.db.WithContext(ctx).First(&user, "id = ?", userID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, result.Error
	}
	return &user, nil
}

func (s *UserService) GetUserByEmail(ctx context.Context, email string) (*database.User, error) {
	var user database.User
	result := s.db.WithContext(ctx).First(&user, "email = ?", NormalizeEmail(email))
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, result.Error
	}
	return &user, nil
}

func (s *UserService) Create(ctx context.Context, u *database.User) error {
	u.Email = NormalizeEmail(u.Email)

	result := s.db.WithContext(ctx).Create(u)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("failed to create user: %w", result.Error)
	}
	return nil
}

// CompareAndSwap writes the password hash, the must-change flag and the whole
// lock sub-object in a single conditional UPDATE.
func (s *UserService) CompareAndSwap(ctx context.Context, u *database.User, version int64) error {
	now := time.Now()
	result := s.db.WithContext(ctx).
		Model(&database.User{}).
		Where("id = ? AND version = ?", u.ID, version).
		Updates(map[string]any{
			"password_hash":                      u.PasswordHash,
			"password_must_change":               u.PasswordMustChange,
			"lock_temporary_locked_until":        u.LockStatus.TemporaryLockedUntil,
			"lock_is_temporary_locked":           u.LockStatus.IsTemporaryLocked,
			"lock_is_permanently_locked":         u.LockStatus.IsPermanentlyLocked,
			"lock_attempts_until_temporary_lock": u.LockStatus.AttemptsUntilTemporaryLock,
			"lock_attempts_until_permanent_lock": u.LockStatus.AttemptsUntilPermanentLock,
			"version":                            version + 1,
			"updated_at":                         now,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update user: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrVersionConflict
	}

	u.Version = version + 1
	u.UpdatedAt = now
	return nil
}
