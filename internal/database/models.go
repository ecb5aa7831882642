package database

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleInvestor Role = "investor"
	RoleMember   Role = "member"
)

// LockState is the lockout sub-object of a user. All five fields are always
// written together.
type LockState struct {
	TemporaryLockedUntil       time.Time `json:"temporary_locked_until" gorm:"column:temporary_locked_until;not null"`
	IsTemporaryLocked          bool      `json:"is_temporary_locked" gorm:"column:is_temporary_locked;not null;default:false"`
	IsPermanentlyLocked        bool      `json:"is_permanently_locked" gorm:"column:is_permanently_locked;not null;default:false"`
	AttemptsUntilTemporaryLock int       `json:"attempts_until_temporary_lock" gorm:"column:attempts_until_temporary_lock;not null"`
	AttemptsUntilPermanentLock int       `json:"attempts_until_permanent_lock" gorm:"column:attempts_until_permanent_lock;not null"`
}

// Equal compares lock states, using time.Equal for the deadline.
func (s LockState) Equal(o LockState) bool {
	return s.TemporaryLockedUntil.Equal(o.TemporaryLockedUntil) &&
		s.IsTemporaryLocked == o.IsTemporaryLocked &&
		s.IsPermanentlyLocked == o.IsPermanentlyLocked &&
		s.AttemptsUntilTemporaryLock == o.AttemptsUntilTemporaryLock &&
		s.AttemptsUntilPermanentLock == o.AttemptsUntilPermanentLock
}

// User represents an account of the investor portal
type User struct {
	ID                 uuid.UUID `json:"id" gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	FirstName          string    `json:"first_name" gorm:"not null"`
	LastName           string    `json:"last_name" gorm:"not null"`
	Email              string    `json:"email" gorm:"uniqueIndex;not null"`
	Telephone          *string   `json:"telephone"`
	PasswordHash       string    `json:"-" gorm:"not null"`
	Role               Role      `json:"role" gorm:"type:text;not null;default:'investor'"`
	PasswordMustChange bool      `json:"password_must_change" gorm:"not null"`
	LockStatus         LockState `json:"-" gorm:"embedded;embeddedPrefix:lock_"`
	// Version is bumped on every write of the authentication fields and guards
	// them with compare-and-swap.
	Version   int64     `json:"-" gorm:"not null;default:0"`
	CreatedAt time.Time `json:"created_at" gorm:"default:now()"`
	UpdatedAt time.Time `json:"updated_at" gorm:"default:now()"`
}

// TableName specifies the database table name for the User model
func (u *User) TableName() string {
	return "application.user"
}
