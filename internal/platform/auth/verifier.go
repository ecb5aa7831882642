package auth

import (
	"context"
	"errors"

	"mioym/internal/apperror"
	"mioym/internal/database"
	"mioym/internal/platform/lockout"
	"mioym/internal/platform/user"
)

// Attempt evaluates one login. It returns the account only when the account
// is open and the secret matched; every other outcome is an *apperror.Error.
// An unknown email is reported exactly like a wrong password and changes
// nothing.
func (s *Service) Attempt(ctx context.Context, email, secret string) (*database.User, error) {
	u, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			s.hasher.Verify(secret, s.decoy())
			return nil, apperror.New(apperror.InvalidCredentials)
		}
		return nil, apperror.Wrap(apperror.Internal, err)
	}

	// The hash only changes when another request replaced the password, so the
	// bcrypt comparison is repeated only then.
	var verifiedHash string
	var matched bool

	u, err = s.mutate(ctx, u, func(u *database.User) (bool, error) {
		if u.PasswordHash != verifiedHash || verifiedHash == "" {
			matched = s.hasher.Verify(secret, u.PasswordHash)
			verifiedHash = u.PasswordHash
		}

		next, class := s.policy.Evaluate(u.LockStatus, matched, s.now())
		write := !next.Equal(u.LockStatus)
		u.LockStatus = next
		return write, classify(class, matched)
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

func classify(class lockout.Classification, matched bool) error {
	switch class {
	case lockout.Unlock:
		if matched {
			return nil
		}
		return apperror.New(apperror.InvalidCredentials)
	case lockout.TemporaryLock:
		return apperror.New(apperror.TemporarilyLocked)
	case lockout.PermanentLock:
		return apperror.New(apperror.PermanentlyLocked)
	default:
		return apperror.New(apperror.InvalidCredentials)
	}
}
