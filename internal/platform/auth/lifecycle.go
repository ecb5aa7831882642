package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mioym/internal/apperror"
	"mioym/internal/config"
	"mioym/internal/database"
	"mioym/internal/mail"
	"mioym/internal/platform/password"
	"mioym/internal/platform/token"
	"mioym/internal/platform/user"
)

// PasswordPolicyMessage describes the rule enforced by config.IsValidPassword.
const PasswordPolicyMessage = "Password must be 8 to 30 characters long, contain at least one lowercase letter, one uppercase letter and one digit, and must not contain < > { }"

// Registration describes a new account. Role defaults to investor and an
// empty Password means a generated temporary one.
type Registration struct {
	Email     string
	FirstName string
	LastName  string
	Telephone *string
	Role      database.Role
	Password  string
}

// Register creates an account with a temporary password and mails that
// password to the new user. A failed welcome mail does not undo the
// registration; emailSent reports whether it went out.
func (s *Service) Register(ctx context.Context, r Registration) (u *database.User, emailSent bool, err error) {
	temporary := r.Password
	if temporary == "" {
		if temporary, err = password.GenerateTemporary(); err != nil {
			return nil, false, apperror.Wrap(apperror.Internal, err)
		}
	} else if !config.IsValidPassword(temporary) {
		return nil, false, apperror.Newf(apperror.InvalidInput, PasswordPolicyMessage)
	}
	hash, err := s.hasher.Hash(temporary)
	if err != nil {
		return nil, false, apperror.Wrap(apperror.Internal, err)
	}

	role := r.Role
	if role == "" {
		role = database.RoleInvestor
	}

	u = &database.User{
		Email:              user.NormalizeEmail(r.Email),
		FirstName:          strings.TrimSpace(r.FirstName),
		LastName:           strings.TrimSpace(r.LastName),
		Telephone:          r.Telephone,
		PasswordHash:       hash,
		Role:               role,
		PasswordMustChange: true,
		LockStatus:         s.policy.Fresh(),
	}

	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, user.ErrDuplicateEmail) {
			return nil, false, apperror.Newf(apperror.Conflict, "Registration failed. A user with that email address already exists")
		}
		return nil, false, apperror.Wrap(apperror.Internal, err)
	}

	err = mail.Send(ctx, s.mailer, &mail.Email{
		Subject: "Welcome to MIOYM",
		Body: fmt.Sprintf("Hello %s,\n\nAn account has been created for you on the MIOYM investor portal.\n\nTemporary password: %s\n\nSign in at %s and choose a new password.\n",
			u.FirstName, temporary, s.baseURL),
		From:     s.mailFrom,
		To:       []string{u.Email},
		Template: s.welcomeTemplate,
		TemplateVars: map[string]any{
			"first_name":         u.FirstName,
			"last_name":          u.LastName,
			"temporary_password": temporary,
			"login_url":          s.baseURL,
		},
	})
	if err != nil {
		s.log.Error("failed to send welcome mail",
			zap.String("user_id", u.ID.String()),
			zap.Error(err),
		)
		return u, false, nil
	}

	return u, true, nil
}

// BootstrapAdmin registers r as an admin unless an account with that email
// already exists. It gives a fresh database its first account able to
// register others.
func (s *Service) BootstrapAdmin(ctx context.Context, r Registration) (u *database.User, created bool, err error) {
	existing, err := s.users.GetUserByEmail(ctx, r.Email)
	if err == nil {
		if existing.Role != database.RoleAdmin {
			s.log.Warn("bootstrap admin email belongs to a non-admin account",
				zap.String("user_id", existing.ID.String()),
				zap.String("role", string(existing.Role)),
			)
		}
		return existing, false, nil
	}
	if !errors.Is(err, user.ErrNotFound) {
		return nil, false, apperror.Wrap(apperror.Internal, err)
	}

	r.Role = database.RoleAdmin
	u, emailSent, err := s.Register(ctx, r)
	if err != nil {
		return nil, false, err
	}

	s.log.Info("bootstrap admin created",
		zap.String("user_id", u.ID.String()),
		zap.Bool("email_sent", emailSent),
	)
	return u, true, nil
}

// ForcedChange replaces the temporary password of an account that still has
// to change it. The current secret goes through the lockout policy exactly
// like a login; the lock update and the new hash land in one write.
func (s *Service) ForcedChange(ctx context.Context, id uuid.UUID, current, next string) (*database.User, error) {
	if !config.IsValidPassword(next) {
		return nil, apperror.Newf(apperror.InvalidInput, PasswordPolicyMessage)
	}

	u, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	var newHash string
	return s.mutate(ctx, u, func(u *database.User) (bool, error) {
		if !u.PasswordMustChange {
			return false, apperror.New(apperror.Forbidden)
		}

		matched := s.hasher.Verify(current, u.PasswordHash)
		lock, class := s.policy.Evaluate(u.LockStatus, matched, s.now())
		write := !lock.Equal(u.LockStatus)
		u.LockStatus = lock

		if outcome := classify(class, matched); outcome != nil {
			return write, outcome
		}
		if current == next {
			return write, apperror.New(apperror.PasswordReused)
		}

		if newHash == "" {
			var err error
			if newHash, err = s.hasher.Hash(next); err != nil {
				return false, apperror.Wrap(apperror.Internal, err)
			}
		}
		u.PasswordHash = newHash
		u.PasswordMustChange = false
		return true, nil
	})
}

// VoluntaryChange replaces the password of a signed-in account. It does not
// count towards the lockout and leaves the lock state alone.
func (s *Service) VoluntaryChange(ctx context.Context, id uuid.UUID, current, next string) (*database.User, error) {
	if !config.IsValidPassword(next) {
		return nil, apperror.Newf(apperror.InvalidInput, PasswordPolicyMessage)
	}

	u, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	var newHash string
	return s.mutate(ctx, u, func(u *database.User) (bool, error) {
		if !s.hasher.Verify(current, u.PasswordHash) {
			return false, apperror.Newf(apperror.InvalidCredentials, "Your current password is incorrect")
		}
		if current == next {
			return false, apperror.New(apperror.PasswordReused)
		}

		if newHash == "" {
			var err error
			if newHash, err = s.hasher.Hash(next); err != nil {
				return false, apperror.Wrap(apperror.Internal, err)
			}
		}
		u.PasswordHash = newHash
		return true, nil
	})
}

// RequestReset mails a reset link if the email belongs to an account. The
// caller cannot tell whether it did: unknown emails and mail failures both
// return nil.
func (s *Service) RequestReset(ctx context.Context, email string) error {
	u, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			s.log.Debug("password reset requested for unknown email")
			return nil
		}
		return apperror.Wrap(apperror.Internal, err)
	}

	tok, err := s.tokens.Issue(u.Email)
	if err != nil {
		return apperror.Wrap(apperror.Internal, err)
	}

	link := s.ResetLink(tok)
	minutes := int(s.tokens.TTL().Minutes())
	err = mail.Send(ctx, s.mailer, &mail.Email{
		Subject: "Reset your MIOYM password",
		Body: fmt.Sprintf("Hello %s,\n\nUse the link below to choose a new password. It expires in %d minutes.\n\n%s\n",
			u.FirstName, minutes, link),
		From:     s.mailFrom,
		To:       []string{u.Email},
		Template: s.resetTemplate,
		TemplateVars: map[string]any{
			"first_name":         u.FirstName,
			"reset_link":         link,
			"expires_in_minutes": minutes,
		},
	})
	if err != nil {
		s.log.Error("failed to send password reset mail",
			zap.String("user_id", u.ID.String()),
			zap.Error(err),
		)
	}
	return nil
}

// ResetLink is the client URL carrying a reset token.
func (s *Service) ResetLink(tok string) string {
	return strings.TrimSuffix(s.baseURL, "/") + "/reset-password?token=" + tok
}

// RedeemReset sets a new password for the account named by a valid reset
// token and fully unlocks it. This is the only way out of a permanent lock.
func (s *Service) RedeemReset(ctx context.Context, tok, next string) error {
	email, err := s.tokens.Verify(tok)
	if err != nil {
		if errors.Is(err, token.ErrInvalid) {
			return apperror.New(apperror.InvalidOrExpiredToken)
		}
		return apperror.Wrap(apperror.Internal, err)
	}
	if !config.IsValidPassword(next) {
		return apperror.Newf(apperror.InvalidInput, PasswordPolicyMessage)
	}

	u, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return apperror.New(apperror.InvalidOrExpiredToken)
		}
		return apperror.Wrap(apperror.Internal, err)
	}

	hash, err := s.hasher.Hash(next)
	if err != nil {
		return apperror.Wrap(apperror.Internal, err)
	}

	_, err = s.mutate(ctx, u, func(u *database.User) (bool, error) {
		u.PasswordHash = hash
		u.PasswordMustChange = false
		u.LockStatus = s.policy.Fresh()
		return true, nil
	})
	return err
}

// User returns the account with the given id.
func (s *Service) User(ctx context.Context, id uuid.UUID) (*database.User, error) {
	return s.load(ctx, id)
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (*database.User, error) {
	u, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, apperror.New(apperror.Unauthenticated)
		}
		return nil, apperror.Wrap(apperror.Internal, err)
	}
	return u, nil
}
