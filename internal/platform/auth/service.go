package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mioym/internal/apperror"
	"mioym/internal/config"
	"mioym/internal/database"
	"mioym/internal/mail"
	"mioym/internal/platform/lockout"
	"mioym/internal/platform/password"
	"mioym/internal/platform/token"
	"mioym/internal/platform/user"
)

// Rounds of reload-and-retry after a version conflict before giving up.
const maxSwapRounds = 3

// Service verifies credentials and runs the password lifecycle of an account.
type Service struct {
	users  user.Store
	hasher password.Hasher
	policy lockout.Policy
	tokens *token.Service
	mailer mail.Mailer
	log    *zap.Logger
	now    func() time.Time

	decoyOnce sync.Once
	decoyHash string

	baseURL         string
	mailFrom        string
	welcomeTemplate string
	resetTemplate   string
}

func NewService(cfg *config.Config, users user.Store, mailer mail.Mailer, log *zap.Logger) *Service {
	return &Service{
		users:  users,
		hasher: password.NewHasher(cfg.BcryptCost),
		policy: lockout.NewPolicy(cfg.TemporaryLockAttempts, cfg.PermanentLockAttempts, cfg.TemporaryLockDuration()),
		tokens: token.NewService(cfg.JWTSecret, cfg.ResetTokenTTL),
		mailer: mailer,
		log:    log,
		now:    time.Now,

		baseURL:         cfg.BaseURL,
		mailFrom:        cfg.MailFrom,
		welcomeTemplate: cfg.MailWelcomeTemplate,
		resetTemplate:   cfg.MailResetTemplate,
	}
}

// WithClock replaces the time source of the service and its token issuer.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	s.tokens.WithClock(now)
	return s
}

func (s *Service) Policy() lockout.Policy {
	return s.policy
}

func (s *Service) Tokens() *token.Service {
	return s.tokens
}

// decoy returns a hash of the configured cost that no secret is expected to
// match. Unknown emails are verified against it so they cost as much as a
// wrong password.
func (s *Service) decoy() string {
	s.decoyOnce.Do(func() {
		hash, err := s.hasher.Hash(uuid.NewString())
		if err != nil {
			s.log.Error("failed to hash decoy password", zap.Error(err))
			return
		}
		s.decoyHash = hash
	})
	return s.decoyHash
}

// mutate runs apply against u and persists the result with compare-and-swap
// when apply asks for a write. On a version conflict the record is reloaded
// and apply runs again on the fresh copy. The error returned by apply is the
// outcome of the operation and is returned once the write has landed.
func (s *Service) mutate(ctx context.Context, u *database.User, apply func(u *database.User) (bool, error)) (*database.User, error) {
	for round := 1; ; round++ {
		version := u.Version
		write, outcome := apply(u)
		if !write {
			return u, outcome
		}

		err := s.users.CompareAndSwap(ctx, u, version)
		if err == nil {
			return u, outcome
		}
		if !errors.Is(err, user.ErrVersionConflict) {
			return nil, apperror.Wrap(apperror.Internal, err)
		}
		if round == maxSwapRounds {
			return nil, &apperror.Error{
				Kind:    apperror.Conflict,
				Message: "Your account was updated at the same time by another request. Please try again.",
				Err:     err,
			}
		}

		s.log.Debug("version conflict, reloading user",
			zap.String("user_id", u.ID.String()),
			zap.Int("round", round),
		)

		u, err = s.users.GetUserByID(ctx, u.ID)
		if err != nil {
			return nil, apperror.Wrap(apperror.Internal, err)
		}
	}
}
