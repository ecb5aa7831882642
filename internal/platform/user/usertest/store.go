// Package usertest provides an in-memory user.Store for tests.
package usertest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"mioym/internal/database"
	"mioym/internal/platform/user"
)

type Store struct {
	mu    sync.Mutex
	users map[uuid.UUID]database.User

	// BeforeSwap, when set, runs inside CompareAndSwap before the version
	// check. Tests use it to simulate a concurrent writer.
	BeforeSwap func(s *Store, id uuid.UUID)
	// Err, when set, is returned by every call.
	Err error

	Swaps int
}

var _ user.Store = (*Store)(nil)

func New() *Store {
	return &Store{users: make(map[uuid.UUID]database.User)}
}

// Put stores a copy of u as-is, assigning an id if it has none.
func (s *Store) Put(u *database.User) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	u.Email = user.NormalizeEmail(u.Email)
	s.users[u.ID] = *u
}

// Get returns a copy of the stored record, or nil.
func (s *Store) Get(id uuid.UUID) *database.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil
	}
	return &u
}

// Bump increments the stored version of id without other changes.
func (s *Store) Bump(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.users[id]
	u.Version++
	s.users[id] = u
}

func (s *Store) GetUserByID(_ context.Context, id uuid.UUID) (*database.User, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	if u := s.Get(id); u != nil {
		return u, nil
	}
	return nil, user.ErrNotFound
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*database.User, error) {
	if s.Err != nil {
		return nil, s.Err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	email = user.NormalizeEmail(email)
	for _, u := range s.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, user.ErrNotFound
}

func (s *Store) Create(_ context.Context, u *database.User) error {
	if s.Err != nil {
		return s.Err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u.Email = user.NormalizeEmail(u.Email)
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return user.ErrDuplicateEmail
		}
	}

	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	now := time.Now()
	u.CreatedAt, u.UpdatedAt = now, now
	s.users[u.ID] = *u
	return nil
}

func (s *Store) CompareAndSwap(_ context.Context, u *database.User, version int64) error {
	if s.Err != nil {
		return s.Err
	}
	if s.BeforeSwap != nil {
		s.BeforeSwap(s, u.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.users[u.ID]
	if !ok || stored.Version != version {
		return user.ErrVersionConflict
	}

	stored.PasswordHash = u.PasswordHash
	stored.PasswordMustChange = u.PasswordMustChange
	stored.LockStatus = u.LockStatus
	stored.Version = version + 1
	stored.UpdatedAt = time.Now()
	s.users[u.ID] = stored
	s.Swaps++

	u.Version = stored.Version
	u.UpdatedAt = stored.UpdatedAt
	return nil
}
