package auth

import (
	"slices"

	"mioym/internal/apperror"
	"mioym/internal/database"
)

// RequireAuthenticated admits a signed-in account that has no pending
// password change. An account that still has to change its temporary
// password gets the redirect signal instead.
func RequireAuthenticated(u *database.User) error {
	if u == nil {
		return apperror.New(apperror.Unauthenticated)
	}
	if u.PasswordMustChange {
		return apperror.Redirect()
	}
	return nil
}

// RequireForcedChangeContext admits only a signed-in account that still has
// to change its temporary password.
func RequireForcedChangeContext(u *database.User) error {
	if u == nil {
		return apperror.New(apperror.Unauthenticated)
	}
	if !u.PasswordMustChange {
		return apperror.New(apperror.Forbidden)
	}
	return nil
}

// RequireRole checks the role only; lock and change state are not consulted.
func RequireRole(u *database.User, roles ...database.Role) error {
	if u == nil {
		return apperror.New(apperror.Unauthenticated)
	}
	if !slices.Contains(roles, u.Role) {
		return apperror.New(apperror.Forbidden)
	}
	return nil
}
