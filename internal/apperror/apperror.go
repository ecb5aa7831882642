package apperror

import (
	"errors"
	"fmt"
)

// Kind is the stable, machine-readable category of an Error. Its string form is
// what clients receive in the "error" field of a response.
type Kind string

const (
	InvalidCredentials    Kind = "invalid_credentials"
	TemporarilyLocked     Kind = "temporarily_locked"
	PermanentlyLocked     Kind = "permanently_locked"
	MustChangePassword    Kind = "must_change_password"
	PasswordReused        Kind = "password_reused"
	InvalidOrExpiredToken Kind = "invalid_or_expired_token"
	ConfigurationMissing  Kind = "configuration_missing"
	Unauthenticated       Kind = "unauthenticated"
	Forbidden             Kind = "forbidden"
	Conflict              Kind = "conflict"
	InvalidInput          Kind = "invalid_input"
	Internal              Kind = "internal"
)

// ChangePasswordURL is where clients are sent while a temporary password is still active.
const ChangePasswordURL = "/new-password"

var messages = map[Kind]string{
	InvalidCredentials:    "Incorrect email or password",
	TemporarilyLocked:     "Too many wrong tries. Your account is on a short break for security. Try again in a bit.",
	PermanentlyLocked:     "Your account is locked for security. Please reset your password to get back in.",
	MustChangePassword:    "Welcome! As this is your first login, please update your temporary password.",
	PasswordReused:        "Your new password matches your current password. Please enter a different password.",
	InvalidOrExpiredToken: "The password reset link is invalid or has expired.",
	ConfigurationMissing:  "Missing or incorrect server configuration",
	Unauthenticated:       "Access denied",
	Forbidden:             "You do not have the required authorization to perform this action",
	Conflict:              "The resource already exists",
	InvalidInput:          "Invalid input",
	Internal:              "Oops, something went wrong. Try refreshing the page or contact us if the problem persists.",
}

// Error is the single error type surfaced by the identity subsystem. Handlers
// dispatch on Kind; Err carries the underlying cause for logging only.
type Error struct {
	Kind        Kind
	Message     string
	RedirectURL string
	Err         error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports kind equality so errors.Is(err, apperror.New(apperror.Forbidden)) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New returns an Error of the given kind with its default message.
func New(kind Kind) *Error {
	return &Error{Kind: kind, Message: messages[kind]}
}

// Newf returns an Error of the given kind with a custom message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to an Error of the given kind.
func Wrap(kind Kind, err error) *Error {
	return &Error{Kind: kind, Message: messages[kind], Err: err}
}

// Redirect returns the must-change-password signal.
func Redirect() *Error {
	e := New(MustChangePassword)
	e.RedirectURL = ChangePasswordURL
	return e
}

// KindOf returns the kind of err, or Internal if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// From converts any error into an *Error. Unknown errors become Internal.
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(Internal, err)
}
