package config

import (
	"strings"
	"unicode"

	"github.com/go-playground/validator"
)

// Validate is shared by the config loader and the request handlers.
var Validate = newValidator()

const (
	passwordMinLength = 8
	passwordMaxLength = 30
	passwordForbidden = "<>{}"
)

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterValidation("password", validatePassword)
	return v
}

// IsValidPassword applies the password policy: 8 to 30 characters with at least
// one lowercase letter, one uppercase letter and one digit, and none of < > { }.
func IsValidPassword(s string) bool {
	if n := len([]rune(s)); n < passwordMinLength || n > passwordMaxLength {
		return false
	}
	if strings.ContainsAny(s, passwordForbidden) {
		return false
	}

	var lower, upper, digit bool
	for _, r := range s {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return lower && upper && digit
}

func validatePassword(fl validator.FieldLevel) bool {
	return IsValidPassword(fl.Field().String())
}
