package domain

import (
	"regexp"
	"strings"
	"unicode"
)

const (
	MinPasswordLength = 8
	MaxNameLength     = 100
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Credentials is the transient email/password pair submitted by a client.
// It is never persisted.
type Credentials struct {
	Email    string
	Password string
}

// NormalizeEmail trims and lower-cases an address before lookup or storage.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsEmail reports whether s matches the basic address shape.
func IsEmail(s string) bool {
	return emailPattern.MatchString(s)
}

// IsStrongPassword enforces the signup policy: at least MinPasswordLength
// ASCII letters or digits with one upper-case, one lower-case and one digit.
func IsStrongPassword(s string) bool {
	if len(s) < MinPasswordLength {
		return false
	}
	var upper, lower, digit bool
	for _, r := range s {
		switch {
		case r > unicode.MaxASCII:
			return false
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		default:
			return false
		}
	}
	return upper && lower && digit
}

// CheckSignUp validates credentials against the signup policy.
func (c Credentials) CheckSignUp() error {
	if err := c.checkShape(); err != nil {
		return err
	}
	if !IsStrongPassword(c.Password) {
		return NewValidationError("password",
			"Password must contain at least %d characters, including one uppercase letter, one lowercase letter, and one number", MinPasswordLength)
	}
	return nil
}

// CheckSignIn only requires a well-formed email and a non-empty password so
// that policy changes never lock out existing accounts.
func (c Credentials) CheckSignIn() error {
	return c.checkShape()
}

func (c Credentials) checkShape() error {
	if c.Email == "" || c.Password == "" {
		return NewValidationError("email", "Please provide an email and password")
	}
	if !IsEmail(c.Email) {
		return NewValidationError("email", "Invalid email address")
	}
	return nil
}
