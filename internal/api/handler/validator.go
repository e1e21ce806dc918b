package handler

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/99minutos/accounts-service/internal/core/domain"
)

// FieldErrors is returned by Validate. The first entry is the one forms
// display.
type FieldErrors []FieldError

// FieldError is a single human-readable validation failure.
type FieldError struct {
	Field   string
	Message string
}

func (fe FieldErrors) Error() string {
	msgs := make([]string, 0, len(fe))
	for _, e := range fe {
		msgs = append(msgs, e.Message)
	}
	return strings.Join(msgs, "; ")
}

// First returns the first message, or "".
func (fe FieldErrors) First() string {
	if len(fe) == 0 {
		return ""
	}
	return fe[0].Message
}

// echoValidator wraps go-playground/validator so Echo can call c.Validate(req).
type echoValidator struct {
	v *validator.Validate
}

// NewValidator returns an echoValidator ready to be assigned to echo.Echo.Validator.
// It registers the "password" tag enforcing the signup password policy.
func NewValidator() *echoValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(fieldLabel)
	_ = v.RegisterValidation("password", func(fl validator.FieldLevel) bool {
		return domain.IsStrongPassword(fl.Field().String())
	})
	_ = v.RegisterValidation("emailaddr", func(fl validator.FieldLevel) bool {
		return domain.IsEmail(fl.Field().String())
	})
	return &echoValidator{v: v}
}

// Validate satisfies the echo.Validator interface.
func (ev *echoValidator) Validate(i any) error {
	if err := ev.v.Struct(i); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			out := make(FieldErrors, 0, len(ve))
			for _, fe := range ve {
				out = append(out, FieldError{Field: strings.ToLower(fe.Field()), Message: fieldError(fe)})
			}
			return out
		}
		return err
	}
	return nil
}

// fieldLabel names a field after its json or form tag, so messages read
// "confirm password is required" rather than "ConfirmPassword".
func fieldLabel(f reflect.StructField) string {
	for _, key := range []string{"json", "form"} {
		name, _, _ := strings.Cut(f.Tag.Get(key), ",")
		if name == "-" {
			return ""
		}
		if name != "" {
			return strings.ReplaceAll(name, "_", " ")
		}
	}
	return strings.ToLower(f.Name)
}

// fieldError converts a single ValidationError into a human-readable message.
func fieldError(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email", "emailaddr":
		return "Invalid email address"
	case "password":
		return fmt.Sprintf("Password must contain at least %d characters, including one uppercase letter, one lowercase letter, and one number", domain.MinPasswordLength)
	case "eqfield":
		return "Passwords do not match."
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed validation (%s)", field, fe.Tag())
	}
}
