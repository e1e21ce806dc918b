package handler

import (
	"errors"
	"net/http"

	"github.com/99minutos/accounts-service/internal/core/domain"
)

// Public messages. Credential failures share one text so responses never
// reveal whether an email is registered.
const (
	MsgInvalidCredentials = "Invalid email or password"
	MsgDuplicateEmail     = "Email is already in use"
	MsgUnauthorized       = "Unauthorized"
	MsgUserNotFound       = "User not found"
	MsgInvalidPayload     = "invalid payload"
	MsgInternal           = "internal server error"
	MsgInvalidMethod      = "Invalid request method"
)

// StatusFor maps a domain error to its HTTP status and client-safe message.
// known is false for errors outside the taxonomy; their text must not reach
// the client.
func StatusFor(err error) (status int, message string, known bool) {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, ve.Message, true
	case errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized, MsgInvalidCredentials, true
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, MsgUnauthorized, true
	case errors.Is(err, domain.ErrDuplicateEmail):
		return http.StatusBadRequest, MsgDuplicateEmail, true
	case errors.Is(err, domain.ErrUserNotFound):
		return http.StatusNotFound, MsgUserNotFound, true
	}
	return http.StatusInternalServerError, MsgInternal, false
}
