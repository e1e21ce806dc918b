package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/99minutos/accounts-service/internal/api/middleware"
	"github.com/99minutos/accounts-service/internal/core/domain"
)

// currentUser returns the user attached by the session guard. A missing
// user means the route was registered without the guard; reject with 401
// rather than act on behalf of nobody.
func currentUser(c echo.Context) (*domain.User, error) {
	user, ok := middleware.UserFromContext(c.Request().Context())
	if !ok {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, MsgUnauthorized)
	}
	return user, nil
}

// methodNotAllowed renders the login/signup style 405 body.
func methodNotAllowed(c echo.Context) error {
	return c.JSON(http.StatusMethodNotAllowed, errorResponse{
		Error: "Method " + c.Request().Method + " not allowed",
	})
}
