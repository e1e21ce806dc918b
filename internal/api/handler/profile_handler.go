package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/99minutos/accounts-service/internal/api/metrics"
	"github.com/99minutos/accounts-service/internal/api/middleware"
	"github.com/99minutos/accounts-service/internal/api/response"
	"github.com/99minutos/accounts-service/internal/core/domain"
	"github.com/99minutos/accounts-service/internal/core/ports"
)

// keepAliveInterval spaces SSE comment frames so idle proxies keep the
// stream open.
const keepAliveInterval = 25 * time.Second

// ProfileHandler serves the authenticated /api endpoints. Every route is
// expected behind the API-mode session guard.
type ProfileHandler struct {
	authService ports.AuthService
	cookie      CookieConfig
	log         zerolog.Logger
}

func NewProfileHandler(authService ports.AuthService, cookie CookieConfig, log zerolog.Logger) *ProfileHandler {
	return &ProfileHandler{authService: authService, cookie: cookie, log: log}
}

type updateProfileRequest struct {
	Name  *string `json:"name"  validate:"omitempty,max=100"`
	Email *string `json:"email" validate:"omitempty,emailaddr"`
}

// Signout revokes the presented session and clears the auth cookie.
//
// @Summary      Sign out
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Envelope[struct{}]
// @Failure      401  {object}  errorResponse
// @Router       /api/signout [post]
func (h *ProfileHandler) Signout(c echo.Context) error {
	token := middleware.TokenFromContext(c.Request().Context())
	err := h.authService.Signout(c.Request().Context(), token)
	count("signout", err)
	if err != nil {
		return err
	}
	ClearAuthCookie(c, h.cookie)
	return c.JSON(http.StatusOK, response.Convert[struct{}](nil, ""))
}

// Me returns the profile of the signed-in user.
//
// @Summary      Current user
// @Tags         profile
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Envelope[domain.User]
// @Failure      401  {object}  errorResponse
// @Router       /api/me [get]
func (h *ProfileHandler) Me(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, response.Success(*user))
}

// Update changes the name and/or email of the signed-in user.
//
// @Summary      Update profile
// @Tags         profile
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      updateProfileRequest  true  "Fields to change"
// @Success      200   {object}  response.Envelope[domain.User]
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Router       /api/me [patch]
func (h *ProfileHandler) Update(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}

	var req updateProfileRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, MsgInvalidPayload)
	}
	if err := c.Validate(&req); err != nil {
		var fe FieldErrors
		if errors.As(err, &fe) {
			return echo.NewHTTPError(http.StatusBadRequest, fe.First())
		}
		return err
	}

	updated, err := h.authService.UpdateProfile(c.Request().Context(), user, domain.UserUpdate{
		Name:  req.Name,
		Email: req.Email,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, response.Success(*updated))
}

// Delete removes the profile and identity of the signed-in user.
//
// @Summary      Delete account
// @Tags         profile
// @Security     BearerAuth
// @Success      204
// @Failure      401  {object}  errorResponse
// @Router       /api/me [delete]
func (h *ProfileHandler) Delete(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	if err := h.authService.DeleteAccount(c.Request().Context(), user); err != nil {
		return err
	}
	ClearAuthCookie(c, h.cookie)
	return c.NoContent(http.StatusNoContent)
}

// Events streams auth-state changes of the signed-in user as Server-Sent
// Events until the client disconnects.
//
// @Summary      Auth-state events
// @Tags         auth
// @Produce      text/event-stream
// @Security     BearerAuth
// @Success      200  {object}  domain.SessionEvent
// @Failure      401  {object}  errorResponse
// @Router       /api/session/events [get]
func (h *ProfileHandler) Events(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	sub, err := h.authService.WatchSession(ctx, user.ID)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	metrics.SessionStreamsActive.Inc()
	defer metrics.SessionStreamsActive.Dec()

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set(echo.HeaderConnection, "keep-alive")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := fmt.Fprint(res, ": keep-alive\n\n"); err != nil {
				return nil
			}
			res.Flush()
		case ev, ok := <-sub.Events():
			if !ok {
				return nil
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				h.log.Error().Err(err).Msg("encode session event")
				continue
			}
			if _, err := fmt.Fprintf(res, "event: %s\ndata: %s\n\n", ev.Type, payload); err != nil {
				return nil
			}
			res.Flush()
		}
	}
}
