package handler

import (
	"errors"
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

// CookieConfig controls the auth cookie set by signin.
type CookieConfig struct {
	Secure bool
}

type AuthHandler struct {
	authService ports.AuthService
	cookie      CookieConfig
	log         zerolog.Logger
}

func NewAuthHandler(authService ports.AuthService, cookie CookieConfig, log zerolog.Logger) *AuthHandler {
	return &AuthHandler{authService: authService, cookie: cookie, log: log}
}

// errorResponse is the login/signup error body.
type errorResponse struct {
	Error string `json:"error"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

type signupResponse struct {
	User  *domain.User `json:"user"`
	Token string       `json:"token"`
}

type signinData struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Login authenticates against the stored hash and returns a bearer token.
//
// @Summary      Login
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      loginRequest  true  "Login credentials"
// @Success      200   {object}  tokenResponse
// @Failure      401   {object}  errorResponse
// @Failure      405   {object}  errorResponse
// @Router       /api/login [post]
func (h *AuthHandler) Login(c echo.Context) error {
	if c.Request().Method != http.MethodPost {
		return methodNotAllowed(c)
	}
	defer observe("login", time.Now())

	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: MsgInvalidPayload})
	}

	token, err := h.authService.Login(c.Request().Context(), ports.CredentialsInput{
		Email:    req.Email,
		Password: req.Password,
		RemoteIP: c.RealIP(),
	})
	count("login", err)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: MsgInvalidCredentials})
		}
		return h.internal(c, "login", err)
	}

	return c.JSON(http.StatusOK, tokenResponse{Token: token})
}

// Signup registers a new account and returns it with a bearer token.
//
// @Summary      Register a new user
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      signupRequest  true  "User registration details"
// @Success      201   {object}  signupResponse
// @Failure      400   {object}  errorResponse
// @Failure      405   {object}  errorResponse
// @Failure      500   {object}  errorResponse
// @Router       /api/signup [post]
func (h *AuthHandler) Signup(c echo.Context) error {
	if c.Request().Method != http.MethodPost {
		return methodNotAllowed(c)
	}
	defer observe("signup", time.Now())

	var req signupRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: MsgInvalidPayload})
	}

	res, err := h.authService.Signup(c.Request().Context(), ports.SignupInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		RemoteIP: c.RealIP(),
	})
	count("signup", err)
	if err != nil {
		status, msg, known := StatusFor(err)
		if !known {
			return h.internal(c, "signup", err)
		}
		return c.JSON(status, errorResponse{Error: msg})
	}

	return c.JSON(http.StatusCreated, signupResponse{User: res.User, Token: res.Token})
}

// Signin verifies credentials with the identity provider, sets the auth
// cookie and returns the profile in an envelope.
//
// @Summary      Sign in (provider-first)
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      loginRequest  true  "Sign-in credentials"
// @Success      200   {object}  response.Envelope[signinData]
// @Failure      401   {object}  response.Envelope[signinData]
// @Failure      405   {object}  response.Envelope[signinData]
// @Router       /api/signin [post]
func (h *AuthHandler) Signin(c echo.Context) error {
	if c.Request().Method != http.MethodPost {
		return c.JSON(http.StatusMethodNotAllowed, response.Convert[signinData](nil, MsgInvalidMethod))
	}
	defer observe("signin", time.Now())

	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusUnauthorized, response.Convert[signinData](nil, MsgInvalidPayload))
	}

	res, err := h.authService.Signin(c.Request().Context(), ports.CredentialsInput{
		Email:    req.Email,
		Password: req.Password,
		RemoteIP: c.RealIP(),
	})
	count("signin", err)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, response.Convert[signinData](nil, h.signinMessage(c, err)))
	}

	SetAuthCookie(c, res.Session, h.cookie)
	return c.JSON(http.StatusOK, response.Success(signinData{
		ID:    res.User.ID,
		Email: res.User.Email,
		Name:  res.User.Name,
	}))
}

// signinMessage never forwards collaborator error text: validation errors
// keep their field message, everything else reads as a credential failure.
func (h *AuthHandler) signinMessage(c echo.Context, err error) string {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		return ve.Message
	case errors.Is(err, domain.ErrInvalidCredentials), errors.Is(err, domain.ErrUserNotFound):
		return MsgInvalidCredentials
	}
	h.log.Error().Err(err).
		Str("method", c.Request().Method).
		Str("path", c.Path()).
		Msg("signin failed")
	return MsgInvalidCredentials
}

func (h *AuthHandler) internal(c echo.Context, op string, err error) error {
	h.log.Error().Err(err).
		Str("operation", op).
		Str("path", c.Path()).
		Msg("auth operation failed")
	return c.JSON(http.StatusInternalServerError, errorResponse{Error: MsgInternal})
}

// SetAuthCookie stores the session token in an HTTP-only cookie.
func SetAuthCookie(c echo.Context, session *domain.ProviderUser, cfg CookieConfig) {
	c.SetCookie(&http.Cookie{
		Name:     middleware.CookieName,
		Value:    session.Token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearAuthCookie expires the auth cookie.
func ClearAuthCookie(c echo.Context, cfg CookieConfig) {
	c.SetCookie(&http.Cookie{
		Name:     middleware.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func count(op string, err error) {
	metrics.AuthAttemptsTotal.WithLabelValues(op, domain.Reason(err)).Inc()
}

func observe(op string, start time.Time) {
	metrics.AuthDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
