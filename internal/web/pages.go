package web

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/99minutos/accounts-service/internal/api/handler"
	"github.com/99minutos/accounts-service/internal/api/middleware"
	"github.com/99minutos/accounts-service/internal/core/domain"
	"github.com/99minutos/accounts-service/internal/core/ports"
)

// Messages shown when a submission fails after local validation passed.
const (
	MsgLoginFailed  = "Invalid email or password."
	MsgSignupFailed = "Failed to sign up. Please try again."
)

// Pages serves the form flow. Routes are expected behind the page-redirect
// session guard.
type Pages struct {
	authService ports.AuthService
	cookie      handler.CookieConfig
	log         zerolog.Logger
}

func NewPages(authService ports.AuthService, cookie handler.CookieConfig, log zerolog.Logger) *Pages {
	return &Pages{authService: authService, cookie: cookie, log: log}
}

type loginForm struct {
	Email    string `form:"email"    validate:"required,emailaddr"`
	Password string `form:"password" validate:"required"`
}

type signupForm struct {
	Name            string `form:"name"             validate:"omitempty,max=100"`
	Email           string `form:"email"            validate:"required,emailaddr"`
	Password        string `form:"password"         validate:"required,password"`
	ConfirmPassword string `form:"confirm_password" validate:"required,eqfield=Password"`
}

type pageData struct {
	Title string
	Error string
	Name  string
	Email string
	User  *domain.User
}

func (p *Pages) ShowLogin(c echo.Context) error {
	return c.Render(http.StatusOK, PageLogin, pageData{Title: "Log in"})
}

// SubmitLogin validates the form locally, then signs in through the
// provider and stores the session cookie.
func (p *Pages) SubmitLogin(c echo.Context) error {
	var form loginForm
	if err := c.Bind(&form); err != nil {
		return c.Render(http.StatusBadRequest, PageLogin, pageData{Title: "Log in", Error: MsgLoginFailed})
	}
	form.Email = strings.TrimSpace(form.Email)
	data := pageData{Title: "Log in", Email: form.Email}

	if msg := firstError(c, &form); msg != "" {
		data.Error = msg
		return c.Render(http.StatusUnprocessableEntity, PageLogin, data)
	}

	res, err := p.authService.Signin(c.Request().Context(), ports.CredentialsInput{
		Email:    form.Email,
		Password: form.Password,
		RemoteIP: c.RealIP(),
	})
	if err != nil {
		p.logFailure(c, "login form", err)
		data.Error = MsgLoginFailed
		return c.Render(http.StatusUnauthorized, PageLogin, data)
	}

	handler.SetAuthCookie(c, res.Session, p.cookie)
	return c.Redirect(http.StatusSeeOther, "/")
}

func (p *Pages) ShowSignup(c echo.Context) error {
	return c.Render(http.StatusOK, PageSignup, pageData{Title: "Sign up"})
}

// SubmitSignup registers the account and signs the visitor in.
func (p *Pages) SubmitSignup(c echo.Context) error {
	var form signupForm
	if err := c.Bind(&form); err != nil {
		return c.Render(http.StatusBadRequest, PageSignup, pageData{Title: "Sign up", Error: MsgSignupFailed})
	}
	form.Email = strings.TrimSpace(form.Email)
	data := pageData{Title: "Sign up", Name: form.Name, Email: form.Email}

	if msg := firstError(c, &form); msg != "" {
		data.Error = msg
		return c.Render(http.StatusUnprocessableEntity, PageSignup, data)
	}

	res, err := p.authService.Signup(c.Request().Context(), ports.SignupInput{
		Name:     form.Name,
		Email:    form.Email,
		Password: form.Password,
		RemoteIP: c.RealIP(),
	})
	if err != nil {
		p.logFailure(c, "signup form", err)
		data.Error = MsgSignupFailed
		if errors.Is(err, domain.ErrDuplicateEmail) {
			data.Error = handler.MsgDuplicateEmail
		}
		return c.Render(http.StatusBadRequest, PageSignup, data)
	}

	handler.SetAuthCookie(c, res.Session, p.cookie)
	return c.Redirect(http.StatusSeeOther, "/")
}

func (p *Pages) Home(c echo.Context) error {
	user, _ := middleware.UserFromContext(c.Request().Context())
	return c.Render(http.StatusOK, PageHome, pageData{Title: "Home", User: user})
}

// Logout revokes the session and returns to the login page.
func (p *Pages) Logout(c echo.Context) error {
	ctx := c.Request().Context()
	if err := p.authService.Signout(ctx, middleware.TokenFromContext(ctx)); err != nil {
		p.logFailure(c, "logout", err)
	}
	handler.ClearAuthCookie(c, p.cookie)
	return c.Redirect(http.StatusSeeOther, "/login")
}

// firstError runs the registered validator and returns the first message.
func firstError(c echo.Context, form any) string {
	err := c.Validate(form)
	if err == nil {
		return ""
	}
	var fe handler.FieldErrors
	if errors.As(err, &fe) {
		return fe.First()
	}
	return err.Error()
}

func (p *Pages) logFailure(c echo.Context, op string, err error) {
	evt := p.log.Warn()
	if _, _, known := handler.StatusFor(err); !known {
		evt = p.log.Error()
	}
	evt.Err(err).Str("operation", op).Str("path", c.Path()).Msg("form submission failed")
}
