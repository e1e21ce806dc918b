package middleware

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/99minutos/accounts-service/internal/api/metrics"
	"github.com/99minutos/accounts-service/internal/core/domain"
)

// CookieName is the cookie the signin flow stores the bearer token in.
const CookieName = "authToken"

const (
	ctxKeyUser  = "user"
	ctxKeyToken = "token"
)

type contextKey string

var (
	userContextKey  = contextKey("user")
	tokenContextKey = contextKey("token")
)

// SessionResolver maps a bearer token to its user.
type SessionResolver interface {
	ResolveSession(ctx context.Context, token string) (*domain.User, error)
}

// GuardMode selects how the guard treats unauthenticated requests.
type GuardMode int

const (
	// ModeAPI answers 401 and never calls the wrapped handler.
	ModeAPI GuardMode = iota
	// ModePageRedirect sends anonymous visitors to LoginPath and signed-in
	// visitors of AnonymousPaths to HomePath.
	ModePageRedirect
)

// GuardConfig configures SessionGuard. LoginPath, HomePath and
// AnonymousPaths are only read in ModePageRedirect.
type GuardConfig struct {
	Mode           GuardMode
	LoginPath      string
	HomePath       string
	AnonymousPaths []string
}

// SessionGuard resolves the bearer token of each request and attaches the
// user to both the echo context and the request context.
func SessionGuard(resolver SessionResolver, cfg GuardConfig, log zerolog.Logger) echo.MiddlewareFunc {
	if cfg.Mode == ModePageRedirect {
		if cfg.LoginPath == "" {
			cfg.LoginPath = "/login"
		}
		if cfg.HomePath == "" {
			cfg.HomePath = "/"
		}
		if len(cfg.AnonymousPaths) == 0 {
			cfg.AnonymousPaths = []string{cfg.LoginPath}
		}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := ExtractToken(c.Request())
			user := resolve(c, resolver, token, log)

			if cfg.Mode == ModePageRedirect {
				return pageGuard(c, next, cfg, user, token)
			}

			if user == nil {
				metrics.GuardRejectionsTotal.WithLabelValues("api").Inc()
				return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
			}
			attach(c, user, token)
			return next(c)
		}
	}
}

func pageGuard(c echo.Context, next echo.HandlerFunc, cfg GuardConfig, user *domain.User, token string) error {
	path := c.Request().URL.Path
	anonymous := slices.Contains(cfg.AnonymousPaths, path)

	switch {
	case anonymous && user != nil:
		metrics.GuardRejectionsTotal.WithLabelValues("page").Inc()
		return c.Redirect(http.StatusFound, cfg.HomePath)
	case anonymous:
		return next(c)
	case user == nil:
		metrics.GuardRejectionsTotal.WithLabelValues("page").Inc()
		return c.Redirect(http.StatusFound, cfg.LoginPath)
	}

	attach(c, user, token)
	return next(c)
}

func resolve(c echo.Context, resolver SessionResolver, token string, log zerolog.Logger) *domain.User {
	if token == "" {
		return nil
	}
	user, err := resolver.ResolveSession(c.Request().Context(), token)
	if err != nil {
		if !errors.Is(err, domain.ErrUnauthorized) {
			log.Error().Err(err).
				Str("path", c.Request().URL.Path).
				Msg("session resolution failed")
		}
		return nil
	}
	return user
}

func attach(c echo.Context, user *domain.User, token string) {
	c.Set(ctxKeyUser, user)
	c.Set(ctxKeyToken, token)

	ctx := context.WithValue(c.Request().Context(), userContextKey, user)
	ctx = context.WithValue(ctx, tokenContextKey, token)
	c.SetRequest(c.Request().WithContext(ctx))
}

// ExtractToken reads the bearer token from the Authorization header, falling
// back to the auth cookie.
func ExtractToken(r *http.Request) string {
	if header := r.Header.Get(echo.HeaderAuthorization); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	if cookie, err := r.Cookie(CookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// UserFromContext returns the user attached by SessionGuard.
func UserFromContext(ctx context.Context) (*domain.User, bool) {
	user, ok := ctx.Value(userContextKey).(*domain.User)
	return user, ok && user != nil
}

// TokenFromContext returns the token the attached user was resolved from.
func TokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(tokenContextKey).(string)
	return token
}

// ContextWithUser attaches user and token outside the guard, for tests and
// internal callers.
func ContextWithUser(ctx context.Context, user *domain.User, token string) context.Context {
	ctx = context.WithValue(ctx, userContextKey, user)
	return context.WithValue(ctx, tokenContextKey, token)
}
