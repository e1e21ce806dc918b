package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/99minutos/accounts-service/internal/core/domain"
)

type stubResolver struct {
	users map[string]*domain.User
	err   error
	calls int
}

func (s *stubResolver) ResolveSession(_ context.Context, token string) (*domain.User, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if u, ok := s.users[token]; ok {
		return u, nil
	}
	return nil, domain.ErrUnauthorized
}

func newResolver() *stubResolver {
	return &stubResolver{users: map[string]*domain.User{
		"good": {ID: "uid-1", Email: "a@b.com"},
	}}
}

func TestSessionGuard_API_MissingToken(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	resolver := newResolver()
	calls := 0
	handler := SessionGuard(resolver, GuardConfig{Mode: ModeAPI}, zerolog.Nop())(func(c echo.Context) error {
		calls++
		return c.NoContent(http.StatusOK)
	})

	if err := handler(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if calls != 0 {
		t.Fatalf("wrapped handler invoked %d times", calls)
	}
	if resolver.calls != 0 {
		t.Fatalf("resolver must not be called without a token")
	}
}

func TestSessionGuard_API_UnresolvableToken(t *testing.T) {
	cases := map[string]*stubResolver{
		"unknown token":   newResolver(),
		"backend failure": {err: errors.New("redis down")},
	}
	for name, resolver := range cases {
		t.Run(name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
			req.Header.Set(echo.HeaderAuthorization, "Bearer nope")
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			calls := 0
			handler := SessionGuard(resolver, GuardConfig{Mode: ModeAPI}, zerolog.Nop())(func(c echo.Context) error {
				calls++
				return nil
			})
			if err := handler(c); err != nil {
				e.HTTPErrorHandler(err, c)
			}

			if rec.Code != http.StatusUnauthorized || calls != 0 {
				t.Fatalf("expected 401 without calling next, got %d (calls=%d)", rec.Code, calls)
			}
		})
	}
}

func TestSessionGuard_API_AttachesUser(t *testing.T) {
	for _, source := range []string{"header", "cookie"} {
		t.Run(source, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
			if source == "header" {
				req.Header.Set(echo.HeaderAuthorization, "bearer good")
			} else {
				req.AddCookie(&http.Cookie{Name: CookieName, Value: "good"})
			}
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			called := false
			handler := SessionGuard(newResolver(), GuardConfig{Mode: ModeAPI}, zerolog.Nop())(func(c echo.Context) error {
				called = true
				user, ok := UserFromContext(c.Request().Context())
				if !ok || user.ID != "uid-1" {
					t.Fatalf("user not attached to request context")
				}
				if c.Get("user").(*domain.User).ID != "uid-1" {
					t.Fatalf("user not attached to echo context")
				}
				if TokenFromContext(c.Request().Context()) != "good" {
					t.Fatalf("token not attached")
				}
				return c.NoContent(http.StatusOK)
			})

			if err := handler(c); err != nil {
				t.Fatalf("handler error: %v", err)
			}
			if !called || rec.Code != http.StatusOK {
				t.Fatalf("expected next called with 200, got called=%v code=%d", called, rec.Code)
			}
		})
	}
}

func TestSessionGuard_PageRedirect(t *testing.T) {
	cfg := GuardConfig{
		Mode:           ModePageRedirect,
		LoginPath:      "/login",
		HomePath:       "/",
		AnonymousPaths: []string{"/login", "/signup"},
	}

	cases := []struct {
		name     string
		path     string
		token    string
		wantCode int
		wantLoc  string
		wantNext bool
	}{
		{"anonymous on home", "/", "", http.StatusFound, "/login", false},
		{"signed in on home", "/", "good", http.StatusOK, "", true},
		{"signed in on login", "/login", "good", http.StatusFound, "/", false},
		{"signed in on signup", "/signup", "good", http.StatusFound, "/", false},
		{"anonymous on login", "/login", "", http.StatusOK, "", true},
		{"stale cookie on login", "/login", "expired", http.StatusOK, "", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.token != "" {
				req.AddCookie(&http.Cookie{Name: CookieName, Value: tc.token})
			}
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			called := false
			handler := SessionGuard(newResolver(), cfg, zerolog.Nop())(func(c echo.Context) error {
				called = true
				return c.NoContent(http.StatusOK)
			})
			if err := handler(c); err != nil {
				t.Fatalf("handler error: %v", err)
			}

			if rec.Code != tc.wantCode || called != tc.wantNext {
				t.Fatalf("got code=%d next=%v, want code=%d next=%v", rec.Code, called, tc.wantCode, tc.wantNext)
			}
			if loc := rec.Header().Get(echo.HeaderLocation); loc != tc.wantLoc {
				t.Fatalf("got Location %q, want %q", loc, tc.wantLoc)
			}
		})
	}
}

func TestExtractToken_MalformedHeaderFallsBackToCookie(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(echo.HeaderAuthorization, "Token abc")
	if got := ExtractToken(req); got != "" {
		t.Fatalf("expected no token, got %q", got)
	}
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "from-cookie"})
	if got := ExtractToken(req); got != "from-cookie" {
		t.Fatalf("expected cookie token, got %q", got)
	}
}
