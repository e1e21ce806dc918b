package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "github.com/99minutos/accounts-service/docs"
	"github.com/99minutos/accounts-service/internal/api/handler"
	"github.com/99minutos/accounts-service/internal/api/middleware"
	"github.com/99minutos/accounts-service/internal/core/ports"
	"github.com/99minutos/accounts-service/internal/web"
)

// Deps are the collaborators the router wires into handlers.
type Deps struct {
	AuthService ports.AuthService
	// Health lists the dependencies /health/ready pings.
	Health map[string]handler.Pinger
	Cookie handler.CookieConfig
	// Registerer and Gatherer default to the prometheus default registry.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
	Log        zerolog.Logger
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(deps Deps) (*echo.Echo, error) {
	if deps.Registerer == nil {
		deps.Registerer = prometheus.DefaultRegisterer
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}

	renderer, err := web.NewRenderer()
	if err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.Renderer = renderer
	e.HTTPErrorHandler = NewHTTPErrorHandler(deps.Log)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(requestLogger(deps.Log))
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:  "http",
		Registerer: deps.Registerer,
	}))

	// --- Dependencies ---
	authHandler := handler.NewAuthHandler(deps.AuthService, deps.Cookie, deps.Log)
	profileHandler := handler.NewProfileHandler(deps.AuthService, deps.Cookie, deps.Log)
	pages := web.NewPages(deps.AuthService, deps.Cookie, deps.Log)
	healthHandler := handler.NewHealthHandler(deps.Health)

	apiGuard := middleware.SessionGuard(deps.AuthService, middleware.GuardConfig{Mode: middleware.ModeAPI}, deps.Log)
	pageGuard := middleware.SessionGuard(deps.AuthService, middleware.GuardConfig{
		Mode:           middleware.ModePageRedirect,
		LoginPath:      "/login",
		HomePath:       "/",
		AnonymousPaths: []string{"/login", "/signup"},
	}, deps.Log)

	// --- Auth routes: handlers answer wrong methods themselves ---
	e.Any("/api/login", authHandler.Login)
	e.Any("/api/signup", authHandler.Signup)
	e.Any("/api/signin", authHandler.Signin)

	// --- Authenticated API ---
	e.POST("/api/signout", profileHandler.Signout, apiGuard)
	e.GET("/api/me", profileHandler.Me, apiGuard)
	e.PATCH("/api/me", profileHandler.Update, apiGuard)
	e.DELETE("/api/me", profileHandler.Delete, apiGuard)
	e.GET("/api/session/events", profileHandler.Events, apiGuard)

	// --- Pages ---
	e.GET("/login", pages.ShowLogin, pageGuard)
	e.POST("/login", pages.SubmitLogin, pageGuard)
	e.GET("/signup", pages.ShowSignup, pageGuard)
	e.POST("/signup", pages.SubmitSignup, pageGuard)
	e.GET("/", pages.Home, pageGuard)
	e.POST("/logout", pages.Logout, pageGuard)

	// --- Operational endpoints (no auth required) ---
	e.GET("/health", healthHandler.Liveness)
	e.GET("/health/ready", healthHandler.Readiness)
	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: deps.Gatherer}))
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	return e, nil
}

// requestLogger writes one access log line per request through zerolog.
// Query strings are left out since they may carry tokens.
func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURIPath:   true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			evt := log.Info()
			switch {
			case v.Status >= 500:
				evt = log.Error().Err(v.Error)
			case v.Error != nil:
				evt = log.Warn().Err(v.Error)
			}
			evt.Str("method", v.Method).
				Str("path", v.URIPath).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Str("request_id", v.RequestID).
				Msg("request")
			return nil
		},
	})
}
