// Command api runs the accounts service.
//
//	@title						Accounts Service API
//	@version					1.0
//	@description				Email/password registration and session authentication.
//	@BasePath					/
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/99minutos/accounts-service/internal/api"
	"github.com/99minutos/accounts-service/internal/api/handler"
	"github.com/99minutos/accounts-service/internal/core/service"
	"github.com/99minutos/accounts-service/internal/infrastructure/identity"
	"github.com/99minutos/accounts-service/internal/infrastructure/queue"
	"github.com/99minutos/accounts-service/internal/pkg/config"
	"github.com/99minutos/accounts-service/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "accounts-service: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  !cfg.IsProduction(),
		Service: "accounts-service",
	})

	store, err := openStorage(ctx, cfg, log)
	if err != nil {
		return err
	}

	provider, err := identity.NewProvider(store.identities, store.sessions, store.notifier, identity.Config{
		JWTSecret:  cfg.JWTSecret,
		TokenTTL:   cfg.TokenTTL,
		BcryptCost: cfg.BcryptCost,
	}, log)
	if err != nil {
		_ = store.Close(context.Background())
		return err
	}

	// Audit workers outlive the signal context so buffered entries are
	// flushed after the HTTP server stops accepting requests.
	auditCtx, stopAudit := context.WithCancel(context.Background())
	dispatcher := queue.NewDispatcher(cfg.AuditWorkers, store.audit, log)
	dispatcher.Start(auditCtx)

	authService := service.NewAuthService(store.users, provider, dispatcher, log)

	e, err := api.NewRouter(api.Deps{
		AuthService: authService,
		Health:      store.health,
		Cookie:      handler.CookieConfig{Secure: cfg.CookieSecure},
		Log:         log,
	})
	if err != nil {
		stopAudit()
		_ = store.Close(context.Background())
		return err
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Str("storage", cfg.Storage).Msg("http server listening")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case runErr = <-serveErr:
		if runErr != nil {
			log.Error().Err(runErr).Msg("http server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown")
	}

	stopAudit()
	drained := make(chan struct{})
	go func() {
		dispatcher.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-shutdownCtx.Done():
		log.Warn().Msg("audit workers did not drain before timeout")
	}

	if err := store.Close(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("closing storage")
	}

	log.Info().Msg("shutdown complete")
	return runErr
}
