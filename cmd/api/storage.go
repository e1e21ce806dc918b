package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/99minutos/accounts-service/internal/api/handler"
	"github.com/99minutos/accounts-service/internal/core/ports"
	"github.com/99minutos/accounts-service/internal/infrastructure/db/memory"
	mongostore "github.com/99minutos/accounts-service/internal/infrastructure/db/mongo"
	redisstore "github.com/99minutos/accounts-service/internal/infrastructure/db/redis"
	"github.com/99minutos/accounts-service/internal/pkg/config"
)

// storage groups the adapters selected by STORAGE.
type storage struct {
	users      ports.UserRepository
	identities ports.IdentityRepository
	sessions   ports.SessionStore
	notifier   ports.SessionNotifier
	audit      ports.AuditRepository
	health     map[string]handler.Pinger
	closers    []func(context.Context) error
}

func (s *storage) Close(ctx context.Context) error {
	var first error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func openStorage(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*storage, error) {
	if cfg.Storage == config.StorageMemory {
		log.Warn().Msg("using in-memory storage, data is lost on restart")
		sessions := memory.NewSessionStore()
		return &storage{
			users:      memory.NewUserRepository(),
			identities: memory.NewIdentityRepository(),
			sessions:   sessions,
			notifier:   sessions,
			audit:      memory.NewAuditRepository(),
			health:     map[string]handler.Pinger{},
		}, nil
	}

	client, db, err := mongostore.Connect(ctx, mongostore.Config{
		URI:      cfg.Mongo.URI,
		Database: cfg.Mongo.Database,
	})
	if err != nil {
		return nil, err
	}
	s := &storage{closers: []func(context.Context) error{client.Disconnect}}
	log.Info().Str("database", cfg.Mongo.Database).Msg("connected to mongodb")

	rdb, err := redisstore.Connect(ctx, redisstore.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		_ = s.Close(ctx)
		return nil, err
	}
	s.closers = append(s.closers, func(context.Context) error { return rdb.Close() })
	log.Info().Str("addr", cfg.Redis.Addr).Msg("connected to redis")

	users := mongostore.NewUserRepository(db)
	identities := mongostore.NewIdentityRepository(db)
	audit := mongostore.NewAuditRepository(db)
	if err := mongostore.EnsureIndexes(ctx, users, identities, audit); err != nil {
		_ = s.Close(ctx)
		return nil, fmt.Errorf("mongo: %w", err)
	}

	sessions := redisstore.NewSessionStore(rdb, log)
	s.users = users
	s.identities = identities
	s.sessions = sessions
	s.notifier = sessions
	s.audit = audit
	s.health = map[string]handler.Pinger{
		"mongodb": handler.PingFunc(func(ctx context.Context) error { return client.Ping(ctx, nil) }),
		"redis":   handler.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() }),
	}
	return s, nil
}
