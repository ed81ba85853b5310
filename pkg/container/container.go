// Package container builds the object graph of the server: config,
// logger, datastores, the token engine, the signing key service and the
// HTTP server, wired once at startup.
package container

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/calmid/go-grant/internal/authn"
	"github.com/calmid/go-grant/internal/cache"
	"github.com/calmid/go-grant/internal/clock"
	"github.com/calmid/go-grant/internal/config"
	"github.com/calmid/go-grant/internal/jwks"
	"github.com/calmid/go-grant/internal/store"
	"github.com/calmid/go-grant/internal/store/postgres"
	"github.com/calmid/go-grant/internal/token"
	"github.com/calmid/go-grant/internal/web/handler"
)

type Container struct {
	Config     *config.Config
	Logger     *slog.Logger
	Database   *sql.DB
	Pool       *pgxpool.Pool
	Cache      *cache.Service
	Tokens     *token.Handler
	Jwks       *jwks.Service
	HTTPServer *http.Server
}

func New(ctx context.Context) (*Container, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration failed: %w", err)
	}

	logLevel := slog.LevelInfo
	if !cfg.Server.IsProduction() {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	database, err := store.Open(filepath.Join(cfg.Database.DataDir, "go-grant.db"))
	if err != nil {
		return nil, fmt.Errorf("opening datastore failed: %w", err)
	}
	if err := store.Migrate(ctx, database); err != nil {
		return nil, fmt.Errorf("migrating datastore failed: %w", err)
	}

	accountStore := store.NewAccountStore(database)
	clientStore := store.NewClientStore(database)
	scopeStore := store.NewScopeStore(database)
	authorizationStore := store.NewAuthorizationStore(database)
	jwksStore := store.NewJwksStore(database)

	// Tokens optionally live in Postgres; every other table stays in
	// the embedded database.
	var pool *pgxpool.Pool
	var tokenRepository token.Repository = store.NewTokenStore(database)
	if cfg.Database.URL != "" {
		pool, err = postgres.Connect(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connecting to postgres failed: %w", err)
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			return nil, fmt.Errorf("migrating postgres failed: %w", err)
		}
		tokenRepository = postgres.NewTokenStore(pool)
		logger.Info("token repository backed by postgres")
	}

	cacheService, err := cache.NewService(cfg.Redis, logger)
	if err != nil {
		return nil, fmt.Errorf("connecting to redis failed: %w", err)
	}
	limiter := cache.NewLoginLimiter(cacheService)

	systemClock := clock.System()
	tokens := token.NewHandler(tokenRepository, authn.NewHasher(), systemClock, cfg.Tokens)

	jwksService := jwks.NewService(jwksStore, cacheService, systemClock, logger)
	if err := jwksService.EnsureKey(ctx); err != nil {
		return nil, fmt.Errorf("preparing signing key failed: %w", err)
	}

	httpHandler := handler.New(cfg, logger, systemClock, database, tokens, jwksService, limiter,
		clientStore, accountStore, scopeStore, authorizationStore)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return &Container{
		Config:     cfg,
		Logger:     logger,
		Database:   database,
		Pool:       pool,
		Cache:      cacheService,
		Tokens:     tokens,
		Jwks:       jwksService,
		HTTPServer: httpServer,
	}, nil
}

func (c *Container) Close() {
	if c.Pool != nil {
		c.Pool.Close()
	}
	if c.Database != nil {
		c.Database.Close()
	}
}
