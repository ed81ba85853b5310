// Package handler wires the HTTP surface of the authorization server:
// the OAuth2/OpenID Connect endpoints, the login and consent pages, and
// the account self-service flows backed by mailed single-use tokens.
package handler

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/calmid/go-grant/internal/cache"
	"github.com/calmid/go-grant/internal/clock"
	"github.com/calmid/go-grant/internal/config"
	"github.com/calmid/go-grant/internal/jwks"
	"github.com/calmid/go-grant/internal/model"
	"github.com/calmid/go-grant/internal/token"
)

// ClientDirectory resolves registered client applications.
type ClientDirectory interface {
	GetByID(ctx context.Context, id string) (*model.Client, error)
}

// ScopeCatalog resolves the scopes known to the server.
type ScopeCatalog interface {
	GetByID(ctx context.Context, id string) (*model.Scope, error)
	ListByIDs(ctx context.Context, ids []string) ([]*model.Scope, error)
}

// AccountDirectory resolves and mutates user accounts.
type AccountDirectory interface {
	GetByID(ctx context.Context, id string) (*model.Account, error)
	GetByEmail(ctx context.Context, email string) (*model.Account, error)
	SetPassword(ctx context.Context, id string, passwordHash []byte) error
	Activate(ctx context.Context, id string) error
}

// AuthorizationRecorder remembers which scopes an account granted to a
// client across consent rounds.
type AuthorizationRecorder interface {
	AuthorizedScopes(ctx context.Context, accountID, clientID string) ([]string, error)
	Authorize(ctx context.Context, accountID, clientID string, scopeIDs []string, grantedAt time.Time) error
}

func New(
	cfg *config.Config,
	logger *slog.Logger,
	clk clock.Clock,
	database *sql.DB,
	tokens *token.Handler,
	jwksService *jwks.Service,
	limiter *cache.LoginLimiter,
	clientStore ClientDirectory,
	accountStore AccountDirectory,
	scopeStore ScopeCatalog,
	authorizationStore AuthorizationRecorder,
) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/health", Health(logger, database))

	mux.Handle("/.well-known/openid-configuration", OpenIDConfiguration(cfg))
	mux.Handle("/.well-known/jwks.json", Keys(logger, jwksService))

	mux.Handle("/oauth/authorize", sessionMiddleware(tokens,
		Authorize(cfg, logger, clk, tokens, jwksService, clientStore, scopeStore, authorizationStore)))
	mux.Handle("/oauth/authorize/approve", sessionMiddleware(tokens,
		Approve(cfg, logger, clk, tokens, jwksService, clientStore, scopeStore, authorizationStore)))
	mux.Handle("/oauth/token", Token(cfg, logger, tokens, jwksService, clientStore))

	mux.Handle("/login", sessionMiddleware(tokens,
		Login(cfg, logger, tokens, limiter, accountStore)))
	mux.Handle("/logout", sessionMiddleware(tokens,
		Logout(cfg, logger, tokens)))

	mux.Handle("/password/forgot", PasswordForgot(logger, tokens, accountStore))
	mux.Handle("/password/reset", PasswordReset(logger, tokens, accountStore))
	mux.Handle("/activate", Activate(logger, tokens, accountStore))

	var handler http.Handler = mux
	handler = logRoutes(logger, handler)
	handler = handlePanic(logger, handler)

	return handler
}
