// Package postgres provides a pgx backed token repository for
// deployments where the token table outgrows the embedded database.
// Only tokens live here; the remaining tables stay in sqlite.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/calmid/go-grant/internal/config"
	"github.com/calmid/go-grant/internal/oauth"
	"github.com/calmid/go-grant/internal/token"
)

const uniqueViolationCode = "23505"

func Connect(ctx context.Context, cfg config.Database) (*pgxpool.Pool, error) {
	poolConfig, err := newPoolConfig(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}

// newPoolConfig parses the connection URL and applies the configured
// pool limits. The limits must be set before the pool is constructed;
// pgxpool copies its configuration on New.
func newPoolConfig(cfg config.Database) (*pgxpool.Config, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, err
	}

	poolConfig.MaxConns = cfg.MaxOpenConns
	poolConfig.MinConns = cfg.MaxIdleConns
	poolConfig.MaxConnIdleTime = cfg.ConnMaxIdleTime
	poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime

	return poolConfig, nil
}

// Migrate creates the token table. The statement is idempotent so the
// call is safe on every start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS tbl_token (
			id            TEXT PRIMARY KEY,
			kind          INTEGER NOT NULL,
			account_id    TEXT NOT NULL DEFAULT '',
			created_at    BIGINT NOT NULL,
			expires_at    BIGINT NOT NULL,
			hash          BYTEA,
			salt          BYTEA,
			parent_id     TEXT NOT NULL DEFAULT '',
			revoked       BOOLEAN NOT NULL DEFAULT FALSE,
			scopes        TEXT NOT NULL DEFAULT '',
			client_id     TEXT NOT NULL DEFAULT '',
			nonce         TEXT NOT NULL DEFAULT '',
			redirect_uri  TEXT NOT NULL DEFAULT '',
			auth_time     BIGINT NOT NULL DEFAULT 0,
			fingerprint   BYTEA,
			continue_url  TEXT NOT NULL DEFAULT '',
			membership_id TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_token_parent ON tbl_token (parent_id);
		CREATE INDEX IF NOT EXISTS idx_token_account_kind ON tbl_token (account_id, kind);
	`)
	return err
}

func NewTokenStore(pool *pgxpool.Pool) *TokenStore {
	return &TokenStore{
		pool,
	}
}

type TokenStore struct {
	pool *pgxpool.Pool
}

const tokenColumns = "id, kind, account_id, created_at, expires_at, hash, salt, parent_id, revoked, scopes, client_id, nonce, redirect_uri, auth_time, fingerprint, continue_url, membership_id"

func (store *TokenStore) GetToken(ctx context.Context, id string) (*token.Token, error) {
	row := store.pool.QueryRow(ctx, "SELECT "+tokenColumns+" FROM tbl_token WHERE id = $1;", id)

	t, err := scanToken(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, token.ErrTokenNotFound
		}
		return nil, err
	}

	return t, nil
}

func (store *TokenStore) RegisterToken(ctx context.Context, t *token.Token) (bool, error) {
	_, err := store.pool.Exec(ctx,
		"INSERT INTO tbl_token ("+tokenColumns+") VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17);",
		t.ID,
		t.Kind,
		t.AccountID,
		t.CreatedAt.UnixMilli(),
		t.ExpiresAt.UnixMilli(),
		t.Hash,
		t.Salt,
		t.ParentID,
		t.Revoked,
		oauth.JoinScopes(t.ScopeIDs),
		t.ClientID,
		t.Nonce,
		t.RedirectURI,
		unixMilliOrZero(t.AuthTime),
		t.Fingerprint,
		t.ContinueURL,
		t.MembershipID,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return false, nil
		}
		return false, err
	}

	return true, nil
}

func (store *TokenStore) RevokeToken(ctx context.Context, id string) (bool, error) {
	tag, err := store.pool.Exec(ctx,
		"UPDATE tbl_token SET revoked = TRUE WHERE id = $1 AND revoked = FALSE;", id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (store *TokenStore) RenewToken(ctx context.Context, id string, expiresAt time.Time) (bool, error) {
	tag, err := store.pool.Exec(ctx,
		"UPDATE tbl_token SET expires_at = $1 WHERE id = $2 AND revoked = FALSE;",
		expiresAt.UnixMilli(), id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (store *TokenStore) ReAuthSidToken(ctx context.Context, id string, authTime, expiresAt time.Time) (bool, error) {
	tag, err := store.pool.Exec(ctx,
		"UPDATE tbl_token SET auth_time = $1, expires_at = $2 WHERE id = $3 AND kind = $4 AND revoked = FALSE;",
		authTime.UnixMilli(), expiresAt.UnixMilli(), id, token.KindSidToken)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (store *TokenStore) RevokeForAccountAndKind(ctx context.Context, accountID string, kind token.Kind) error {
	_, err := store.pool.Exec(ctx,
		"UPDATE tbl_token SET revoked = TRUE WHERE account_id = $1 AND kind = $2;",
		accountID, kind)
	return err
}

func (store *TokenStore) ListByParent(ctx context.Context, parentID string) ([]*token.Token, error) {
	rows, err := store.pool.Query(ctx, "SELECT "+tokenColumns+" FROM tbl_token WHERE parent_id = $1;", parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var children []*token.Token
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		children = append(children, t)
	}

	return children, rows.Err()
}

func scanToken(row pgx.Row) (*token.Token, error) {
	var t token.Token
	var createdAt, expiresAt, authTime int64
	var scopes string

	if err := row.Scan(
		&t.ID,
		&t.Kind,
		&t.AccountID,
		&createdAt,
		&expiresAt,
		&t.Hash,
		&t.Salt,
		&t.ParentID,
		&t.Revoked,
		&scopes,
		&t.ClientID,
		&t.Nonce,
		&t.RedirectURI,
		&authTime,
		&t.Fingerprint,
		&t.ContinueURL,
		&t.MembershipID,
	); err != nil {
		return nil, err
	}

	t.CreatedAt = time.UnixMilli(createdAt).UTC()
	t.ExpiresAt = time.UnixMilli(expiresAt).UTC()
	if authTime != 0 {
		t.AuthTime = time.UnixMilli(authTime).UTC()
	}
	t.ScopeIDs = oauth.SplitScopes(scopes)

	return &t, nil
}

func unixMilliOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
