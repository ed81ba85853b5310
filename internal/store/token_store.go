package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/calmid/go-grant/internal/oauth"
	"github.com/calmid/go-grant/internal/token"
)

func NewTokenStore(db *sql.DB) *TokenStore {
	return &TokenStore{
		db,
	}
}

type TokenStore struct {
	db *sql.DB
}

const tokenColumns = "id, kind, account_id, created_at, expires_at, hash, salt, parent_id, revoked, scopes, client_id, nonce, redirect_uri, auth_time, fingerprint, continue_url, membership_id"

func (store *TokenStore) GetToken(ctx context.Context, id string) (*token.Token, error) {
	row := store.db.QueryRowContext(ctx, "SELECT "+tokenColumns+" FROM tbl_token WHERE id = ? LIMIT 1;", id)

	t, err := scanToken(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, token.ErrTokenNotFound
		}
		return nil, err
	}

	return t, nil
}

func (store *TokenStore) RegisterToken(ctx context.Context, t *token.Token) (bool, error) {
	_, err := store.db.ExecContext(ctx,
		"INSERT INTO tbl_token ("+tokenColumns+") VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?);",
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
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, err
	}

	return true, nil
}

func (store *TokenStore) RevokeToken(ctx context.Context, id string) (bool, error) {
	result, err := store.db.ExecContext(ctx, "UPDATE tbl_token SET revoked = 1 WHERE id = ? AND revoked = 0;", id)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected == 1, nil
}

func (store *TokenStore) RenewToken(ctx context.Context, id string, expiresAt time.Time) (bool, error) {
	result, err := store.db.ExecContext(ctx,
		"UPDATE tbl_token SET expires_at = ? WHERE id = ? AND revoked = 0;",
		expiresAt.UnixMilli(), id,
	)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected == 1, nil
}

func (store *TokenStore) ReAuthSidToken(ctx context.Context, id string, authTime, expiresAt time.Time) (bool, error) {
	result, err := store.db.ExecContext(ctx,
		"UPDATE tbl_token SET auth_time = ?, expires_at = ? WHERE id = ? AND kind = ? AND revoked = 0;",
		authTime.UnixMilli(), expiresAt.UnixMilli(), id, token.KindSidToken,
	)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected == 1, nil
}

func (store *TokenStore) RevokeForAccountAndKind(ctx context.Context, accountID string, kind token.Kind) error {
	_, err := store.db.ExecContext(ctx,
		"UPDATE tbl_token SET revoked = 1 WHERE account_id = ? AND kind = ?;",
		accountID, kind,
	)
	return err
}

func (store *TokenStore) ListByParent(ctx context.Context, parentID string) ([]*token.Token, error) {
	rows, err := store.db.QueryContext(ctx, "SELECT "+tokenColumns+" FROM tbl_token WHERE parent_id = ?;", parentID)
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanToken(row rowScanner) (*token.Token, error) {
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
