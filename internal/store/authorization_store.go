package store

import (
	"context"
	"database/sql"
	"time"
)

func NewAuthorizationStore(db *sql.DB) *AuthorizationStore {
	return &AuthorizationStore{
		db,
	}
}

// AuthorizationStore records which scopes an account has granted to a
// client. Grants accumulate across consent rounds; revoking a grant
// deletes the rows.
type AuthorizationStore struct {
	db *sql.DB
}

func (store *AuthorizationStore) AuthorizedScopes(ctx context.Context, accountID, clientID string) ([]string, error) {
	rows, err := store.db.QueryContext(ctx,
		"SELECT scope_id FROM tbl_authorized_scope WHERE account_id = ? AND client_id = ?;",
		accountID, clientID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scopeIDs []string
	for rows.Next() {
		var scopeID string
		if err := rows.Scan(&scopeID); err != nil {
			return nil, err
		}
		scopeIDs = append(scopeIDs, scopeID)
	}

	return scopeIDs, rows.Err()
}

func (store *AuthorizationStore) Authorize(ctx context.Context, accountID, clientID string, scopeIDs []string, grantedAt time.Time) error {
	transaction, err := store.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer transaction.Rollback()

	for _, scopeID := range scopeIDs {
		if _, err := transaction.ExecContext(ctx,
			"INSERT INTO tbl_authorized_scope (account_id, client_id, scope_id, granted_at) VALUES (?,?,?,?) ON CONFLICT DO NOTHING;",
			accountID, clientID, scopeID, grantedAt.UnixMilli(),
		); err != nil {
			return err
		}
	}

	return transaction.Commit()
}

func (store *AuthorizationStore) Revoke(ctx context.Context, accountID, clientID string) error {
	_, err := store.db.ExecContext(ctx,
		"DELETE FROM tbl_authorized_scope WHERE account_id = ? AND client_id = ?;",
		accountID, clientID,
	)
	return err
}
