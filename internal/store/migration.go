package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"
)

const migrationTableName = "tbl_migrations"

type migration struct {
	identifier string
	statement  string
}

// Migrate brings the schema up to date. Applied migrations are recorded
// in tbl_migrations so re-running on an existing database is a no-op.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id           TEXT PRIMARY KEY,
			performed_at INTEGER NOT NULL
		);`, migrationTableName),
	); err != nil {
		return errors.Join(errors.New("creating migration table failed"), err)
	}

	currentIdentifier, err := currentVersion(ctx, db)
	if err != nil {
		return errors.Join(errors.New("getting current migration version failed"), err)
	}

	scheduled := make([]migration, 0, len(migrations))
	for _, m := range migrations {
		if m.identifier > currentIdentifier {
			scheduled = append(scheduled, m)
		}
	}
	if len(scheduled) < 1 {
		return nil
	}

	sort.Slice(scheduled, func(i, j int) bool {
		return scheduled[i].identifier < scheduled[j].identifier
	})

	transaction, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Join(errors.New("starting migration transaction failed"), err)
	}
	defer transaction.Rollback()

	for _, m := range scheduled {
		if _, err := transaction.ExecContext(ctx, m.statement); err != nil {
			return errors.Join(fmt.Errorf("migration up failed for %s", m.identifier), err)
		}

		if _, err := transaction.ExecContext(ctx,
			fmt.Sprintf(`INSERT INTO %s (id, performed_at) VALUES (?,?);`, migrationTableName),
			m.identifier, time.Now().UTC().UnixMilli(),
		); err != nil {
			return errors.Join(fmt.Errorf("recording migration %s failed", m.identifier), err)
		}
	}

	return transaction.Commit()
}

func currentVersion(ctx context.Context, db *sql.DB) (string, error) {
	row := db.QueryRowContext(ctx, fmt.Sprintf(`SELECT id FROM %s ORDER BY id DESC LIMIT 1;`, migrationTableName))

	var identifier string
	if err := row.Scan(&identifier); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}

	return identifier, nil
}

var migrations = []migration{
	{
		identifier: "20250601000000_create_tables",
		statement: `
			CREATE TABLE tbl_account (
				id            TEXT PRIMARY KEY,
				email         TEXT NOT NULL UNIQUE,
				name          TEXT NOT NULL,
				locale        TEXT NOT NULL,
				password_hash BLOB,
				activated     INTEGER NOT NULL DEFAULT 0,
				created_at    INTEGER NOT NULL
			);

			CREATE TABLE tbl_client (
				id                        TEXT PRIMARY KEY,
				name                      TEXT NOT NULL,
				secret                    TEXT NOT NULL,
				status                    TEXT NOT NULL,
				confidential              INTEGER NOT NULL DEFAULT 1,
				redirect_uris             TEXT NOT NULL,
				redirect_uri_check_off    INTEGER NOT NULL DEFAULT 0,
				needed_scopes             TEXT NOT NULL,
				created_at                INTEGER NOT NULL,
				updated_at                INTEGER NOT NULL
			);

			CREATE TABLE tbl_scope (
				id          TEXT PRIMARY KEY,
				name        TEXT NOT NULL,
				description TEXT NOT NULL
			);

			CREATE TABLE tbl_authorized_scope (
				account_id TEXT NOT NULL,
				client_id  TEXT NOT NULL,
				scope_id   TEXT NOT NULL,
				granted_at INTEGER NOT NULL,
				PRIMARY KEY (account_id, client_id, scope_id)
			);

			CREATE TABLE tbl_token (
				id            TEXT PRIMARY KEY,
				kind          INTEGER NOT NULL,
				account_id    TEXT NOT NULL DEFAULT '',
				created_at    INTEGER NOT NULL,
				expires_at    INTEGER NOT NULL,
				hash          BLOB,
				salt          BLOB,
				parent_id     TEXT NOT NULL DEFAULT '',
				revoked       INTEGER NOT NULL DEFAULT 0,
				scopes        TEXT NOT NULL DEFAULT '',
				client_id     TEXT NOT NULL DEFAULT '',
				nonce         TEXT NOT NULL DEFAULT '',
				redirect_uri  TEXT NOT NULL DEFAULT '',
				auth_time     INTEGER NOT NULL DEFAULT 0,
				fingerprint   BLOB,
				continue_url  TEXT NOT NULL DEFAULT '',
				membership_id TEXT NOT NULL DEFAULT ''
			);

			CREATE INDEX idx_token_parent ON tbl_token (parent_id);
			CREATE INDEX idx_token_account_kind ON tbl_token (account_id, kind);

			CREATE TABLE tbl_jwks (
				id          TEXT PRIMARY KEY,
				public_key  BLOB NOT NULL,
				private_key BLOB NOT NULL,
				created_at  INTEGER NOT NULL
			);
		`,
	},
	{
		identifier: "20250601000001_seed_scopes",
		statement: `
			INSERT INTO tbl_scope (id, name, description) VALUES
				('openid', 'Identity', 'Know who you are'),
				('profile', 'Profile', 'Read your name and locale'),
				('email', 'Email', 'Read your email address'),
				('offline_access', 'Offline access', 'Keep access while you are away');
		`,
	},
}
