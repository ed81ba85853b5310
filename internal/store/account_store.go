package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/calmid/go-grant/internal/model"
)

var ErrAccountNotFound = errors.New("account store: account not found")

func NewAccountStore(db *sql.DB) *AccountStore {
	return &AccountStore{
		db,
	}
}

type AccountStore struct {
	db *sql.DB
}

func (store *AccountStore) Create(ctx context.Context, account model.Account) error {
	_, err := store.db.ExecContext(ctx,
		"INSERT INTO tbl_account (id, email, name, locale, password_hash, activated, created_at) VALUES (?,?,?,?,?,?,?);",
		account.ID,
		account.Email,
		account.Name,
		account.Locale,
		account.PasswordHash,
		account.Activated,
		account.CreatedAt.UnixMilli(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}

	return nil
}

func (store *AccountStore) GetByID(ctx context.Context, id string) (*model.Account, error) {
	row := store.db.QueryRowContext(ctx,
		"SELECT id, email, name, locale, password_hash, activated, created_at FROM tbl_account WHERE id = ? LIMIT 1;", id)
	return scanAccount(row)
}

func (store *AccountStore) GetByEmail(ctx context.Context, email string) (*model.Account, error) {
	row := store.db.QueryRowContext(ctx,
		"SELECT id, email, name, locale, password_hash, activated, created_at FROM tbl_account WHERE email = ? LIMIT 1;", email)
	return scanAccount(row)
}

func (store *AccountStore) SetPassword(ctx context.Context, id string, passwordHash []byte) error {
	result, err := store.db.ExecContext(ctx,
		"UPDATE tbl_account SET password_hash = ? WHERE id = ?;", passwordHash, id)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected != 1 {
		return ErrAccountNotFound
	}

	return nil
}

func (store *AccountStore) Activate(ctx context.Context, id string) error {
	result, err := store.db.ExecContext(ctx,
		"UPDATE tbl_account SET activated = 1 WHERE id = ?;", id)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected != 1 {
		return ErrAccountNotFound
	}

	return nil
}

func scanAccount(row *sql.Row) (*model.Account, error) {
	var account model.Account
	var createdAt int64

	if err := row.Scan(
		&account.ID,
		&account.Email,
		&account.Name,
		&account.Locale,
		&account.PasswordHash,
		&account.Activated,
		&createdAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}

	account.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &account, nil
}
