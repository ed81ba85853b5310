package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/calmid/go-grant/internal/model"
)

var ErrJwksNotFound = errors.New("jwks store: key set not found")

func NewJwksStore(db *sql.DB) *JwksStore {
	return &JwksStore{
		db,
	}
}

type JwksStore struct {
	db *sql.DB
}

func (store *JwksStore) Create(ctx context.Context, jwks model.Jwks) error {
	_, err := store.db.ExecContext(ctx,
		"INSERT INTO tbl_jwks (id, public_key, private_key, created_at) VALUES (?,?,?,?);",
		jwks.ID, jwks.PublicKey, jwks.PrivateKey, jwks.CreatedAt.UnixMilli(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}

	return nil
}

// FirstActive returns the newest key pair; ID tokens are signed with it.
func (store *JwksStore) FirstActive(ctx context.Context) (*model.Jwks, error) {
	row := store.db.QueryRowContext(ctx,
		"SELECT id, public_key, private_key, created_at FROM tbl_jwks ORDER BY created_at DESC LIMIT 1;")
	return scanJwks(row)
}

func (store *JwksStore) GetByID(ctx context.Context, id string) (*model.Jwks, error) {
	row := store.db.QueryRowContext(ctx,
		"SELECT id, public_key, private_key, created_at FROM tbl_jwks WHERE id = ? LIMIT 1;", id)
	return scanJwks(row)
}

func (store *JwksStore) All(ctx context.Context) ([]*model.Jwks, error) {
	rows, err := store.db.QueryContext(ctx,
		"SELECT id, public_key, private_key, created_at FROM tbl_jwks ORDER BY created_at DESC;")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sets []*model.Jwks
	for rows.Next() {
		var jwks model.Jwks
		var createdAt int64
		if err := rows.Scan(&jwks.ID, &jwks.PublicKey, &jwks.PrivateKey, &createdAt); err != nil {
			return nil, err
		}
		jwks.CreatedAt = time.UnixMilli(createdAt).UTC()
		sets = append(sets, &jwks)
	}

	return sets, rows.Err()
}

func scanJwks(row *sql.Row) (*model.Jwks, error) {
	var jwks model.Jwks
	var createdAt int64

	if err := row.Scan(&jwks.ID, &jwks.PublicKey, &jwks.PrivateKey, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrJwksNotFound
		}
		return nil, err
	}

	jwks.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &jwks, nil
}
