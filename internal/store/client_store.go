package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/calmid/go-grant/internal/model"
	"github.com/calmid/go-grant/internal/oauth"
)

var ErrClientNotFound = errors.New("client store: client not found")

func NewClientStore(db *sql.DB) *ClientStore {
	return &ClientStore{
		db,
	}
}

type ClientStore struct {
	db *sql.DB
}

const clientColumns = "id, name, secret, status, confidential, redirect_uris, redirect_uri_check_off, needed_scopes, created_at, updated_at"

func (store *ClientStore) Create(ctx context.Context, client model.Client) error {
	_, err := store.db.ExecContext(ctx,
		"INSERT INTO tbl_client ("+clientColumns+") VALUES (?,?,?,?,?,?,?,?,?,?);",
		client.ID,
		client.Name,
		client.Secret,
		client.Status,
		client.Confidential,
		strings.Join(client.RedirectURIs, " "),
		client.RedirectURIValidationDisabled,
		oauth.JoinScopes(client.NeededScopeIDs),
		client.CreatedAt.UnixMilli(),
		client.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}

	return nil
}

func (store *ClientStore) GetByID(ctx context.Context, id string) (*model.Client, error) {
	row := store.db.QueryRowContext(ctx, "SELECT "+clientColumns+" FROM tbl_client WHERE id = ? LIMIT 1;", id)

	var client model.Client
	var redirectURIs, neededScopes string
	var createdAt, updatedAt int64

	if err := row.Scan(
		&client.ID,
		&client.Name,
		&client.Secret,
		&client.Status,
		&client.Confidential,
		&redirectURIs,
		&client.RedirectURIValidationDisabled,
		&neededScopes,
		&createdAt,
		&updatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrClientNotFound
		}
		return nil, err
	}

	client.RedirectURIs = strings.Fields(redirectURIs)
	client.NeededScopeIDs = oauth.SplitScopes(neededScopes)
	client.CreatedAt = time.UnixMilli(createdAt).UTC()
	client.UpdatedAt = time.UnixMilli(updatedAt).UTC()

	return &client, nil
}
