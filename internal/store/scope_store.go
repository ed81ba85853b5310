package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/calmid/go-grant/internal/model"
)

var ErrScopeNotFound = errors.New("scope store: scope not found")

func NewScopeStore(db *sql.DB) *ScopeStore {
	return &ScopeStore{
		db,
	}
}

type ScopeStore struct {
	db *sql.DB
}

func (store *ScopeStore) Create(ctx context.Context, scope model.Scope) error {
	_, err := store.db.ExecContext(ctx,
		"INSERT INTO tbl_scope (id, name, description) VALUES (?,?,?);",
		scope.ID, scope.Name, scope.Description,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}

	return nil
}

func (store *ScopeStore) GetByID(ctx context.Context, id string) (*model.Scope, error) {
	row := store.db.QueryRowContext(ctx,
		"SELECT id, name, description FROM tbl_scope WHERE id = ? LIMIT 1;", id)

	var scope model.Scope
	if err := row.Scan(&scope.ID, &scope.Name, &scope.Description); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrScopeNotFound
		}
		return nil, err
	}

	return &scope, nil
}

// ListByIDs returns the scopes it finds, silently skipping unknown ids,
// so the consent page never breaks on a stale grant.
func (store *ScopeStore) ListByIDs(ctx context.Context, ids []string) ([]*model.Scope, error) {
	scopes := make([]*model.Scope, 0, len(ids))
	for _, id := range ids {
		scope, err := store.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, ErrScopeNotFound) {
				continue
			}
			return nil, err
		}
		scopes = append(scopes, scope)
	}

	return scopes, nil
}
