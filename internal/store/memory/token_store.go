// Package memory provides a mutex-guarded in-process token repository.
// It backs the unit tests and exercises the same atomicity contract as
// the durable stores: insert-if-absent registration and at-most-one
// winner on revocation.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/calmid/go-grant/internal/token"
)

type TokenStore struct {
	mu     sync.Mutex
	tokens map[string]*token.Token
}

func NewTokenStore() *TokenStore {
	return &TokenStore{
		tokens: make(map[string]*token.Token),
	}
}

func (s *TokenStore) GetToken(ctx context.Context, id string) (*token.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[id]
	if !ok {
		return nil, token.ErrTokenNotFound
	}
	return clone(t), nil
}

func (s *TokenStore) RegisterToken(ctx context.Context, t *token.Token) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tokens[t.ID]; exists {
		return false, nil
	}
	s.tokens[t.ID] = clone(t)
	return true, nil
}

func (s *TokenStore) RevokeToken(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[id]
	if !ok || t.Revoked {
		return false, nil
	}
	t.Revoked = true
	return true, nil
}

func (s *TokenStore) RenewToken(ctx context.Context, id string, expiresAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[id]
	if !ok || t.Revoked {
		return false, nil
	}
	t.ExpiresAt = expiresAt
	return true, nil
}

func (s *TokenStore) ReAuthSidToken(ctx context.Context, id string, authTime, expiresAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[id]
	if !ok || t.Revoked || t.Kind != token.KindSidToken {
		return false, nil
	}
	t.AuthTime = authTime
	t.ExpiresAt = expiresAt
	return true, nil
}

func (s *TokenStore) RevokeForAccountAndKind(ctx context.Context, accountID string, kind token.Kind) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.tokens {
		if t.AccountID == accountID && t.Kind == kind {
			t.Revoked = true
		}
	}
	return nil
}

func (s *TokenStore) ListByParent(ctx context.Context, parentID string) ([]*token.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var children []*token.Token
	for _, t := range s.tokens {
		if t.ParentID == parentID {
			children = append(children, clone(t))
		}
	}
	return children, nil
}

func clone(t *token.Token) *token.Token {
	c := *t
	c.ScopeIDs = slices.Clone(t.ScopeIDs)
	c.Fingerprint = slices.Clone(t.Fingerprint)
	c.Hash = slices.Clone(t.Hash)
	c.Salt = slices.Clone(t.Salt)
	return &c
}
