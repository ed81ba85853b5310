package token

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/calmid/go-grant/internal/authn"
	"github.com/calmid/go-grant/internal/clock"
	"github.com/calmid/go-grant/internal/config"
	"github.com/calmid/go-grant/internal/oauth"
	"github.com/calmid/go-grant/pkg/random"
)

// Handler creates and validates every token kind. It owns no state of
// its own; all durable state lives in the Repository.
type Handler struct {
	repository Repository
	hasher     authn.Hasher
	clock      clock.Clock
	durations  config.Tokens
}

func NewHandler(repository Repository, hasher authn.Hasher, clk clock.Clock, durations config.Tokens) *Handler {
	return &Handler{
		repository: repository,
		hasher:     hasher,
		clock:      clk,
		durations:  durations,
	}
}

// GenerateRandom returns a fresh 128-bit one-time secret, base64url
// encoded without padding.
func (h *Handler) GenerateRandom() string {
	return random.NewURLSafeString(16)
}

// CreateSidToken opens a browser session for the account, bound to the
// user agent fingerprint.
func (h *Handler) CreateSidToken(ctx context.Context, accountID string, fingerprint []byte, pass string) (*Token, error) {
	if accountID == "" {
		return nil, errors.New("token: empty account id")
	}

	sidToken := h.newToken(KindSidToken)
	sidToken.AccountID = accountID
	sidToken.AuthTime = sidToken.CreatedAt
	sidToken.Fingerprint = fingerprint

	if err := h.secure(sidToken, pass); err != nil {
		return nil, err
	}
	return h.register(ctx, sidToken)
}

// CreateAuthorizationCode mints a single-use code bound to the session,
// the granted scopes, the client, and the redirect target. The code's
// parent is the session token, except when offline access was granted:
// refresh tokens spawned from such a code must outlive the session.
func (h *Handler) CreateAuthorizationCode(ctx context.Context, sidToken *Token, scopeIDs []string, clientID, nonce, redirectURI, pass string) (*Token, error) {
	code := h.newToken(KindAuthorizationCode)
	code.AccountID = sidToken.AccountID
	code.ScopeIDs = scopeIDs
	code.ClientID = clientID
	code.Nonce = nonce
	code.RedirectURI = redirectURI
	if !slices.Contains(scopeIDs, oauth.ScopeOfflineAccess) {
		code.ParentID = sidToken.ID
	}

	if err := h.secure(code, pass); err != nil {
		return nil, err
	}
	return h.register(ctx, code)
}

// CreateAccessTokenFromCode redeems an authorization code. The code is
// revoked first; losing that race means someone else already redeemed it
// and the caller gets the same failure as for any invalid code.
func (h *Handler) CreateAccessTokenFromCode(ctx context.Context, authorizationCode *Token, pass string) (*Token, error) {
	if err := h.consume(ctx, authorizationCode.ID); err != nil {
		return nil, err
	}

	accessToken := h.newToken(KindAccessToken)
	accessToken.AccountID = authorizationCode.AccountID
	accessToken.ScopeIDs = authorizationCode.ScopeIDs
	accessToken.ClientID = authorizationCode.ClientID
	// The consumed code's id is kept so that replaying the code can be
	// traced to the tokens it produced (RFC 6749 section 4.1.2).
	accessToken.ParentID = authorizationCode.ID

	if err := h.secure(accessToken, pass); err != nil {
		return nil, err
	}
	return h.register(ctx, accessToken)
}

// CreateRefreshToken redeems an authorization code into a long-lived
// refresh token, with the same single-use semantics as
// CreateAccessTokenFromCode.
func (h *Handler) CreateRefreshToken(ctx context.Context, authorizationCode *Token, pass string) (*Token, error) {
	if err := h.consume(ctx, authorizationCode.ID); err != nil {
		return nil, err
	}

	refreshToken := h.newToken(KindRefreshToken)
	refreshToken.AccountID = authorizationCode.AccountID
	refreshToken.ScopeIDs = authorizationCode.ScopeIDs
	refreshToken.ClientID = authorizationCode.ClientID
	refreshToken.ParentID = authorizationCode.ID

	if err := h.secure(refreshToken, pass); err != nil {
		return nil, err
	}
	return h.register(ctx, refreshToken)
}

// CreateAccessTokenFromRefresh mints an access token from a refresh
// token without consuming it. The requested scopes must be a subset of
// the scopes the refresh token was granted.
func (h *Handler) CreateAccessTokenFromRefresh(ctx context.Context, refreshToken *Token, scopeIDs []string, pass string) (*Token, error) {
	if !oauth.ContainsAll(refreshToken.ScopeIDs, scopeIDs) {
		return nil, ErrTokenInvalid
	}

	accessToken := h.newToken(KindAccessToken)
	accessToken.AccountID = refreshToken.AccountID
	accessToken.ScopeIDs = scopeIDs
	accessToken.ClientID = refreshToken.ClientID
	accessToken.ParentID = refreshToken.ID

	if err := h.secure(accessToken, pass); err != nil {
		return nil, err
	}
	return h.register(ctx, accessToken)
}

// CreateAccountActivationToken mints the single-use token mailed to a
// new account. Any previous activation token for the account is revoked
// so only the most recent link works.
func (h *Handler) CreateAccountActivationToken(ctx context.Context, accountID, continueURL, pass string) (*Token, error) {
	activationToken := h.newToken(KindAccountActivation)
	activationToken.AccountID = accountID
	activationToken.ContinueURL = continueURL

	if err := h.secure(activationToken, pass); err != nil {
		return nil, err
	}
	if err := h.repository.RevokeForAccountAndKind(ctx, accountID, KindAccountActivation); err != nil {
		return nil, fmt.Errorf("revoke previous activation tokens: %w", err)
	}
	return h.register(ctx, activationToken)
}

// CreateChangePasswordToken mints the single-use token for a password
// reset link, revoking any previous one for the account.
func (h *Handler) CreateChangePasswordToken(ctx context.Context, accountID, pass string) (*Token, error) {
	return h.createPasswordToken(ctx, accountID, KindChangePassword, pass)
}

// CreateSetPasswordToken mints the single-use token for setting an
// initial password, revoking any previous one for the account.
func (h *Handler) CreateSetPasswordToken(ctx context.Context, accountID, pass string) (*Token, error) {
	return h.createPasswordToken(ctx, accountID, KindSetPassword, pass)
}

func (h *Handler) createPasswordToken(ctx context.Context, accountID string, kind Kind, pass string) (*Token, error) {
	passwordToken := h.newToken(kind)
	passwordToken.AccountID = accountID

	if err := h.secure(passwordToken, pass); err != nil {
		return nil, err
	}
	if err := h.repository.RevokeForAccountAndKind(ctx, accountID, kind); err != nil {
		return nil, fmt.Errorf("revoke previous %s tokens: %w", kind, err)
	}
	return h.register(ctx, passwordToken)
}

// CreateInvitationToken mints the single-use token backing an
// organization membership invitation.
func (h *Handler) CreateInvitationToken(ctx context.Context, membershipID, pass string) (*Token, error) {
	if membershipID == "" {
		return nil, errors.New("token: empty membership id")
	}

	invitationToken := h.newToken(KindMembershipInvitation)
	invitationToken.MembershipID = membershipID

	if err := h.secure(invitationToken, pass); err != nil {
		return nil, err
	}
	return h.register(ctx, invitationToken)
}

// GetCheckedToken resolves a serialized credential to its stored token.
// It fails closed with ErrTokenInvalid on malformed input, unknown id,
// revoked or expired token, secret mismatch, or kind mismatch, without
// revealing which check failed.
func (h *Handler) GetCheckedToken(ctx context.Context, serialized string, kind Kind) (*Token, error) {
	id, secret, ok := Deserialize(serialized)
	if !ok {
		return nil, ErrTokenInvalid
	}

	realToken, err := h.repository.GetToken(ctx, id)
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, fmt.Errorf("get token: %w", err)
	}

	// Evaluate every check; no early return, to keep rejection timing
	// independent of the reason.
	secretOK := h.hasher.CheckSecret(secret, realToken.Hash, realToken.Salt)
	expired := !realToken.ExpiresAt.After(h.clock.Now())
	kindOK := realToken.Kind == kind

	if realToken.Revoked || expired || !secretOK || !kindOK {
		return nil, ErrTokenInvalid
	}
	return realToken, nil
}

// Revoke marks a single token revoked. It reports false when the token
// was absent or already revoked.
func (h *Handler) Revoke(ctx context.Context, id string) (bool, error) {
	return h.repository.RevokeToken(ctx, id)
}

// RevokeDescendants revokes every token descended from id, walking the
// parent lineage breadth-first. The root itself is left untouched.
func (h *Handler) RevokeDescendants(ctx context.Context, id string) error {
	queue := []string{id}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		children, err := h.repository.ListByParent(ctx, current)
		if err != nil {
			return fmt.Errorf("list descendants of %s: %w", current, err)
		}
		for _, child := range children {
			if !child.Revoked {
				if _, err := h.repository.RevokeToken(ctx, child.ID); err != nil {
					return fmt.Errorf("revoke descendant %s: %w", child.ID, err)
				}
			}
			queue = append(queue, child.ID)
		}
	}
	return nil
}

// DetectReuse checks whether a rejected credential is actually the
// replay of an already-consumed token: the id resolves and the secret
// verifies, but the token is revoked. On reuse every descendant is
// revoked, per the OAuth2 security best current practice.
func (h *Handler) DetectReuse(ctx context.Context, serialized string) (bool, error) {
	id, secret, ok := Deserialize(serialized)
	if !ok {
		return false, nil
	}

	realToken, err := h.repository.GetToken(ctx, id)
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("get token: %w", err)
	}
	if !realToken.Revoked || !h.hasher.CheckSecret(secret, realToken.Hash, realToken.Salt) {
		return false, nil
	}

	if err := h.RevokeDescendants(ctx, realToken.ID); err != nil {
		return true, err
	}
	return true, nil
}

// ReAuthSid refreshes the authentication time of a live session after a
// successful re-login, extending its expiration without changing its id.
func (h *Handler) ReAuthSid(ctx context.Context, sidToken *Token) (bool, error) {
	now := h.clock.Now()
	return h.repository.ReAuthSidToken(ctx, sidToken.ID, now, now.Add(h.durations.SidToken))
}

// Renew slides a token's expiration forward by its kind's lifetime.
func (h *Handler) Renew(ctx context.Context, t *Token) (bool, error) {
	return h.repository.RenewToken(ctx, t.ID, h.clock.Now().Add(h.ttl(t.Kind)))
}

func (h *Handler) newToken(kind Kind) *Token {
	now := h.clock.Now()
	return &Token{
		ID:        uuid.NewString(),
		Kind:      kind,
		CreatedAt: now,
		ExpiresAt: now.Add(h.ttl(kind)),
	}
}

func (h *Handler) ttl(kind Kind) time.Duration {
	switch kind {
	case KindAccessToken:
		return h.durations.AccessToken
	case KindRefreshToken:
		return h.durations.RefreshToken
	case KindAuthorizationCode:
		return h.durations.AuthorizationCode
	case KindSidToken:
		return h.durations.SidToken
	case KindAccountActivation:
		return h.durations.AccountActivation
	case KindChangePassword:
		return h.durations.ChangePassword
	case KindSetPassword:
		return h.durations.SetPassword
	case KindMembershipInvitation:
		return h.durations.MembershipInvitation
	}
	panic(fmt.Sprintf("token: no duration for kind %d", kind))
}

func (h *Handler) secure(t *Token, pass string) error {
	salt, err := h.hasher.CreateSalt()
	if err != nil {
		return fmt.Errorf("secure token: %w", err)
	}
	t.Salt = salt
	t.Hash = h.hasher.HashSecret(pass, salt)
	return nil
}

// consume revokes a single-use token before deriving from it. At most
// one concurrent caller can win; everyone else sees ErrCreateFailed.
func (h *Handler) consume(ctx context.Context, id string) error {
	revoked, err := h.repository.RevokeToken(ctx, id)
	if err != nil {
		return fmt.Errorf("revoke single-use token: %w", err)
	}
	if !revoked {
		return ErrCreateFailed
	}
	return nil
}

func (h *Handler) register(ctx context.Context, t *Token) (*Token, error) {
	registered, err := h.repository.RegisterToken(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("register token: %w", err)
	}
	if !registered {
		return nil, ErrCreateFailed
	}
	return t, nil
}
