package token

import (
	"context"
	"errors"
	"time"
)

// Kind tags the closed set of token variants. Dispatching on an explicit
// tag keeps the expected-kind check in GetCheckedToken exhaustive.
type Kind int

const (
	KindUnknown Kind = iota
	KindAccessToken
	KindRefreshToken
	KindAuthorizationCode
	KindSidToken
	KindAccountActivation
	KindChangePassword
	KindSetPassword
	KindMembershipInvitation
)

func (k Kind) String() string {
	switch k {
	case KindAccessToken:
		return "access_token"
	case KindRefreshToken:
		return "refresh_token"
	case KindAuthorizationCode:
		return "authorization_code"
	case KindSidToken:
		return "sid_token"
	case KindAccountActivation:
		return "account_activation"
	case KindChangePassword:
		return "change_password"
	case KindSetPassword:
		return "set_password"
	case KindMembershipInvitation:
		return "membership_invitation"
	}
	return "unknown"
}

// Token is the shared representation of every token kind. Kind-specific
// fields are only populated for the kinds that carry them.
type Token struct {
	ID        string
	Kind      Kind
	AccountID string
	CreatedAt time.Time
	ExpiresAt time.Time

	// Hash and Salt are the salted digest of the one-time secret handed
	// to the bearer. The secret itself is never stored.
	Hash []byte
	Salt []byte

	// ParentID points at the token whose redemption produced this one.
	// It survives the parent's revocation so that reuse of a consumed
	// credential can be traced to its descendants.
	ParentID string

	// Revoked tokens are kept rather than deleted so that presenting one
	// again is detectable as reuse.
	Revoked bool

	// Authorization code, access token, refresh token.
	ScopeIDs    []string
	ClientID    string
	Nonce       string
	RedirectURI string

	// Sid token.
	AuthTime    time.Time
	Fingerprint []byte

	// Account activation token.
	ContinueURL string

	// Membership invitation token.
	MembershipID string
}

var (
	// ErrTokenInvalid is the uniform verdict for every user-triggerable
	// validation failure: malformed, absent, expired, revoked, bad
	// secret, or wrong kind. Callers must not be able to tell which.
	ErrTokenInvalid = errors.New("token: invalid token")

	// ErrCreateFailed reports that a token could not be registered (id
	// collision) or that a single-use parent had already been consumed.
	// Callers may retry with a fresh request.
	ErrCreateFailed = errors.New("token: create failed")

	// ErrTokenNotFound is returned by Repository implementations when no
	// token exists under the given id.
	ErrTokenNotFound = errors.New("token: not found")
)

// Repository is the durable token store. Implementations must provide
// insert-if-absent semantics for RegisterToken and at-most-one-winner
// semantics for RevokeToken, and lookups must observe completed writes.
type Repository interface {
	GetToken(ctx context.Context, id string) (*Token, error)
	RegisterToken(ctx context.Context, t *Token) (bool, error)
	RevokeToken(ctx context.Context, id string) (bool, error)
	RenewToken(ctx context.Context, id string, expiresAt time.Time) (bool, error)
	ReAuthSidToken(ctx context.Context, id string, authTime, expiresAt time.Time) (bool, error)
	RevokeForAccountAndKind(ctx context.Context, accountID string, kind Kind) error
	ListByParent(ctx context.Context, parentID string) ([]*Token, error)
}
