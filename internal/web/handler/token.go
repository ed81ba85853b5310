package handler

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/calmid/go-grant/internal/config"
	"github.com/calmid/go-grant/internal/jwks"
	"github.com/calmid/go-grant/internal/model"
	"github.com/calmid/go-grant/internal/oauth"
	"github.com/calmid/go-grant/internal/store"
	"github.com/calmid/go-grant/internal/token"
	"github.com/calmid/go-grant/internal/web/encoding"
)

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	Scope        string `json:"scope"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
}

// Token serves the token endpoint: redemption of authorization codes
// and refresh token exchanges.
// See https://datatracker.ietf.org/doc/html/rfc6749#section-3.2
func Token(
	cfg *config.Config,
	logger *slog.Logger,
	tokens *token.Handler,
	jwksService *jwks.Service,
	clientStore ClientDirectory,
) http.Handler {
	endpoint := &tokenEndpoint{cfg, logger, tokens, jwksService, clientStore}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if err := r.ParseForm(); err != nil {
			endpoint.fail(w, http.StatusBadRequest, oauth.ErrInvalidRequest, "malformed form body")
			return
		}

		// Token responses carry credentials and must never be cached.
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Pragma", "no-cache")

		client, ok := endpoint.authenticateClient(w, r)
		if !ok {
			return
		}

		switch r.PostForm.Get("grant_type") {
		case "authorization_code":
			endpoint.redeemCode(w, r, client)
		case "refresh_token":
			endpoint.refresh(w, r, client)
		default:
			endpoint.fail(w, http.StatusBadRequest, oauth.ErrUnsupportedGrantType, "")
		}
	})
}

type tokenEndpoint struct {
	cfg     *config.Config
	logger  *slog.Logger
	tokens  *token.Handler
	jwks    *jwks.Service
	clients ClientDirectory
}

// authenticateClient resolves the caller from Basic credentials or the
// form body. Confidential clients must present their secret.
func (e *tokenEndpoint) authenticateClient(w http.ResponseWriter, r *http.Request) (*model.Client, bool) {
	clientID, clientSecret, usedBasic := r.BasicAuth()
	if !usedBasic {
		clientID = r.PostForm.Get("client_id")
		clientSecret = r.PostForm.Get("client_secret")
	}
	if clientID == "" {
		e.unauthorized(w, "missing client credentials")
		return nil, false
	}

	client, err := e.clients.GetByID(r.Context(), clientID)
	if err != nil {
		if errors.Is(err, store.ErrClientNotFound) {
			e.unauthorized(w, "unknown client")
			return nil, false
		}
		e.logger.Error("client lookup failed", "client_id", clientID, "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return nil, false
	}
	if client.Status != model.ClientStatusRunning {
		e.unauthorized(w, "client is not available")
		return nil, false
	}

	if client.Confidential {
		if subtle.ConstantTimeCompare([]byte(client.Secret), []byte(clientSecret)) != 1 {
			e.unauthorized(w, "invalid client credentials")
			return nil, false
		}
	}

	return client, true
}

func (e *tokenEndpoint) redeemCode(w http.ResponseWriter, r *http.Request, client *model.Client) {
	ctx := r.Context()
	serializedCode := r.PostForm.Get("code")

	code, err := e.tokens.GetCheckedToken(ctx, serializedCode, token.KindAuthorizationCode)
	if err != nil {
		if errors.Is(err, token.ErrTokenInvalid) {
			e.flagReuse(r, serializedCode)
			e.fail(w, http.StatusBadRequest, oauth.ErrInvalidGrant, "invalid authorization code")
			return
		}
		e.serverFailure(w, "authorization code lookup failed", err)
		return
	}

	if code.ClientID != client.ID {
		e.fail(w, http.StatusBadRequest, oauth.ErrInvalidGrant, "invalid authorization code")
		return
	}
	if code.RedirectURI != r.PostForm.Get("redirect_uri") {
		e.fail(w, http.StatusBadRequest, oauth.ErrInvalidGrant, "redirect_uri does not match the authorization request")
		return
	}

	var refreshToken *token.Token
	var refreshPass string
	var accessToken *token.Token
	accessPass := e.tokens.GenerateRandom()

	if slices.Contains(code.ScopeIDs, oauth.ScopeOfflineAccess) {
		refreshPass = e.tokens.GenerateRandom()
		refreshToken, err = e.tokens.CreateRefreshToken(ctx, code, refreshPass)
		if err == nil {
			accessToken, err = e.tokens.CreateAccessTokenFromRefresh(ctx, refreshToken, refreshToken.ScopeIDs, accessPass)
		}
	} else {
		accessToken, err = e.tokens.CreateAccessTokenFromCode(ctx, code, accessPass)
	}
	if err != nil {
		if errors.Is(err, token.ErrCreateFailed) {
			// Losing the redemption race means the code was already
			// consumed; treat it like any replay.
			e.flagReuse(r, serializedCode)
			e.fail(w, http.StatusBadRequest, oauth.ErrInvalidGrant, "invalid authorization code")
			return
		}
		e.serverFailure(w, "token minting failed", err)
		return
	}

	idToken, err := e.signIDToken(r, accessToken, code.Nonce)
	if err != nil {
		e.serverFailure(w, "signing id token failed", err)
		return
	}

	response := tokenResponse{
		AccessToken: token.Serialize(accessToken.ID, accessPass),
		TokenType:   "Bearer",
		ExpiresIn:   int64(e.cfg.Tokens.AccessToken.Seconds()),
		Scope:       oauth.JoinScopes(accessToken.ScopeIDs),
		IDToken:     idToken,
	}
	if refreshToken != nil {
		response.RefreshToken = token.Serialize(refreshToken.ID, refreshPass)
	}

	if err := encoding.Encode(w, http.StatusOK, response); err != nil {
		e.logger.Error("encoding token response failed", "error", err)
	}
}

func (e *tokenEndpoint) refresh(w http.ResponseWriter, r *http.Request, client *model.Client) {
	ctx := r.Context()
	serializedRefresh := r.PostForm.Get("refresh_token")

	refreshToken, err := e.tokens.GetCheckedToken(ctx, serializedRefresh, token.KindRefreshToken)
	if err != nil {
		if errors.Is(err, token.ErrTokenInvalid) {
			e.flagReuse(r, serializedRefresh)
			e.fail(w, http.StatusBadRequest, oauth.ErrInvalidGrant, "invalid refresh token")
			return
		}
		e.serverFailure(w, "refresh token lookup failed", err)
		return
	}

	if refreshToken.ClientID != client.ID {
		e.fail(w, http.StatusBadRequest, oauth.ErrInvalidGrant, "invalid refresh token")
		return
	}

	scopeIDs := refreshToken.ScopeIDs
	if rawScope := r.PostForm.Get("scope"); rawScope != "" {
		scopeIDs = oauth.SplitScopes(rawScope)
	}

	accessPass := e.tokens.GenerateRandom()
	accessToken, err := e.tokens.CreateAccessTokenFromRefresh(ctx, refreshToken, scopeIDs, accessPass)
	if err != nil {
		if errors.Is(err, token.ErrTokenInvalid) {
			e.fail(w, http.StatusBadRequest, oauth.ErrInvalidScope, "requested scope exceeds the granted scope")
			return
		}
		e.serverFailure(w, "token minting failed", err)
		return
	}

	idToken, err := e.signIDToken(r, accessToken, "")
	if err != nil {
		e.serverFailure(w, "signing id token failed", err)
		return
	}

	response := tokenResponse{
		AccessToken: token.Serialize(accessToken.ID, accessPass),
		TokenType:   "Bearer",
		ExpiresIn:   int64(e.cfg.Tokens.AccessToken.Seconds()),
		Scope:       oauth.JoinScopes(accessToken.ScopeIDs),
		IDToken:     idToken,
	}

	if err := encoding.Encode(w, http.StatusOK, response); err != nil {
		e.logger.Error("encoding token response failed", "error", err)
	}
}

func (e *tokenEndpoint) signIDToken(r *http.Request, accessToken *token.Token, nonce string) (string, error) {
	now := time.Now()
	claims := jwks.IDTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    e.cfg.Issuer,
			Subject:   accessToken.AccountID,
			Audience:  jwt.ClaimStrings{accessToken.ClientID},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(accessToken.ExpiresAt),
		},
		Nonce: nonce,
	}

	return e.jwks.SignIDToken(r.Context(), claims)
}

// flagReuse checks whether the rejected credential was the replay of an
// already-consumed token. The cascade itself happens inside the token
// handler; here it is only logged.
func (e *tokenEndpoint) flagReuse(r *http.Request, serialized string) {
	reused, err := e.tokens.DetectReuse(r.Context(), serialized)
	if err != nil {
		e.logger.Error("reuse detection failed", "error", err)
		return
	}
	if reused {
		e.logger.Warn("token reuse detected, descendants revoked", "remote", r.RemoteAddr)
	}
}

func (e *tokenEndpoint) unauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("WWW-Authenticate", `Basic realm="token endpoint"`)
	e.fail(w, http.StatusUnauthorized, oauth.ErrInvalidClient, description)
}

func (e *tokenEndpoint) fail(w http.ResponseWriter, status int, code oauth.ErrorCode, description string) {
	if err := encoding.EncodeError(w, status, code, description); err != nil {
		e.logger.Error("encoding error response failed", "error", err)
	}
}

func (e *tokenEndpoint) serverFailure(w http.ResponseWriter, message string, err error) {
	e.logger.Error(message, "error", err)
	e.fail(w, http.StatusInternalServerError, oauth.ErrServerError, "")
}
