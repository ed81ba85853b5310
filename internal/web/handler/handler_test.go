package handler_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/calmid/go-grant/internal/authn"
	"github.com/calmid/go-grant/internal/cache"
	"github.com/calmid/go-grant/internal/clock"
	"github.com/calmid/go-grant/internal/config"
	"github.com/calmid/go-grant/internal/jwks"
	"github.com/calmid/go-grant/internal/model"
	"github.com/calmid/go-grant/internal/store"
	"github.com/calmid/go-grant/internal/store/memory"
	"github.com/calmid/go-grant/internal/token"
	"github.com/calmid/go-grant/internal/web/handler"
)

const (
	testClientID     = "app-front"
	testClientSecret = "front-secret"
	testRedirectURI  = "https://app.example.com/callback"
	testAccountID    = "acc-alice"
	testEmail        = "alice@example.com"
	testPassword     = "correct horse battery"
)

type env struct {
	mux    http.Handler
	cfg    *config.Config
	tokens *token.Handler
	authz  *fakeAuthz
	jwks   *jwks.Service
}

func newTestEnv(t *testing.T) *env {
	t.Helper()
	return newTestEnvWithClock(t, clock.System())
}

// newTestEnvWithClock builds the environment on a caller-owned clock so
// tests can move time forward.
func newTestEnvWithClock(t *testing.T, clk clock.Clock) *env {
	t.Helper()

	cfg := config.Default()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repository := memory.NewTokenStore()
	tokens := token.NewHandler(repository, authn.NewHasher(), clk, cfg.Tokens)

	cacheService, err := cache.NewService(config.Redis{}, logger)
	if err != nil {
		t.Fatalf("cache service: %v", err)
	}
	limiter := cache.NewLoginLimiter(cacheService)

	jwksService := jwks.NewService(newFakeJwksStore(), cacheService, clk, logger)
	if err := jwksService.EnsureKey(context.Background()); err != nil {
		t.Fatalf("ensure key: %v", err)
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}

	clients := fakeClients{
		testClientID: {
			ID:             testClientID,
			Name:           "Frontier App",
			Secret:         testClientSecret,
			Status:         model.ClientStatusRunning,
			Confidential:   true,
			RedirectURIs:   []string{testRedirectURI},
			NeededScopeIDs: []string{"openid", "profile"},
		},
		cfg.PortalClientID: {
			ID:             cfg.PortalClientID,
			Name:           "Portal",
			Secret:         "portal-secret",
			Status:         model.ClientStatusRunning,
			Confidential:   true,
			RedirectURIs:   []string{"https://portal.example.com/callback"},
			NeededScopeIDs: []string{"openid", "profile", "email"},
		},
	}

	accounts := &fakeAccounts{
		byID: map[string]*model.Account{
			testAccountID: {
				ID:           testAccountID,
				Email:        testEmail,
				Name:         "Alice",
				Locale:       "en",
				PasswordHash: passwordHash,
				Activated:    true,
			},
		},
	}

	scopes := fakeScopes{
		"openid":         {ID: "openid", Name: "Identity", Description: "who you are"},
		"profile":        {ID: "profile", Name: "Profile", Description: "your profile data"},
		"email":          {ID: "email", Name: "Email", Description: "your email address"},
		"offline_access": {ID: "offline_access", Name: "Offline access", Description: "access while you are away"},
	}

	authz := &fakeAuthz{granted: make(map[string][]string)}

	mux := handler.New(cfg, logger, clk, nil, tokens, jwksService, limiter, clients, accounts, scopes, authz)

	return &env{
		mux:    mux,
		cfg:    cfg,
		tokens: tokens,
		authz:  authz,
		jwks:   jwksService,
	}
}

// login drives the real login form and returns the session cookie.
func (e *env) login(t *testing.T) *http.Cookie {
	t.Helper()

	form := url.Values{
		"email":    {testEmail},
		"password": {testPassword},
		"continue": {"/"},
	}
	r := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	e.mux.ServeHTTP(w, r)

	if w.Code != http.StatusSeeOther {
		t.Fatalf("login status = %d, want %d", w.Code, http.StatusSeeOther)
	}
	for _, cookie := range w.Result().Cookies() {
		if cookie.Name == "SID" && cookie.Value != "" {
			return cookie
		}
	}
	t.Fatal("no session cookie after login")
	return nil
}

// newSession mints a session token directly, bypassing the form.
func (e *env) newSession(t *testing.T, fingerprint []byte) *token.Token {
	t.Helper()

	pass := e.tokens.GenerateRandom()
	sidToken, err := e.tokens.CreateSidToken(context.Background(), testAccountID, fingerprint, pass)
	if err != nil {
		t.Fatalf("create sid token: %v", err)
	}
	return sidToken
}

// newCode mints an authorization code directly and returns its wire form.
func (e *env) newCode(t *testing.T, sidToken *token.Token, scopeIDs []string) string {
	t.Helper()

	pass := e.tokens.GenerateRandom()
	code, err := e.tokens.CreateAuthorizationCode(context.Background(), sidToken, scopeIDs, testClientID, "nonce-1", testRedirectURI, pass)
	if err != nil {
		t.Fatalf("create authorization code: %v", err)
	}
	return token.Serialize(code.ID, pass)
}

type fakeClients map[string]*model.Client

func (f fakeClients) GetByID(ctx context.Context, id string) (*model.Client, error) {
	client, ok := f[id]
	if !ok {
		return nil, store.ErrClientNotFound
	}
	return client, nil
}

type fakeScopes map[string]*model.Scope

func (f fakeScopes) GetByID(ctx context.Context, id string) (*model.Scope, error) {
	scope, ok := f[id]
	if !ok {
		return nil, store.ErrScopeNotFound
	}
	return scope, nil
}

func (f fakeScopes) ListByIDs(ctx context.Context, ids []string) ([]*model.Scope, error) {
	scopes := make([]*model.Scope, 0, len(ids))
	for _, id := range ids {
		if scope, ok := f[id]; ok {
			scopes = append(scopes, scope)
		}
	}
	return scopes, nil
}

type fakeAccounts struct {
	mu   sync.Mutex
	byID map[string]*model.Account
}

func (f *fakeAccounts) GetByID(ctx context.Context, id string) (*model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	account, ok := f.byID[id]
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	return account, nil
}

func (f *fakeAccounts) GetByEmail(ctx context.Context, email string) (*model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, account := range f.byID {
		if account.Email == email {
			return account, nil
		}
	}
	return nil, store.ErrAccountNotFound
}

func (f *fakeAccounts) SetPassword(ctx context.Context, id string, passwordHash []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	account, ok := f.byID[id]
	if !ok {
		return store.ErrAccountNotFound
	}
	account.PasswordHash = passwordHash
	return nil
}

func (f *fakeAccounts) Activate(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	account, ok := f.byID[id]
	if !ok {
		return store.ErrAccountNotFound
	}
	account.Activated = true
	return nil
}

type fakeAuthz struct {
	mu      sync.Mutex
	granted map[string][]string
}

func (f *fakeAuthz) AuthorizedScopes(ctx context.Context, accountID, clientID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.granted[accountID+"|"+clientID], nil
}

func (f *fakeAuthz) Authorize(ctx context.Context, accountID, clientID string, scopeIDs []string, grantedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := accountID + "|" + clientID
	existing := f.granted[key]
	for _, scopeID := range scopeIDs {
		found := false
		for _, have := range existing {
			if have == scopeID {
				found = true
				break
			}
		}
		if !found {
			existing = append(existing, scopeID)
		}
	}
	f.granted[key] = existing
	return nil
}

type fakeJwksStore struct {
	mu   sync.Mutex
	sets map[string]*model.Jwks
}

func newFakeJwksStore() *fakeJwksStore {
	return &fakeJwksStore{sets: make(map[string]*model.Jwks)}
}

func (f *fakeJwksStore) Create(ctx context.Context, jwks model.Jwks) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets[jwks.ID] = &jwks
	return nil
}

func (f *fakeJwksStore) FirstActive(ctx context.Context) (*model.Jwks, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, set := range f.sets {
		return set, nil
	}
	return nil, store.ErrJwksNotFound
}

func (f *fakeJwksStore) GetByID(ctx context.Context, id string) (*model.Jwks, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	set, ok := f.sets[id]
	if !ok {
		return nil, store.ErrJwksNotFound
	}
	return set, nil
}

func (f *fakeJwksStore) All(ctx context.Context) ([]*model.Jwks, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	sets := make([]*model.Jwks, 0, len(f.sets))
	for _, set := range f.sets {
		sets = append(sets, set)
	}
	return sets, nil
}
