package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"time"

	"github.com/calmid/go-grant/internal/clock"
	"github.com/calmid/go-grant/internal/config"
	"github.com/calmid/go-grant/internal/jwks"
	"github.com/calmid/go-grant/internal/model"
	"github.com/calmid/go-grant/internal/oauth"
	"github.com/calmid/go-grant/internal/store"
	"github.com/calmid/go-grant/internal/token"
	"github.com/calmid/go-grant/internal/web/template"
)

// authorizeFlow carries the collaborators of the authorization
// endpoint. Authorize serves the GET entry point, Approve the consent
// form POST; both run the same request validation.
type authorizeFlow struct {
	cfg            *config.Config
	logger         *slog.Logger
	clock          clock.Clock
	tokens         *token.Handler
	jwks           *jwks.Service
	clients        ClientDirectory
	scopes         ScopeCatalog
	authorizations AuthorizationRecorder
}

// authRequest is a validated authorization request: the client is known
// and running and the redirect target is trusted, so every later error
// may be delivered by redirect.
type authRequest struct {
	client   *model.Client
	redirect *oauth.RedirectURI
	params   url.Values
	scopeIDs []string
	state     string
	nonce     string
	prompt    oauth.Prompt
	maxAge    time.Duration
	hasMaxAge bool
}

// See https://openid.net/specs/openid-connect-core-1_0.html#AuthRequest
func Authorize(
	cfg *config.Config,
	logger *slog.Logger,
	clk clock.Clock,
	tokens *token.Handler,
	jwksService *jwks.Service,
	clientStore ClientDirectory,
	scopeStore ScopeCatalog,
	authorizationStore AuthorizationRecorder,
) http.Handler {
	flow := &authorizeFlow{cfg, logger, clk, tokens, jwksService, clientStore, scopeStore, authorizationStore}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		request, done := flow.validate(w, r, r.URL.Query())
		if done {
			return
		}

		sessionToken, done := flow.requireSession(w, r, request)
		if done {
			return
		}

		flow.reconcileConsent(w, r, request, sessionToken)
	})
}

// Approve handles the consent form submission. The original request
// parameters travel through the form, so the whole validation runs
// again before any grant is recorded.
func Approve(
	cfg *config.Config,
	logger *slog.Logger,
	clk clock.Clock,
	tokens *token.Handler,
	jwksService *jwks.Service,
	clientStore ClientDirectory,
	scopeStore ScopeCatalog,
	authorizationStore AuthorizationRecorder,
) http.Handler {
	flow := &authorizeFlow{cfg, logger, clk, tokens, jwksService, clientStore, scopeStore, authorizationStore}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if err := r.ParseForm(); err != nil {
			flow.errorPage(w, http.StatusBadRequest, "malformed form submission")
			return
		}

		request, done := flow.validate(w, r, r.PostForm)
		if done {
			return
		}

		sessionToken, done := flow.requireSession(w, r, request)
		if done {
			return
		}

		if r.PostForm.Get("approve") != "yes" {
			flow.redirectError(w, r, request, oauth.ErrAccessDenied, "the user denied the request")
			return
		}

		// The user-selected subset of the requested scopes; openid is
		// always retained since the request is void without it.
		selected := r.PostForm["selected_scope"]
		granted := make([]string, 0, len(request.scopeIDs))
		for _, scopeID := range request.scopeIDs {
			if scopeID == oauth.ScopeOpenID || slices.Contains(selected, scopeID) {
				granted = append(granted, scopeID)
			}
		}

		flow.issueCode(w, r, request, sessionToken, granted)
	})
}

// validate runs the pre-session checks. It reports done=true when a
// response has been written.
func (f *authorizeFlow) validate(w http.ResponseWriter, r *http.Request, params url.Values) (*authRequest, bool) {
	ctx := r.Context()

	clientID, ok := getSingle(params, "client_id")
	if !ok {
		f.errorPage(w, http.StatusBadRequest, "duplicate client_id parameter")
		return nil, true
	}
	if clientID == "" {
		f.errorPage(w, http.StatusBadRequest, "missing client_id parameter")
		return nil, true
	}

	client, err := f.clients.GetByID(ctx, clientID)
	if err != nil {
		if errors.Is(err, store.ErrClientNotFound) {
			f.errorPage(w, http.StatusBadRequest, "unknown client")
			return nil, true
		}
		f.logger.Error("client lookup failed", "client_id", clientID, "error", err)
		f.errorPage(w, http.StatusInternalServerError, "temporary failure, try again later")
		return nil, true
	}
	if client.Status != model.ClientStatusRunning {
		f.errorPage(w, http.StatusBadRequest, "client is not available")
		return nil, true
	}

	// Until the redirect target is known to belong to the client,
	// redirecting an error would turn the server into an open
	// redirector. Errors up to here render locally.
	redirectURI, ok := getSingle(params, "redirect_uri")
	if !ok {
		f.errorPage(w, http.StatusBadRequest, "duplicate redirect_uri parameter")
		return nil, true
	}
	if !oauth.ValidRedirectURI(redirectURI) {
		f.errorPage(w, http.StatusBadRequest, "missing or malformed redirect_uri parameter")
		return nil, true
	}
	if !client.RedirectURIValidationDisabled && !client.HasRedirectURI(redirectURI) {
		f.errorPage(w, http.StatusBadRequest, "redirect_uri is not registered for this client")
		return nil, true
	}

	request := &authRequest{
		client:   client,
		params:   params,
		state:    params.Get("state"),
		nonce:    params.Get("nonce"),
		redirect: oauth.NewRedirectURI(redirectURI).SetState(params.Get("state")),
	}

	// Repeating a single-valued parameter is malformed input; picking
	// either value would let one occurrence smuggle past checks run
	// against the other.
	for _, name := range []string{
		"state", "nonce", "response_type", "response_mode", "scope",
		"request", "request_uri", "prompt", "max_age", "id_token_hint",
	} {
		if _, ok := getSingle(params, name); !ok {
			f.redirectError(w, r, request, oauth.ErrInvalidRequest, "duplicate "+name+" parameter")
			return nil, true
		}
	}

	if params.Get("response_type") != "code" {
		f.redirectError(w, r, request, oauth.ErrUnsupportedResponseType, "only the code response type is supported")
		return nil, true
	}
	if mode := params.Get("response_mode"); mode != "" && mode != "query" {
		f.redirectError(w, r, request, oauth.ErrInvalidRequest, "only the query response mode is supported")
		return nil, true
	}

	request.scopeIDs = oauth.SplitScopes(params.Get("scope"))
	if !slices.Contains(request.scopeIDs, oauth.ScopeOpenID) {
		f.redirectError(w, r, request, oauth.ErrInvalidScope, "the openid scope is required")
		return nil, true
	}

	if params.Get("request") != "" {
		f.redirectError(w, r, request, oauth.ErrRequestNotSupported, "")
		return nil, true
	}
	if params.Get("request_uri") != "" {
		f.redirectError(w, r, request, oauth.ErrRequestURINotSupported, "")
		return nil, true
	}

	prompt, ok := oauth.ParsePrompt(params.Get("prompt"))
	if !ok {
		f.redirectError(w, r, request, oauth.ErrInvalidRequest, "malformed prompt parameter")
		return nil, true
	}
	request.prompt = prompt

	if rawMaxAge := params.Get("max_age"); rawMaxAge != "" {
		seconds, err := strconv.ParseInt(rawMaxAge, 10, 64)
		if err != nil || seconds < 0 {
			f.redirectError(w, r, request, oauth.ErrInvalidRequest, "malformed max_age parameter")
			return nil, true
		}
		request.maxAge = time.Duration(seconds) * time.Second
		request.hasMaxAge = true
	}

	// Offline access needs explicit consent; without prompt=consent the
	// scope is silently dropped rather than rejected.
	if !prompt.Consent {
		request.scopeIDs = slices.DeleteFunc(request.scopeIDs, func(scopeID string) bool {
			return scopeID == oauth.ScopeOfflineAccess
		})
	}

	return request, false
}

// requireSession enforces the login related parameters. It reports
// done=true when a response has been written, otherwise it returns the
// live session token.
func (f *authorizeFlow) requireSession(w http.ResponseWriter, r *http.Request, request *authRequest) (*token.Token, bool) {
	sessionToken := currentSession(r)

	needLogin := sessionToken == nil || request.prompt.Login
	if sessionToken != nil && request.hasMaxAge && f.clock.Now().Sub(sessionToken.AuthTime) > request.maxAge {
		needLogin = true
	}

	if hint := request.params.Get("id_token_hint"); hint != "" {
		claims, err := f.jwks.VerifyIDToken(r.Context(), hint)
		if err != nil {
			f.redirectError(w, r, request, oauth.ErrInvalidRequest, "malformed id_token_hint parameter")
			return nil, true
		}
		if sessionToken != nil && claims.Subject != sessionToken.AccountID {
			f.redirectError(w, r, request, oauth.ErrLoginRequired, "the session does not match id_token_hint")
			return nil, true
		}
	}

	if !needLogin {
		return sessionToken, false
	}

	if !request.prompt.Interactive {
		f.redirectError(w, r, request, oauth.ErrLoginRequired, "")
		return nil, true
	}

	// Send the user to the login page and come back here afterwards.
	// The login prompt value is removed from the continuation so a
	// successful login does not loop.
	continueParams := url.Values{}
	for key, values := range request.params {
		if key == "approve" || key == "selected_scope" {
			continue
		}
		continueParams[key] = values
	}
	resumePrompt := request.prompt
	resumePrompt.Login = false
	if rendered := resumePrompt.String(); rendered == "" {
		continueParams.Del("prompt")
	} else {
		continueParams.Set("prompt", rendered)
	}

	continueURL := "/oauth/authorize?" + continueParams.Encode()
	http.Redirect(w, r, "/login?continue="+url.QueryEscape(continueURL), http.StatusSeeOther)
	return nil, true
}

// reconcileConsent decides between the transparent grant, the consent
// page, and the consent_required error.
func (f *authorizeFlow) reconcileConsent(w http.ResponseWriter, r *http.Request, request *authRequest, sessionToken *token.Token) {
	ctx := r.Context()

	// Unknown scopes are rejected here, once the full catalog matters.
	for _, scopeID := range request.scopeIDs {
		if _, err := f.scopes.GetByID(ctx, scopeID); err != nil {
			if errors.Is(err, store.ErrScopeNotFound) {
				f.redirectError(w, r, request, oauth.ErrInvalidScope, "unknown scope "+scopeID)
				return
			}
			f.serverFailure(w, r, "scope lookup failed", err)
			return
		}
	}

	// The first-party portal gets its declared scopes without a prompt.
	if request.client.ID == f.cfg.PortalClientID {
		granted := request.scopeIDs
		for _, scopeID := range request.client.NeededScopeIDs {
			if !slices.Contains(granted, scopeID) {
				granted = append(granted, scopeID)
			}
		}
		f.issueCode(w, r, request, sessionToken, granted)
		return
	}

	authorized, err := f.authorizations.AuthorizedScopes(ctx, sessionToken.AccountID, request.client.ID)
	if err != nil {
		f.serverFailure(w, r, "authorized scopes lookup failed", err)
		return
	}

	if oauth.ContainsAll(authorized, request.scopeIDs) && !request.prompt.Consent {
		f.issueCode(w, r, request, sessionToken, request.scopeIDs)
		return
	}

	if !request.prompt.Interactive {
		f.redirectError(w, r, request, oauth.ErrConsentRequired, "")
		return
	}

	f.renderConsent(w, r, request, authorized)
}

func (f *authorizeFlow) renderConsent(w http.ResponseWriter, r *http.Request, request *authRequest, authorized []string) {
	var alreadyIDs, requiredIDs, optionalIDs []string
	for _, scopeID := range request.scopeIDs {
		switch {
		case slices.Contains(authorized, scopeID):
			alreadyIDs = append(alreadyIDs, scopeID)
		case slices.Contains(request.client.NeededScopeIDs, scopeID):
			requiredIDs = append(requiredIDs, scopeID)
		default:
			optionalIDs = append(optionalIDs, scopeID)
		}
	}

	ctx := r.Context()
	already, err := f.scopes.ListByIDs(ctx, alreadyIDs)
	if err != nil {
		f.serverFailure(w, r, "scope listing failed", err)
		return
	}
	required, err := f.scopes.ListByIDs(ctx, requiredIDs)
	if err != nil {
		f.serverFailure(w, r, "scope listing failed", err)
		return
	}
	optional, err := f.scopes.ListByIDs(ctx, optionalIDs)
	if err != nil {
		f.serverFailure(w, r, "scope listing failed", err)
		return
	}

	data := struct {
		ClientName        string
		Params            url.Values
		AlreadyAuthorized []*model.Scope
		Required          []*model.Scope
		Optional          []*model.Scope
	}{
		ClientName:        request.client.Name,
		Params:            request.params,
		AlreadyAuthorized: already,
		Required:          required,
		Optional:          optional,
	}

	if err := template.Render(w, http.StatusOK, "consent", data); err != nil {
		f.logger.Error("rendering consent page failed", "error", err)
	}
}

// issueCode records the grant, mints the single-use code and sends the
// user agent back to the client.
func (f *authorizeFlow) issueCode(w http.ResponseWriter, r *http.Request, request *authRequest, sessionToken *token.Token, granted []string) {
	ctx := r.Context()

	if err := f.authorizations.Authorize(ctx, sessionToken.AccountID, request.client.ID, granted, f.clock.Now()); err != nil {
		f.serverFailure(w, r, "recording authorization failed", err)
		return
	}

	pass := f.tokens.GenerateRandom()
	code, err := f.tokens.CreateAuthorizationCode(ctx, sessionToken, granted, request.client.ID, request.nonce, request.params.Get("redirect_uri"), pass)
	if err != nil {
		f.serverFailure(w, r, "minting authorization code failed", err)
		return
	}

	http.Redirect(w, r, request.redirect.CodeURL(token.Serialize(code.ID, pass)), http.StatusFound)
}

func (f *authorizeFlow) redirectError(w http.ResponseWriter, r *http.Request, request *authRequest, code oauth.ErrorCode, description string) {
	http.Redirect(w, r, request.redirect.ErrorURL(code, description), http.StatusFound)
}

func (f *authorizeFlow) serverFailure(w http.ResponseWriter, r *http.Request, message string, err error) {
	f.logger.Error(message, "error", err)
	f.errorPage(w, http.StatusInternalServerError, "temporary failure, try again later")
}

func (f *authorizeFlow) errorPage(w http.ResponseWriter, status int, message string) {
	data := struct{ Message string }{Message: message}
	if err := template.Render(w, status, "error", data); err != nil {
		f.logger.Error("rendering error page failed", "error", err)
	}
}

// getSingle reads a parameter that may appear at most once. An absent
// parameter is fine; a repeated one is not.
func getSingle(params url.Values, name string) (string, bool) {
	values := params[name]
	if len(values) > 1 {
		return "", false
	}
	if len(values) == 0 {
		return "", true
	}
	return values[0], true
}
