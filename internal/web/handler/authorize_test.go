package handler_test

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/calmid/go-grant/internal/clock"
	"github.com/calmid/go-grant/internal/token"
)

func authorizeQuery(overrides url.Values) url.Values {
	params := url.Values{
		"client_id":     {testClientID},
		"redirect_uri":  {testRedirectURI},
		"response_type": {"code"},
		"scope":         {"openid profile"},
		"state":         {"xyz-123"},
	}
	for key, values := range overrides {
		if len(values) == 1 && values[0] == "" {
			params.Del(key)
			continue
		}
		params[key] = values
	}
	return params
}

func (e *env) authorize(t *testing.T, params url.Values, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	r := httptest.NewRequest(http.MethodGet, "/oauth/authorize?"+params.Encode(), nil)
	if cookie != nil {
		r.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	e.mux.ServeHTTP(w, r)
	return w
}

func redirectQuery(t *testing.T, w *httptest.ResponseRecorder) url.Values {
	t.Helper()

	location := w.Header().Get("Location")
	if location == "" {
		t.Fatalf("no Location header, status %d, body %s", w.Code, w.Body.String())
	}
	parsed, err := url.Parse(location)
	if err != nil {
		t.Fatalf("parse Location %q: %v", location, err)
	}
	return parsed.Query()
}

func TestAuthorizePromptNoneWithoutSession(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)

	w := e.authorize(t, authorizeQuery(url.Values{"prompt": {"none"}}), nil)

	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusFound)
	}
	query := redirectQuery(t, w)
	if got := query.Get("error"); got != "login_required" {
		t.Errorf("error = %q, want login_required", got)
	}
	if got := query.Get("state"); got != "xyz-123" {
		t.Errorf("state = %q, want xyz-123", got)
	}
}

func TestAuthorizeUnregisteredRedirectURI(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)

	w := e.authorize(t, authorizeQuery(url.Values{"redirect_uri": {"https://evil.example.com/steal"}}), nil)

	// Not yet safe to redirect: the error renders locally.
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if location := w.Header().Get("Location"); location != "" {
		t.Errorf("unexpected redirect to %q", location)
	}
}

func TestAuthorizeUnknownClient(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)

	w := e.authorize(t, authorizeQuery(url.Values{"client_id": {"nobody"}}), nil)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if location := w.Header().Get("Location"); location != "" {
		t.Errorf("unexpected redirect to %q", location)
	}
}

func TestAuthorizeMissingOpenIDScope(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)

	w := e.authorize(t, authorizeQuery(url.Values{"scope": {"profile"}}), nil)

	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusFound)
	}
	if got := redirectQuery(t, w).Get("error"); got != "invalid_scope" {
		t.Errorf("error = %q, want invalid_scope", got)
	}
}

func TestAuthorizeRejectsRequestObject(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)

	w := e.authorize(t, authorizeQuery(url.Values{"request": {"eyJhbGciOi"}}), nil)

	if got := redirectQuery(t, w).Get("error"); got != "request_not_supported" {
		t.Errorf("error = %q, want request_not_supported", got)
	}
}

func TestAuthorizeRedirectsToLogin(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)

	w := e.authorize(t, authorizeQuery(nil), nil)

	if w.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusSeeOther)
	}
	location := w.Header().Get("Location")
	if !strings.HasPrefix(location, "/login?continue=") {
		t.Fatalf("Location = %q, want login redirect", location)
	}
	// The continuation must lead back into the authorization endpoint.
	continueURL, err := url.QueryUnescape(strings.TrimPrefix(location, "/login?continue="))
	if err != nil || !strings.HasPrefix(continueURL, "/oauth/authorize?") {
		t.Errorf("continue = %q, want authorization continuation", continueURL)
	}
}

func TestAuthorizeLoginPromptStripped(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)

	cookie := e.login(t)
	w := e.authorize(t, authorizeQuery(url.Values{"prompt": {"login"}}), cookie)

	if w.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want login redirect despite session", w.Code)
	}
	location := w.Header().Get("Location")
	continueURL, _ := url.QueryUnescape(strings.TrimPrefix(location, "/login?continue="))
	if strings.Contains(continueURL, "prompt=login") {
		t.Errorf("continuation %q still carries prompt=login", continueURL)
	}
}

func TestAuthorizeTransparentGrant(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)

	cookie := e.login(t)
	e.authz.granted[testAccountID+"|"+testClientID] = []string{"openid", "profile"}

	w := e.authorize(t, authorizeQuery(nil), cookie)

	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want %d, body %s", w.Code, http.StatusFound, w.Body.String())
	}
	query := redirectQuery(t, w)
	if query.Get("code") == "" {
		t.Error("no code in redirect")
	}
	if got := query.Get("state"); got != "xyz-123" {
		t.Errorf("state = %q, want xyz-123", got)
	}
}

func TestAuthorizeConsentPage(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)

	cookie := e.login(t)
	w := e.authorize(t, authorizeQuery(nil), cookie)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want consent page", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "Frontier App") {
		t.Error("consent page does not name the client")
	}
	if !strings.Contains(body, "selected_scope") {
		t.Error("consent page has no scope checkboxes")
	}
}

func TestAuthorizePromptNoneConsentRequired(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)

	cookie := e.login(t)
	w := e.authorize(t, authorizeQuery(url.Values{"prompt": {"none"}}), cookie)

	if got := redirectQuery(t, w).Get("error"); got != "consent_required" {
		t.Errorf("error = %q, want consent_required", got)
	}
}

func TestApproveIssuesCode(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)

	cookie := e.login(t)

	form := authorizeQuery(nil)
	form.Set("approve", "yes")
	form["selected_scope"] = []string{"openid", "profile"}

	r := httptest.NewRequest(http.MethodPost, "/oauth/authorize/approve", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.AddCookie(cookie)
	w := httptest.NewRecorder()
	e.mux.ServeHTTP(w, r)

	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want %d, body %s", w.Code, http.StatusFound, w.Body.String())
	}
	query := redirectQuery(t, w)
	code := query.Get("code")
	if code == "" {
		t.Fatal("no code in redirect")
	}
	if _, _, ok := token.Deserialize(code); !ok {
		t.Errorf("code %q is not a valid serialized credential", code)
	}

	// The grant is remembered, so the next request passes transparently.
	second := e.authorize(t, authorizeQuery(nil), cookie)
	if second.Code != http.StatusFound {
		t.Errorf("second authorize status = %d, want transparent grant", second.Code)
	}
}

func TestApproveDenied(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)

	cookie := e.login(t)

	form := authorizeQuery(nil)
	form.Set("approve", "no")

	r := httptest.NewRequest(http.MethodPost, "/oauth/authorize/approve", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.AddCookie(cookie)
	w := httptest.NewRecorder()
	e.mux.ServeHTTP(w, r)

	if got := redirectQuery(t, w).Get("error"); got != "access_denied" {
		t.Errorf("error = %q, want access_denied", got)
	}
}

func TestAuthorizePortalAutoGrant(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)

	cookie := e.login(t)
	params := authorizeQuery(url.Values{
		"client_id":    {e.cfg.PortalClientID},
		"redirect_uri": {"https://portal.example.com/callback"},
	})

	w := e.authorize(t, params, cookie)

	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want auto grant redirect, body %s", w.Code, w.Body.String())
	}
	if redirectQuery(t, w).Get("code") == "" {
		t.Error("no code in portal redirect")
	}
}

func TestAuthorizeDuplicateParameters(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)

	// A second redirect_uri smuggled next to the registered one must be
	// rejected outright, never resolved to either value.
	params := authorizeQuery(nil)
	params["redirect_uri"] = []string{testRedirectURI, "https://evil.example.com/steal"}
	w := e.authorize(t, params, nil)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if location := w.Header().Get("Location"); location != "" {
		t.Errorf("unexpected redirect to %q", location)
	}

	// Past redirect validation the rejection travels by redirect.
	cookie := e.login(t)
	params = authorizeQuery(nil)
	params["scope"] = []string{"openid", "openid profile"}
	w = e.authorize(t, params, cookie)

	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusFound)
	}
	if got := redirectQuery(t, w).Get("error"); got != "invalid_request" {
		t.Errorf("error = %q, want invalid_request", got)
	}
}

func TestAuthorizeMaxAgeForcesRelogin(t *testing.T) {
	t.Parallel()
	clk := clock.NewFixed(time.Date(2025, 7, 17, 14, 30, 0, 0, time.UTC))
	e := newTestEnvWithClock(t, clk)

	cookie := e.login(t)
	e.authz.granted[testAccountID+"|"+testClientID] = []string{"openid", "profile"}

	w := e.authorize(t, authorizeQuery(url.Values{"max_age": {"600"}}), cookie)
	if w.Code != http.StatusFound {
		t.Fatalf("fresh session status = %d, want transparent grant", w.Code)
	}
	if redirectQuery(t, w).Get("code") == "" {
		t.Error("no code in redirect")
	}

	// An hour later the authentication is older than max_age allows.
	clk.Advance(time.Hour)
	w = e.authorize(t, authorizeQuery(url.Values{"max_age": {"600"}}), cookie)
	if w.Code != http.StatusSeeOther {
		t.Fatalf("stale session status = %d, want login redirect", w.Code)
	}
	if location := w.Header().Get("Location"); !strings.HasPrefix(location, "/login?continue=") {
		t.Errorf("Location = %q, want login redirect", location)
	}
}

func TestAuthorizeOfflineAccessDroppedWithoutConsentPrompt(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)

	cookie := e.login(t)
	e.authz.granted[testAccountID+"|"+testClientID] = []string{"openid", "profile"}

	w := e.authorize(t, authorizeQuery(url.Values{"scope": {"openid profile offline_access"}}), cookie)

	// offline_access was dropped, the remaining scopes were already
	// granted, so the request passes transparently.
	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want transparent grant", w.Code)
	}
	if redirectQuery(t, w).Get("code") == "" {
		t.Error("no code in redirect")
	}
}
