package oauth_test

import (
	"net/url"
	"testing"

	"github.com/calmid/go-grant/internal/oauth"
)

func TestValidRedirectURI(t *testing.T) {
	t.Parallel()

	valid := []string{
		"https://example.com/callback",
		"http://localhost:8080/cb",
		"https://example.com/cb?keep=1",
	}
	for _, uri := range valid {
		if !oauth.ValidRedirectURI(uri) {
			t.Errorf("expected %q to be valid", uri)
		}
	}

	invalid := []string{
		"",
		"/relative/path",
		"ftp://example.com/cb",
		"javascript:alert(1)",
		"https://example.com/cb#fragment",
		"https://",
	}
	for _, uri := range invalid {
		if oauth.ValidRedirectURI(uri) {
			t.Errorf("expected %q to be invalid", uri)
		}
	}
}

func TestRedirectURICodeURL(t *testing.T) {
	t.Parallel()

	target := oauth.NewRedirectURI("https://example.com/cb?keep=1").SetState("xyz").CodeURL("abc")

	parsed, err := url.Parse(target)
	if err != nil {
		t.Fatal(err)
	}
	query := parsed.Query()
	if got := query.Get("code"); got != "abc" {
		t.Errorf("code = %q, want %q", got, "abc")
	}
	if got := query.Get("state"); got != "xyz" {
		t.Errorf("state = %q, want %q", got, "xyz")
	}
	if got := query.Get("keep"); got != "1" {
		t.Errorf("existing query param lost: keep = %q", got)
	}
}

func TestRedirectURIErrorURL(t *testing.T) {
	t.Parallel()

	target := oauth.NewRedirectURI("https://example.com/cb").SetState("s").ErrorURL(oauth.ErrLoginRequired, "")

	parsed, err := url.Parse(target)
	if err != nil {
		t.Fatal(err)
	}
	query := parsed.Query()
	if got := query.Get("error"); got != "login_required" {
		t.Errorf("error = %q, want login_required", got)
	}
	if got := query.Get("state"); got != "s" {
		t.Errorf("state = %q, want s", got)
	}
	if query.Has("error_description") {
		t.Error("unexpected error_description for empty description")
	}
}
