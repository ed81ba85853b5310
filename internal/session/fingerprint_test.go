package session_test

import (
	"net/http/httptest"
	"testing"

	"github.com/calmid/go-grant/internal/session"
)

func TestFingerprintStable(t *testing.T) {
	t.Parallel()

	first := httptest.NewRequest("GET", "/", nil)
	first.Header.Set("User-Agent", "Mozilla/5.0")
	first.Header.Set("Accept-Language", "fr-FR,fr;q=0.9")

	second := httptest.NewRequest("GET", "/", nil)
	second.Header.Set("User-Agent", "Mozilla/5.0")
	second.Header.Set("Accept-Language", "fr-FR,fr;q=0.9")

	if !session.FingerprintMatches(session.Fingerprint(first), session.Fingerprint(second)) {
		t.Error("identical user agents should produce matching fingerprints")
	}
}

func TestFingerprintDiffers(t *testing.T) {
	t.Parallel()

	first := httptest.NewRequest("GET", "/", nil)
	first.Header.Set("User-Agent", "Mozilla/5.0")
	first.Header.Set("Accept-Language", "fr-FR")

	second := httptest.NewRequest("GET", "/", nil)
	second.Header.Set("User-Agent", "curl/8.0")
	second.Header.Set("Accept-Language", "fr-FR")

	if session.FingerprintMatches(session.Fingerprint(first), session.Fingerprint(second)) {
		t.Error("different user agents should not match")
	}

	if session.FingerprintMatches(session.Fingerprint(first), nil) {
		t.Error("nil fingerprint should never match")
	}
}
