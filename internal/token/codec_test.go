package token_test

import (
	"testing"

	"github.com/calmid/go-grant/internal/token"
)

func TestSerializeRoundTrip(t *testing.T) {
	t.Parallel()

	pairs := []struct {
		id     string
		secret string
	}{
		{"4f7a9c2e-1111-2222-3333-444455556666", "c2VjcmV0"},
		{"a", "b"},
		{"id-with-dash_and_underscore", "X1-_Y2"},
		{"unicode-éâ", "cGFzcw"},
	}

	for _, pair := range pairs {
		serialized := token.Serialize(pair.id, pair.secret)

		id, secret, ok := token.Deserialize(serialized)
		if !ok {
			t.Errorf("Deserialize(Serialize(%q, %q)) failed", pair.id, pair.secret)
			continue
		}
		if id != pair.id || secret != pair.secret {
			t.Errorf("round trip = (%q, %q), want (%q, %q)", id, secret, pair.id, pair.secret)
		}
	}
}

func TestDeserializeSplitsOnFirstSeparator(t *testing.T) {
	t.Parallel()

	// A secret containing the separator must survive intact: only the
	// first occurrence splits.
	serialized := token.Serialize("some-id", "left/right")

	id, secret, ok := token.Deserialize(serialized)
	if !ok {
		t.Fatal("expected deserialization to succeed")
	}
	if id != "some-id" {
		t.Errorf("id = %q, want some-id", id)
	}
	if secret != "left/right" {
		t.Errorf("secret = %q, want left/right", secret)
	}
}

func TestDeserializeMalformed(t *testing.T) {
	t.Parallel()

	malformed := []string{
		"",
		"nosecret",
		"/secret",
		"not!base64/secret",
		"/",
	}

	for _, input := range malformed {
		if _, _, ok := token.Deserialize(input); ok {
			t.Errorf("Deserialize(%q) succeeded, want failure", input)
		}
	}
}
