package oauth_test

import (
	"testing"

	"github.com/calmid/go-grant/internal/oauth"
)

func TestParsePrompt(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want oauth.Prompt
		ok   bool
	}{
		{"", oauth.Prompt{Interactive: true}, true},
		{"none", oauth.Prompt{Interactive: false}, true},
		{"login", oauth.Prompt{Interactive: true, Login: true}, true},
		{"consent", oauth.Prompt{Interactive: true, Consent: true}, true},
		{"login consent", oauth.Prompt{Interactive: true, Login: true, Consent: true}, true},
		{"select_account", oauth.Prompt{Interactive: true, SelectAccount: true}, true},
		{"none login", oauth.Prompt{}, false},
		{"bogus", oauth.Prompt{}, false},
		{"login bogus", oauth.Prompt{}, false},
	}

	for _, tt := range tests {
		got, ok := oauth.ParsePrompt(tt.raw)
		if ok != tt.ok {
			t.Errorf("ParsePrompt(%q) ok = %v, want %v", tt.raw, ok, tt.ok)
			continue
		}
		if ok && got != tt.want {
			t.Errorf("ParsePrompt(%q) = %+v, want %+v", tt.raw, got, tt.want)
		}
	}
}

func TestPromptString(t *testing.T) {
	t.Parallel()

	if got := (oauth.Prompt{}).String(); got != "none" {
		t.Errorf("String() = %q, want none", got)
	}
	if got := (oauth.Prompt{Interactive: true, Consent: true}).String(); got != "consent" {
		t.Errorf("String() = %q, want consent", got)
	}
	if got := (oauth.Prompt{Interactive: true}).String(); got != "" {
		t.Errorf("String() = %q, want empty", got)
	}
}
