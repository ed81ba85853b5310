package oauth

import "strings"

// Prompt is the parsed OpenID Connect prompt parameter.
type Prompt struct {
	// Interactive is false when "none" was requested: no UI may be shown.
	Interactive   bool
	Login         bool
	Consent       bool
	SelectAccount bool
}

// ParsePrompt parses the space-delimited prompt parameter. It reports
// failure when "none" is combined with another value or when an unknown
// value appears.
func ParsePrompt(raw string) (Prompt, bool) {
	prompt := Prompt{Interactive: true}
	if raw == "" {
		return prompt, true
	}

	values := make(map[string]struct{})
	for _, value := range strings.Fields(raw) {
		values[value] = struct{}{}
	}

	if _, ok := values["none"]; ok {
		delete(values, "none")
		prompt.Interactive = false
		if len(values) != 0 {
			// none must be alone
			return Prompt{}, false
		}
		return prompt, true
	}

	if _, ok := values["login"]; ok {
		delete(values, "login")
		prompt.Login = true
	}
	if _, ok := values["consent"]; ok {
		delete(values, "consent")
		prompt.Consent = true
	}
	if _, ok := values["select_account"]; ok {
		delete(values, "select_account")
		prompt.SelectAccount = true
	}
	if len(values) != 0 {
		return Prompt{}, false
	}
	return prompt, true
}

// String renders the prompt back to its parameter form. The zero value
// renders as "none".
func (p Prompt) String() string {
	if !p.Interactive {
		return "none"
	}
	values := make([]string, 0, 3)
	if p.Login {
		values = append(values, "login")
	}
	if p.Consent {
		values = append(values, "consent")
	}
	if p.SelectAccount {
		values = append(values, "select_account")
	}
	return strings.Join(values, " ")
}
