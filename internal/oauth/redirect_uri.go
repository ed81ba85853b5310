package oauth

import "net/url"

// ValidRedirectURI applies the generic shape validation every redirect
// target must pass, registered or not: absolute, http or https, and
// without a fragment.
func ValidRedirectURI(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}
	if parsed.Host == "" {
		return false
	}
	return parsed.Fragment == "" && parsed.RawFragment == ""
}

// RedirectURI builds redirects back to the client, echoing the state and
// carrying either a code or an error in the query string.
type RedirectURI struct {
	base  string
	state string
}

// NewRedirectURI wraps an already-validated redirect target.
func NewRedirectURI(base string) *RedirectURI {
	return &RedirectURI{base: base}
}

func (r *RedirectURI) SetState(state string) *RedirectURI {
	r.state = state
	return r
}

// CodeURL returns the redirect target carrying the authorization code.
func (r *RedirectURI) CodeURL(code string) string {
	return r.build(url.Values{"code": []string{code}})
}

// ErrorURL returns the redirect target carrying an OAuth2 error code.
func (r *RedirectURI) ErrorURL(code ErrorCode, description string) string {
	params := url.Values{"error": []string{string(code)}}
	if description != "" {
		params.Set("error_description", description)
	}
	return r.build(params)
}

func (r *RedirectURI) build(params url.Values) string {
	if r.state != "" {
		params.Set("state", r.state)
	}

	parsed, err := url.Parse(r.base)
	if err != nil {
		// The base was validated before construction.
		panic("oauth: invalid redirect uri: " + r.base)
	}

	query := parsed.Query()
	for key, values := range params {
		for _, value := range values {
			query.Add(key, value)
		}
	}
	parsed.RawQuery = query.Encode()

	return parsed.String()
}
