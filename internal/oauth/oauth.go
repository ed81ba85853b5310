package oauth

import "strings"

const (
	ScopeOpenID        = "openid"
	ScopeOfflineAccess = "offline_access"
)

// ErrorCode is a standard OAuth2 / OpenID Connect error code.
// See https://tools.ietf.org/html/rfc6749#section-4.1.2.1
type ErrorCode string

const (
	ErrAccessDenied            ErrorCode = "access_denied"
	ErrInvalidRequest          ErrorCode = "invalid_request"
	ErrInvalidClient           ErrorCode = "invalid_client"
	ErrInvalidGrant            ErrorCode = "invalid_grant"
	ErrInvalidScope            ErrorCode = "invalid_scope"
	ErrUnauthorizedClient      ErrorCode = "unauthorized_client"
	ErrUnsupportedResponseType ErrorCode = "unsupported_response_type"
	ErrUnsupportedGrantType    ErrorCode = "unsupported_grant_type"
	ErrServerError             ErrorCode = "server_error"
	ErrTemporarilyUnavailable  ErrorCode = "temporarily_unavailable"
	ErrLoginRequired           ErrorCode = "login_required"
	ErrConsentRequired         ErrorCode = "consent_required"
	ErrRequestNotSupported     ErrorCode = "request_not_supported"
	ErrRequestURINotSupported  ErrorCode = "request_uri_not_supported"
)

type ErrorResponse struct {
	Error            ErrorCode `json:"error"`
	ErrorDescription string    `json:"error_description,omitempty"`
}

// SplitScopes splits a space-delimited scope parameter, dropping empty
// entries and duplicates while preserving order.
func SplitScopes(raw string) []string {
	fields := strings.Fields(raw)
	scopes := make([]string, 0, len(fields))
	seen := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		if _, ok := seen[field]; ok {
			continue
		}
		seen[field] = struct{}{}
		scopes = append(scopes, field)
	}
	return scopes
}

// JoinScopes is the inverse of SplitScopes.
func JoinScopes(scopes []string) string {
	return strings.Join(scopes, " ")
}

// ContainsAll reports whether all the wanted scopes appear in granted.
func ContainsAll(granted, wanted []string) bool {
	set := make(map[string]struct{}, len(granted))
	for _, scope := range granted {
		set[scope] = struct{}{}
	}
	for _, scope := range wanted {
		if _, ok := set[scope]; !ok {
			return false
		}
	}
	return true
}
