package handler

import (
	"log/slog"
	"net/http"

	"github.com/calmid/go-grant/internal/config"
	"github.com/calmid/go-grant/internal/jwks"
	"github.com/calmid/go-grant/internal/web/encoding"
)

type openIDConfiguration struct {
	Issuer                           string   `json:"issuer"`
	AuthorizationEndpoint            string   `json:"authorization_endpoint"`
	TokenEndpoint                    string   `json:"token_endpoint"`
	JwksURI                          string   `json:"jwks_uri"`
	EndSessionEndpoint               string   `json:"end_session_endpoint"`
	ResponseTypesSupported           []string `json:"response_types_supported"`
	ResponseModesSupported           []string `json:"response_modes_supported"`
	GrantTypesSupported              []string `json:"grant_types_supported"`
	SubjectTypesSupported            []string `json:"subject_types_supported"`
	ScopesSupported                  []string `json:"scopes_supported"`
	IDTokenSigningAlgValuesSupported []string `json:"id_token_signing_alg_values_supported"`
	TokenEndpointAuthMethods         []string `json:"token_endpoint_auth_methods_supported"`
	ClaimsParameterSupported         bool     `json:"claims_parameter_supported"`
	RequestParameterSupported        bool     `json:"request_parameter_supported"`
	RequestURIParameterSupported     bool     `json:"request_uri_parameter_supported"`
}

// OpenIDConfiguration serves the discovery document.
// See https://openid.net/specs/openid-connect-discovery-1_0.html
func OpenIDConfiguration(cfg *config.Config) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		_ = encoding.Encode(w, http.StatusOK, openIDConfiguration{
			Issuer:                           cfg.Issuer,
			AuthorizationEndpoint:            cfg.Issuer + "/oauth/authorize",
			TokenEndpoint:                    cfg.Issuer + "/oauth/token",
			JwksURI:                          cfg.Issuer + "/.well-known/jwks.json",
			EndSessionEndpoint:               cfg.Issuer + "/logout",
			ResponseTypesSupported:           []string{"code"},
			ResponseModesSupported:           []string{"query"},
			GrantTypesSupported:              []string{"authorization_code", "refresh_token"},
			SubjectTypesSupported:            []string{"public"},
			ScopesSupported:                  []string{"openid", "profile", "email", "offline_access"},
			IDTokenSigningAlgValuesSupported: []string{"RS256"},
			TokenEndpointAuthMethods:         []string{"client_secret_basic", "client_secret_post"},
		})
	})
}

// Keys serves the public signing keys.
func Keys(logger *slog.Logger, jwksService *jwks.Service) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		keySet, err := jwksService.KeySet(r.Context())
		if err != nil {
			logger.Error("building key set failed", "error", err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		if err := encoding.Encode(w, http.StatusOK, keySet); err != nil {
			logger.Error("encoding key set failed", "error", err)
		}
	})
}
