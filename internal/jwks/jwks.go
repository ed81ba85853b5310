// Package jwks manages the RSA signing keys behind the issuer: key
// generation and persistence, the public key set document, and the
// signing and verification of ID tokens.
package jwks

import (
	"encoding/base64"
)

// JWK is one public key in the key set document.
type JWK struct {
	KTY string `json:"kty"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	KID string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// JWKSet is the document served on the jwks_uri endpoint.
type JWKSet struct {
	Keys []JWK `json:"keys"`
}

func base64RawURL(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

func encodeUint(v int) string {
	bytes := []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
	for len(bytes) > 1 && bytes[0] == 0 {
		bytes = bytes[1:]
	}
	return base64.RawURLEncoding.EncodeToString(bytes)
}
