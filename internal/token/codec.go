package token

import (
	"encoding/base64"
	"strings"
)

// The wire form of a credential is base64url(id) "/" secret. The secret
// is itself base64url material, so "/" can never appear on either side
// and splitting on the first occurrence is unambiguous.
const separator = "/"

// Serialize renders a token id and its one-time secret into the opaque
// string handed to the bearer.
func Serialize(id, secret string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(id)) + separator + secret
}

// Deserialize splits a serialized credential back into (id, secret).
// Malformed input reports ok=false; it never panics or errors, so the
// caller can treat it as just another invalid token.
func Deserialize(serialized string) (id, secret string, ok bool) {
	pos := strings.Index(serialized, separator)
	if pos <= 0 {
		return "", "", false
	}

	rawID, err := base64.RawURLEncoding.DecodeString(serialized[:pos])
	if err != nil || len(rawID) == 0 {
		return "", "", false
	}

	return string(rawID), serialized[pos+1:], true
}
