// Package session binds browser sessions to the user agent that
// started them.
package session

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
)

// Fingerprint digests the stable request headers of a browser. A sid
// token presented from a different user agent fails the comparison and
// the session is treated as absent.
func Fingerprint(r *http.Request) []byte {
	digest := sha256.New()
	digest.Write([]byte(r.UserAgent()))
	digest.Write([]byte{0})
	digest.Write([]byte(r.Header.Get("Accept-Language")))

	return digest.Sum(nil)
}

func FingerprintMatches(a, b []byte) bool {
	return len(a) == len(b) && subtle.ConstantTimeCompare(a, b) == 1
}
