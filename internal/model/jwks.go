package model

import "time"

// Jwks holds one RSA signing key pair, PEM encoded.
type Jwks struct {
	ID         string
	PublicKey  []byte
	PrivateKey []byte
	CreatedAt  time.Time
}
