package authn

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

// Hasher derives and verifies salted digests of token one-time secrets.
// Implementations must compare digests in constant time.
type Hasher interface {
	CreateSalt() ([]byte, error)
	HashSecret(secret string, salt []byte) []byte
	CheckSecret(secret string, hash, salt []byte) bool
}

const (
	saltLength       = 16
	pbkdf2Iterations = 10_000
	pbkdf2KeyLength  = 32
)

type pbkdf2Hasher struct{}

// NewHasher returns the PBKDF2-SHA256 secret hasher.
func NewHasher() Hasher {
	return pbkdf2Hasher{}
}

func (pbkdf2Hasher) CreateSalt() ([]byte, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("create salt: %w", err)
	}
	return salt, nil
}

func (pbkdf2Hasher) HashSecret(secret string, salt []byte) []byte {
	return pbkdf2.Key([]byte(secret), salt, pbkdf2Iterations, pbkdf2KeyLength, sha256.New)
}

func (h pbkdf2Hasher) CheckSecret(secret string, hash, salt []byte) bool {
	computed := h.HashSecret(secret, salt)
	return subtle.ConstantTimeCompare(computed, hash) == 1
}
