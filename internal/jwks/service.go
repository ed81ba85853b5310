package jwks

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/calmid/go-grant/internal/cache"
	"github.com/calmid/go-grant/internal/clock"
	"github.com/calmid/go-grant/internal/model"
	"github.com/calmid/go-grant/internal/store"
)

const (
	keySize     = 2048
	keySetCache = "jwks:keys"
	keySetTTL   = 24 * time.Hour
)

var ErrInvalidIDToken = errors.New("jwks: invalid id token")

// IDTokenClaims is the claim set of an issued ID token.
type IDTokenClaims struct {
	jwt.RegisteredClaims
	Nonce    string `json:"nonce,omitempty"`
	AuthTime int64  `json:"auth_time,omitempty"`
}

// Store persists key pairs. Absence is reported with
// store.ErrJwksNotFound.
type Store interface {
	Create(ctx context.Context, jwks model.Jwks) error
	FirstActive(ctx context.Context) (*model.Jwks, error)
	GetByID(ctx context.Context, id string) (*model.Jwks, error)
	All(ctx context.Context) ([]*model.Jwks, error)
}

type Service struct {
	store  Store
	cache  *cache.Service
	clock  clock.Clock
	logger *slog.Logger
}

func NewService(jwksStore Store, cacheService *cache.Service, clk clock.Clock, logger *slog.Logger) *Service {
	return &Service{
		store:  jwksStore,
		cache:  cacheService,
		clock:  clk,
		logger: logger,
	}
}

// EnsureKey generates and persists a signing key pair when none exists
// yet. Called once on startup.
func (s *Service) EnsureKey(ctx context.Context) error {
	_, err := s.store.FirstActive(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrJwksNotFound) {
		return err
	}

	privateKey, err := rsa.GenerateKey(rand.Reader, keySize)
	if err != nil {
		return fmt.Errorf("generating rsa key failed: %w", err)
	}

	privateKeyBytes, err := x509.MarshalPKCS8PrivateKey(privateKey)
	if err != nil {
		return fmt.Errorf("marshalling private key failed: %w", err)
	}
	publicKeyBytes, err := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
	if err != nil {
		return fmt.Errorf("marshalling public key failed: %w", err)
	}

	jwks := model.Jwks{
		ID: uuid.NewString(),
		PrivateKey: pem.EncodeToMemory(&pem.Block{
			Type:  "PRIVATE KEY",
			Bytes: privateKeyBytes,
		}),
		PublicKey: pem.EncodeToMemory(&pem.Block{
			Type:  "PUBLIC KEY",
			Bytes: publicKeyBytes,
		}),
		CreatedAt: s.clock.Now(),
	}

	if err := s.store.Create(ctx, jwks); err != nil {
		return fmt.Errorf("persisting signing key failed: %w", err)
	}

	s.logger.Info("generated new signing key", "kid", jwks.ID)
	return nil
}

// SignIDToken signs the claims with the newest key, RS256, carrying the
// key id in the header so verifiers can pick the right public key.
func (s *Service) SignIDToken(ctx context.Context, claims IDTokenClaims) (string, error) {
	jwks, err := s.store.FirstActive(ctx)
	if err != nil {
		return "", err
	}

	privateKey, err := jwt.ParseRSAPrivateKeyFromPEM(jwks.PrivateKey)
	if err != nil {
		return "", fmt.Errorf("parsing private key failed: %w", err)
	}

	idToken := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	idToken.Header["kid"] = jwks.ID

	return idToken.SignedString(privateKey)
}

// VerifyIDToken checks the signature of an id_token_hint and returns
// its claims. Expiry is deliberately not enforced; a hint may refer to
// a session that already ended.
func (s *Service) VerifyIDToken(ctx context.Context, raw string) (*IDTokenClaims, error) {
	var claims IDTokenClaims

	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}

		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("missing kid header")
		}

		jwks, err := s.store.GetByID(ctx, kid)
		if err != nil {
			return nil, err
		}

		return jwt.ParseRSAPublicKeyFromPEM(jwks.PublicKey)
	}, jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, ErrInvalidIDToken
	}

	return &claims, nil
}

// KeySet builds the public key set document. The document is cached
// for a day; key generation invalidates nothing because keys are only
// ever added on startup.
func (s *Service) KeySet(ctx context.Context) (*JWKSet, error) {
	var cached JWKSet
	if err := s.cache.Get(ctx, keySetCache, &cached); err == nil {
		return &cached, nil
	}

	sets, err := s.store.All(ctx)
	if err != nil {
		return nil, err
	}

	keySet := JWKSet{Keys: make([]JWK, 0, len(sets))}
	for _, jwks := range sets {
		block, _ := pem.Decode(jwks.PublicKey)
		if block == nil {
			continue
		}
		parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			continue
		}
		publicKey, ok := parsed.(*rsa.PublicKey)
		if !ok {
			continue
		}

		keySet.Keys = append(keySet.Keys, JWK{
			KTY: "RSA",
			Use: "sig",
			Alg: "RS256",
			KID: jwks.ID,
			N:   base64RawURL(publicKey.N.Bytes()),
			E:   encodeUint(publicKey.E),
		})
	}

	if err := s.cache.Set(ctx, keySetCache, keySet, keySetTTL); err != nil {
		s.logger.Warn("caching key set failed", "error", err)
	}

	return &keySet, nil
}
