package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvProduction  Environment = "production"
	EnvTesting     Environment = "testing"
)

func (e Environment) IsValid() bool {
	switch e {
	case EnvDevelopment, EnvProduction, EnvTesting:
		return true
	}
	return false
}

type Config struct {
	Server   Server
	Database Database
	Redis    Redis
	Tokens   Tokens

	// Issuer is the external base URL, used as the OpenID Connect
	// issuer and as the base for redirects.
	Issuer string

	// PortalClientID identifies the first-party portal client whose
	// needed scopes are granted without a consent prompt.
	PortalClientID string
}

type Server struct {
	Port         int
	Environment  Environment
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

func (s Server) IsProduction() bool {
	return s.Environment == EnvProduction
}

type Database struct {
	// URL selects the Postgres token repository when set. Empty means
	// the embedded sqlite datastore under DataDir.
	URL             string
	DataDir         string
	MaxOpenConns    int32
	MaxIdleConns    int32
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

type Redis struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Tokens holds the lifetime of every token kind.
type Tokens struct {
	AuthorizationCode    time.Duration
	AccessToken          time.Duration
	RefreshToken         time.Duration
	SidToken             time.Duration
	AccountActivation    time.Duration
	ChangePassword       time.Duration
	SetPassword          time.Duration
	MembershipInvitation time.Duration
}

// Load builds the configuration from the environment, falling back to
// development defaults.
func Load() (*Config, error) {
	cfg := Default()

	if env := os.Getenv("ENVIRONMENT"); env != "" {
		cfg.Server.Environment = Environment(env)
		if !cfg.Server.Environment.IsValid() {
			return nil, fmt.Errorf("invalid ENVIRONMENT: %s", env)
		}
	}

	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT: %w", err)
		}
		cfg.Server.Port = p
	}

	if issuer := os.Getenv("ISSUER"); issuer != "" {
		cfg.Issuer = issuer
	}

	if clientID := os.Getenv("PORTAL_CLIENT_ID"); clientID != "" {
		cfg.PortalClientID = clientID
	}

	if url := os.Getenv("DATABASE_URL"); url != "" {
		cfg.Database.URL = url
	}

	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		stat, err := os.Stat(dataDir)
		if err != nil {
			return nil, fmt.Errorf("invalid DATA_DIR: %w", err)
		}
		if !stat.IsDir() {
			return nil, fmt.Errorf("DATA_DIR is not a directory: %s", dataDir)
		}
		cfg.Database.DataDir = dataDir
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Enabled = true
		cfg.Redis.Addr = addr
		cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")
		if db := os.Getenv("REDIS_DB"); db != "" {
			n, err := strconv.Atoi(db)
			if err != nil {
				return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
			}
			cfg.Redis.DB = n
		}
	}

	for _, ttl := range []struct {
		env string
		dst *time.Duration
	}{
		{"AUTHORIZATION_CODE_TTL", &cfg.Tokens.AuthorizationCode},
		{"ACCESS_TOKEN_TTL", &cfg.Tokens.AccessToken},
		{"REFRESH_TOKEN_TTL", &cfg.Tokens.RefreshToken},
		{"SID_TOKEN_TTL", &cfg.Tokens.SidToken},
	} {
		if raw := os.Getenv(ttl.env); raw != "" {
			d, err := time.ParseDuration(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid %s: %w", ttl.env, err)
			}
			*ttl.dst = d
		}
	}

	return cfg, nil
}

// Default returns the development defaults.
func Default() *Config {
	return &Config{
		Server: Server{
			Port:         8080,
			Environment:  EnvDevelopment,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  2 * time.Minute,
		},
		Database: Database{
			DataDir:         os.TempDir(),
			MaxOpenConns:    10,
			MaxIdleConns:    3,
			ConnMaxLifetime: time.Hour,
			ConnMaxIdleTime: 15 * time.Minute,
		},
		Redis: Redis{
			Prefix: "go-grant:",
		},
		Tokens: Tokens{
			AuthorizationCode:    time.Minute,
			AccessToken:          time.Hour,
			RefreshToken:         90 * 24 * time.Hour,
			SidToken:             12 * time.Hour,
			AccountActivation:    48 * time.Hour,
			ChangePassword:       30 * time.Minute,
			SetPassword:          30 * time.Minute,
			MembershipInvitation: 14 * 24 * time.Hour,
		},
		Issuer:         "http://localhost:8080",
		PortalClientID: "portal",
	}
}
