package auth

import (
	"errors"
	"time"
)

// ErrBadCredentials is returned for a wrong username or password. Callers get
// the same error for both so login responses do not leak which was wrong.
var ErrBadCredentials = errors.New("invalid username or password")

// Service authenticates the single dashboard user and issues tokens.
type Service struct {
	username     string
	passwordHash string
	jwtManager   *JWTManager
}

// Config holds dashboard auth configuration.
type Config struct {
	Enabled       bool   `json:"enabled"`
	Username      string `json:"username"`
	PasswordHash  string `json:"password_hash"`
	JWTSecret     string `json:"jwt_secret"`
	TokenLifetime string `json:"token_lifetime"`
}

// NewService creates the auth service. Returns nil when auth is disabled so
// the API can skip the middleware entirely.
func NewService(cfg Config) (*Service, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if cfg.Username == "" || cfg.PasswordHash == "" || cfg.JWTSecret == "" {
		return nil, errors.New("auth enabled but username, password_hash or jwt_secret missing")
	}

	lifetime := 12 * time.Hour
	if cfg.TokenLifetime != "" {
		d, err := time.ParseDuration(cfg.TokenLifetime)
		if err != nil {
			return nil, errors.New("invalid token_lifetime")
		}
		lifetime = d
	}

	return &Service{
		username:     cfg.Username,
		passwordHash: cfg.PasswordHash,
		jwtManager:   NewJWTManager(cfg.JWTSecret, lifetime),
	}, nil
}

// Login verifies the credentials and returns a signed token.
func (s *Service) Login(username, password string) (string, error) {
	if username != s.username || !VerifyPassword(password, s.passwordHash) {
		return "", ErrBadCredentials
	}
	return s.jwtManager.GenerateToken(username)
}

// JWTManager exposes the token manager for the API middleware.
func (s *Service) JWTManager() *JWTManager {
	return s.jwtManager
}
