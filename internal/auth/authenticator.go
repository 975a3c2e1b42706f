package auth

import (
	"errors"
	"strings"
)

var (
	ErrMissingToken  = errors.New("missing or malformed authorization header")
	ErrInvalidToken  = errors.New("invalid or expired token")
	ErrNotConfigured = errors.New("authentication not configured")
)

// Identity is the caller resolved from a token
type Identity struct {
	UserID string
	Email  string
	Name   string
}

// Authenticator tries JWKS verification first and falls back to legacy HMAC
// tokens when a secret is set. Either may be absent.
type Authenticator struct {
	verifier  TokenVerifier
	jwtSecret string
}

func NewAuthenticator(verifier TokenVerifier, jwtSecret string) *Authenticator {
	return &Authenticator{
		verifier:  verifier,
		jwtSecret: jwtSecret,
	}
}

// FromHeader authenticates the value of an Authorization header
func (a *Authenticator) FromHeader(header string) (*Identity, error) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return nil, ErrMissingToken
	}
	return a.Authenticate(parts[1])
}

// Authenticate verifies a bare token
func (a *Authenticator) Authenticate(tokenString string) (*Identity, error) {
	if a.verifier == nil && a.jwtSecret == "" {
		return nil, ErrNotConfigured
	}

	if a.verifier != nil {
		claims, err := a.verifier.Validate(tokenString)
		if err == nil {
			return &Identity{UserID: claims.UserID, Email: claims.Email, Name: claims.Name}, nil
		}
		if a.jwtSecret == "" {
			return nil, ErrInvalidToken
		}
	}

	claims, err := ValidateLegacyToken(tokenString, a.jwtSecret)
	if err != nil {
		return nil, ErrInvalidToken
	}
	return &Identity{UserID: claims.UserID, Email: claims.Email}, nil
}
