package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/aivideotool/api/internal/auth"
	"github.com/aivideotool/api/pkg/response"
)

// AuthMiddleware authenticates bearer tokens
type AuthMiddleware struct {
	authenticator *auth.Authenticator
}

// NewAuthMiddleware creates auth middleware backed by OIDC JWKS verification
func NewAuthMiddleware(verifier auth.TokenVerifier) *AuthMiddleware {
	return NewAuthMiddlewareWithFallback(verifier, "")
}

// NewAuthMiddlewareWithFallback accepts JWKS tokens first and legacy HMAC tokens second
func NewAuthMiddlewareWithFallback(verifier auth.TokenVerifier, jwtSecret string) *AuthMiddleware {
	return &AuthMiddleware{authenticator: auth.NewAuthenticator(verifier, jwtSecret)}
}

// NewLegacyAuthMiddleware accepts only HMAC tokens (for testing/dev)
func NewLegacyAuthMiddleware(jwtSecret string) *AuthMiddleware {
	return NewAuthMiddlewareWithFallback(nil, jwtSecret)
}

// Authenticate validates the token from the Authorization header
func (m *AuthMiddleware) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := m.authenticator.FromHeader(c.Get("Authorization"))
		if err != nil {
			if errors.Is(err, auth.ErrNotConfigured) {
				return response.Unauthorized(c, "Authentication not configured")
			}
			return response.Unauthorized(c, err.Error())
		}

		setIdentity(c, id)
		return c.Next()
	}
}

// identityKey is the fiber local holding the caller's *auth.Identity
const identityKey = "identity"

func setIdentity(c *fiber.Ctx, id *auth.Identity) {
	c.Locals(identityKey, id)
}

// GetUserID returns the authenticated caller's id, or "" before authentication
func GetUserID(c *fiber.Ctx) string {
	if id, ok := c.Locals(identityKey).(*auth.Identity); ok {
		return id.UserID
	}
	return ""
}
