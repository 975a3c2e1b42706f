package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/aivideotool/api/internal/auth"
)

// AuthHandler answers ForwardAuth checks from the API gateway
type AuthHandler struct {
	authenticator *auth.Authenticator
}

func NewAuthHandler(verifier auth.TokenVerifier, jwtSecret string) *AuthHandler {
	return &AuthHandler{authenticator: auth.NewAuthenticator(verifier, jwtSecret)}
}

// Verify handles GET /auth/verify. Success returns 200 with X-User-* headers.
func (h *AuthHandler) Verify(c *fiber.Ctx) error {
	id, err := h.authenticator.FromHeader(c.Get("Authorization"))
	if err != nil {
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	c.Set("X-User-Id", id.UserID)
	c.Set("X-User-Email", id.Email)
	if id.Name != "" {
		c.Set("X-User-Name", id.Name)
	}
	return c.SendStatus(fiber.StatusOK)
}
