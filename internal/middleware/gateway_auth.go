package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/aivideotool/api/internal/auth"
	"github.com/aivideotool/api/pkg/response"
)

// GatewayAuthMiddleware is used when a ForwardAuth gateway has already called
// /auth/verify; the identity arrives in the X-User-* headers that endpoint sets.
func GatewayAuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := &auth.Identity{
			UserID: c.Get("X-User-Id"),
			Email:  c.Get("X-User-Email"),
			Name:   c.Get("X-User-Name"),
		}
		if id.UserID == "" {
			return response.Unauthorized(c, "Missing user identity headers")
		}

		setIdentity(c, id)
		return c.Next()
	}
}
