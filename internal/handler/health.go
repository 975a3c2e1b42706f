package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

const healthTimeout = 3 * time.Second

// Check reports whether one dependency is usable
type Check func(ctx context.Context) error

// HealthHandler aggregates dependency checks. Required checks decide the status code;
// optional ones are reported only.
type HealthHandler struct {
	required map[string]Check
	optional map[string]Check
}

func NewHealthHandler(required, optional map[string]Check) *HealthHandler {
	return &HealthHandler{
		required: required,
		optional: optional,
	}
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Health handles GET /health
// @Summary      Health check
// @Tags         Health
// @Produce      json
// @Success      200 {object} healthResponse
// @Failure      503 {object} healthResponse
// @Router       /health [get]
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), healthTimeout)
	defer cancel()

	resp := healthResponse{Status: "ok", Checks: make(map[string]string)}
	for name, check := range h.required {
		if err := check(ctx); err != nil {
			resp.Status = "degraded"
			resp.Checks[name] = err.Error()
			continue
		}
		resp.Checks[name] = "ok"
	}
	for name, check := range h.optional {
		if err := check(ctx); err != nil {
			resp.Checks[name] = "unavailable: " + err.Error()
			continue
		}
		resp.Checks[name] = "ok"
	}

	status := fiber.StatusOK
	if resp.Status != "ok" {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(resp)
}
