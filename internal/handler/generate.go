package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/aivideotool/api/internal/model"
	"github.com/aivideotool/api/internal/service"
	"github.com/aivideotool/api/pkg/response"
)

type GenerateHandler struct {
	compose   *service.ComposeService
	images    *service.ImageService
	validator *validator.Validate
}

func NewGenerateHandler(compose *service.ComposeService, images *service.ImageService, v *validator.Validate) *GenerateHandler {
	return &GenerateHandler{
		compose:   compose,
		images:    images,
		validator: v,
	}
}

// Broll handles POST /api/generate/broll
// @Summary      Compose b-roll
// @Description  Queue a composition of intro and shuffled b-roll clips, optionally synced to and overlaid with a voiceover
// @Tags         Generate
// @Accept       json
// @Produce      json
// @Param        request body model.CompositionRequest true "Composition request"
// @Success      202 {object} model.JobSubmitResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Failure      503 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/generate/broll [post]
func (h *GenerateHandler) Broll(c *fiber.Ctx) error {
	var req model.CompositionRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.compose.Submit(c.UserContext(), &req)
	if err != nil {
		return writeError(c, err)
	}

	return response.Accepted(c, model.NewJobSubmitResponse(result.Job, result.Warnings))
}

// Images handles POST /api/generate/ai-images
// @Summary      Generate scene images
// @Description  Queue one illustration per script segment, timed against the voiceover
// @Tags         Generate
// @Accept       json
// @Produce      json
// @Param        request body model.ImageGenerationRequest true "Image generation request"
// @Success      202 {object} model.JobSubmitResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Failure      503 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/generate/ai-images [post]
func (h *GenerateHandler) Images(c *fiber.Ctx) error {
	var req model.ImageGenerationRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	job, err := h.images.Submit(c.UserContext(), &req)
	if err != nil {
		return writeError(c, err)
	}

	return response.Accepted(c, model.NewJobSubmitResponse(job, nil))
}
