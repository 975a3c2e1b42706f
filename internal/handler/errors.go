package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/aivideotool/api/internal/client"
	"github.com/aivideotool/api/internal/planner"
	"github.com/aivideotool/api/internal/service"
	"github.com/aivideotool/api/internal/store"
	"github.com/aivideotool/api/pkg/response"
)

func formatValidationErrors(err error) interface{} {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		fields := make(map[string]string)
		for _, e := range validationErrors {
			fields[e.Field()] = e.Tag()
		}
		return fields
	}
	return nil
}

// writeError maps service and store errors onto response envelopes
func writeError(c *fiber.Ctx, err error) error {
	var (
		validation *service.ValidationError
		notFound   *planner.FileNotFoundError
		wrongKind  *planner.WrongKindError
	)

	switch {
	case errors.As(err, &validation):
		return response.ValidationError(c, validation.Message, validation.Details)
	case errors.Is(err, planner.ErrEmptyBroll):
		return response.ValidationError(c, err.Error(), nil)
	case errors.As(err, &notFound):
		return response.Error(c, fiber.StatusBadRequest, response.CodeFileNotFound, err.Error(), map[string]interface{}{
			"fileId": notFound.FileID,
		})
	case errors.As(err, &wrongKind):
		return response.ValidationError(c, err.Error(), map[string]interface{}{
			"fileId":   wrongKind.FileID,
			"expected": wrongKind.Want,
			"actual":   wrongKind.Got,
		})
	case errors.Is(err, store.ErrFileNotFound):
		return response.NotFound(c, "File not found")
	case errors.Is(err, store.ErrJobNotFound):
		return response.NotFound(c, "Job not found")
	case errors.Is(err, store.ErrJobNotTerminal):
		return response.Conflict(c, "Job is still running", nil)
	case errors.Is(err, service.ErrJobNotCompleted):
		return response.Conflict(c, "Job has not completed", nil)
	case errors.Is(err, service.ErrInvalidResultPath):
		return response.ValidationError(c, "Invalid result path", nil)
	case errors.Is(err, service.ErrResultNotFound):
		return response.NotFound(c, "Result file not found")
	case errors.Is(err, client.ErrImagesNotConfigured):
		return response.Unavailable(c, err.Error())
	case errors.Is(err, service.ErrDispatchFailed):
		return response.Unavailable(c, "Job queue unavailable, try again later")
	}

	log.Error().Err(err).Str("path", c.Path()).Msg("Request failed")
	return response.ServiceError(c, "Internal server error")
}
