package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/aivideotool/api/internal/service"
	"github.com/aivideotool/api/pkg/response"
)

type JobHandler struct {
	service *service.JobService
}

func NewJobHandler(svc *service.JobService) *JobHandler {
	return &JobHandler{service: svc}
}

// Status handles GET /api/jobs/:jobId
// @Summary      Get job status
// @Description  Poll a job's status, progress and result link
// @Tags         Jobs
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Success      200 {object} model.JobResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/jobs/{jobId} [get]
func (h *JobHandler) Status(c *fiber.Ctx) error {
	result, err := h.service.GetStatus(c.UserContext(), c.Params("jobId"))
	if err != nil {
		return writeError(c, err)
	}
	return response.OK(c, result)
}

// List handles GET /api/jobs
// @Summary      List jobs
// @Tags         Jobs
// @Produce      json
// @Param        offset query int false "Offset"
// @Param        limit  query int false "Page size (max 100)"
// @Success      200 {object} model.JobListResponse
// @Failure      401 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/jobs [get]
func (h *JobHandler) List(c *fiber.Ctx) error {
	result, err := h.service.List(c.UserContext(), c.QueryInt("offset", 0), c.QueryInt("limit", 0))
	if err != nil {
		return writeError(c, err)
	}
	return response.OK(c, result)
}

// Cancel handles DELETE /api/jobs/:jobId and POST /api/jobs/:jobId/cancel
// @Summary      Cancel job
// @Description  Request cancellation. Jobs that already finished are reported unchanged.
// @Tags         Jobs
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Success      200 {object} model.JobCancelResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/jobs/{jobId} [delete]
func (h *JobHandler) Cancel(c *fiber.Ctx) error {
	result, err := h.service.Cancel(c.UserContext(), c.Params("jobId"))
	if err != nil {
		return writeError(c, err)
	}
	return response.OK(c, result)
}

// DeleteRecord handles DELETE /api/jobs/:jobId/record
// @Summary      Delete job record
// @Description  Remove the record of a finished job
// @Tags         Jobs
// @Param        jobId path string true "Job ID"
// @Success      204 "No Content"
// @Failure      404 {object} response.ErrorResponse
// @Failure      409 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/jobs/{jobId}/record [delete]
func (h *JobHandler) DeleteRecord(c *fiber.Ctx) error {
	if err := h.service.Delete(c.UserContext(), c.Params("jobId")); err != nil {
		return writeError(c, err)
	}
	return response.NoContent(c)
}

// Download handles GET /api/download/:jobId/:filename
// @Summary      Download job artifact
// @Tags         Jobs
// @Produce      octet-stream
// @Param        jobId    path string true "Job ID"
// @Param        filename path string true "Artifact file name"
// @Success      200 {file} file
// @Failure      400 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      409 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/download/{jobId}/{filename} [get]
func (h *JobHandler) Download(c *fiber.Ctx) error {
	path, err := h.service.ResultFile(c.UserContext(), c.Params("jobId"), c.Params("filename"))
	if err != nil {
		return writeError(c, err)
	}
	return c.Download(path)
}
