package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/aivideotool/api/internal/model"
	"github.com/aivideotool/api/internal/service"
	"github.com/aivideotool/api/pkg/response"
)

type UploadHandler struct {
	service *service.UploadService
	maxSize int64
}

func NewUploadHandler(svc *service.UploadService, maxSize int64) *UploadHandler {
	return &UploadHandler{
		service: svc,
		maxSize: maxSize,
	}
}

// Script handles POST /api/upload/script
// @Summary      Upload script
// @Description  Upload a narration script (TXT or DOCX)
// @Tags         Upload
// @Accept       multipart/form-data
// @Produce      json
// @Param        file formData file true "Script file"
// @Success      201 {object} model.UploadResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/upload/script [post]
func (h *UploadHandler) Script(c *fiber.Ctx) error {
	return h.upload(c, model.MediaKindScript, "")
}

// Audio handles POST /api/upload/audio
// @Summary      Upload voiceover
// @Description  Upload a voiceover (MP3, WAV, M4A). Its duration is recorded when it can be read.
// @Tags         Upload
// @Accept       multipart/form-data
// @Produce      json
// @Param        file formData file true "Audio file"
// @Success      201 {object} model.UploadResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/upload/audio [post]
func (h *UploadHandler) Audio(c *fiber.Ctx) error {
	return h.upload(c, model.MediaKindAudio, "")
}

// Video handles POST /api/upload/video
// @Summary      Upload video clip
// @Description  Upload a b-roll or intro clip (MP4, AVI, MOV, MKV)
// @Tags         Upload
// @Accept       multipart/form-data
// @Produce      json
// @Param        file      formData file   true  "Video file"
// @Param        videoType formData string false "broll (default) or intro"
// @Success      201 {object} model.UploadResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/upload/video [post]
func (h *UploadHandler) Video(c *fiber.Ctx) error {
	return h.upload(c, model.MediaKindVideo, model.VideoRole(c.FormValue("videoType")))
}

func (h *UploadHandler) upload(c *fiber.Ctx, kind model.MediaKind, role model.VideoRole) error {
	file, err := c.FormFile("file")
	if err != nil {
		return response.ValidationError(c, "File is required", nil)
	}

	if h.maxSize > 0 && file.Size > h.maxSize {
		return response.ValidationError(c, "File size exceeds limit", map[string]interface{}{
			"maxSize":  h.maxSize,
			"fileSize": file.Size,
		})
	}

	f, err := file.Open()
	if err != nil {
		return response.ServiceError(c, "Failed to open file")
	}
	defer f.Close()

	rec, err := h.service.Upload(c.UserContext(), service.UploadInput{
		Kind:     kind,
		Role:     role,
		Filename: file.Filename,
		Body:     f,
	})
	if err != nil {
		return writeError(c, err)
	}

	return response.Created(c, model.NewUploadResponse(rec))
}

// GetFile handles GET /api/files/:fileId
// @Summary      Get uploaded file
// @Tags         Upload
// @Produce      json
// @Param        fileId path string true "File ID"
// @Success      200 {object} model.UploadResponse
// @Failure      404 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/files/{fileId} [get]
func (h *UploadHandler) GetFile(c *fiber.Ctx) error {
	rec, err := h.service.Get(c.UserContext(), c.Params("fileId"))
	if err != nil {
		return writeError(c, err)
	}
	return response.OK(c, model.NewUploadResponse(rec))
}
