// Package server assembles the fiber application: global middleware, routes and
// the websocket endpoint.
package server

import (
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog/log"

	"github.com/aivideotool/api/internal/config"
	"github.com/aivideotool/api/internal/handler"
	"github.com/aivideotool/api/internal/middleware"
	"github.com/aivideotool/api/internal/service"
	ws "github.com/aivideotool/api/internal/websocket"
	"github.com/aivideotool/api/pkg/response"
)

// Deps are the collaborators the HTTP surface needs
type Deps struct {
	Config      *config.Config
	Validate    *validator.Validate
	Hub         *ws.Hub
	Uploads     *service.UploadService
	Compose     *service.ComposeService
	Images      *service.ImageService
	Jobs        *service.JobService
	Auth        fiber.Handler
	AuthHandler *handler.AuthHandler
	RateLimiter *middleware.RateLimiter // nil disables rate limiting
	Health      *handler.HealthHandler
}

// New builds the fiber app with every route registered
func New(d Deps) *fiber.App {
	cfg := d.Config
	validate := d.Validate
	if validate == nil {
		validate = validator.New()
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          customErrorHandler,
		BodyLimit:             cfg.Server.BodyLimitMB * 1024 * 1024,
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${reqHeaders}\n"
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})
	if d.Health != nil {
		app.Get("/health", d.Health.Health)
	}
	if d.AuthHandler != nil {
		app.Get("/auth/verify", d.AuthHandler.Verify)
	}

	uploadHandler := handler.NewUploadHandler(d.Uploads, int64(cfg.Storage.MaxUploadMB)*1024*1024)
	generateHandler := handler.NewGenerateHandler(d.Compose, d.Images, validate)
	jobHandler := handler.NewJobHandler(d.Jobs)
	rl := d.RateLimiter

	api := app.Group("/api", d.Auth)

	upload := api.Group("/upload", rl.UploadLimit(cfg.RateLimit.UploadPerHour))
	upload.Post("/script", uploadHandler.Script)
	upload.Post("/audio", uploadHandler.Audio)
	upload.Post("/video", uploadHandler.Video)
	api.Get("/files/:fileId", uploadHandler.GetFile)

	generate := api.Group("/generate")
	generate.Post("/broll", rl.ComposeLimit(cfg.RateLimit.ComposePerHour), generateHandler.Broll)
	generate.Post("/ai-images", rl.ImagesLimit(cfg.RateLimit.ImagesPerHour), generateHandler.Images)

	jobs := api.Group("/jobs")
	jobs.Get("/", jobHandler.List)
	jobs.Get("/:jobId", jobHandler.Status)
	jobs.Delete("/:jobId", jobHandler.Cancel)
	jobs.Post("/:jobId/cancel", jobHandler.Cancel)
	jobs.Delete("/:jobId/record", jobHandler.DeleteRecord)

	api.Get("/download/:jobId/:filename", jobHandler.Download)

	if d.Hub != nil {
		app.Use("/ws", func(c *fiber.Ctx) error {
			if websocket.IsWebSocketUpgrade(c) {
				return c.Next()
			}
			return fiber.ErrUpgradeRequired
		})
		app.Get("/ws/jobs/:jobId", websocket.New(func(c *websocket.Conn) {
			d.Hub.HandleConnection(c, c.Params("jobId"))
		}))
	}

	return app
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		message = fe.Message
	} else {
		log.Error().Err(err).Str("path", c.Path()).Msg("Unhandled request error")
	}

	errCode := response.CodeServiceError
	switch code {
	case fiber.StatusNotFound:
		errCode = response.CodeNotFound
	case fiber.StatusRequestEntityTooLarge, fiber.StatusBadRequest:
		errCode = response.CodeValidationError
	}
	return response.Error(c, code, errCode, message, nil)
}
