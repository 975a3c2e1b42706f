package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/aivideotool/api/internal/auth"
	"github.com/aivideotool/api/internal/handler"
	"github.com/aivideotool/api/internal/logging"
	"github.com/aivideotool/api/internal/middleware"
	"github.com/aivideotool/api/internal/planner"
	"github.com/aivideotool/api/internal/queue"
	"github.com/aivideotool/api/internal/server"
	"github.com/aivideotool/api/internal/service"
	ws "github.com/aivideotool/api/internal/websocket"
)

const shutdownTimeout = 10 * time.Second

var embedWorkerFlag bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Run the HTTP API. With queue.mode=asynq an embedded worker processes jobs
unless --worker=false; with queue.mode=inline jobs always run in-process.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&embedWorkerFlag, "worker", true, "Run an asynq worker in the same process")
}

func runServe(cmd *cobra.Command, args []string) error {
	rt, err := loadRuntime()
	if err != nil {
		return err
	}
	defer rt.close()
	cfg := rt.cfg

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := ws.NewHub()
	go hub.Run()
	defer hub.Stop()

	mux := rt.newMux(hub)
	g, gctx := errgroup.WithContext(ctx)

	var dispatcher queue.Dispatcher
	var inline *queue.InlineDispatcher
	if cfg.Queue.IsInline() {
		inline = queue.NewInlineDispatcher(gctx, mux, cfg.Queue.Concurrency)
		dispatcher = inline
		interval := cleanupInterval(cfg.Storage.CleanupCron)
		g.Go(func() error {
			queue.RunEvery(gctx, interval, mux, queue.TaskTypeCleanup)
			return nil
		})
	} else {
		asynqClient := asynq.NewClient(rt.asynqOpt)
		defer asynqClient.Close()
		dispatcher = queue.NewAsynqDispatcher(asynqClient, rt.taskRetention())
		if embedWorkerFlag {
			g.Go(func() error {
				return rt.runWorkerServer(gctx, mux)
			})
		}
	}

	verifier := newVerifier(rt)
	if verifier != nil {
		defer verifier.Close()
	}

	var rateLimiter *middleware.RateLimiter
	if rt.redis != nil {
		rateLimiter = middleware.NewRateLimiter(rt.redis)
	}

	required, optional := rt.checks()
	maxUpload := int64(cfg.Storage.MaxUploadMB) * 1024 * 1024
	p := planner.New(rt.files, rt.adapter)

	app := server.New(server.Deps{
		Config:      cfg,
		Validate:    validator.New(),
		Hub:         hub,
		Uploads:     service.NewUploadService(rt.files, rt.adapter, cfg.Storage.UploadDir, maxUpload),
		Compose:     service.NewComposeService(p, rt.jobs, dispatcher),
		Images:      service.NewImageService(rt.files, rt.jobs, dispatcher, rt.images, cfg.Images.MaxImages),
		Jobs:        service.NewJobService(rt.jobs, cfg.Storage.OutputDir, hub),
		Auth:        apiAuth(rt, verifier),
		AuthHandler: handler.NewAuthHandler(verifier, cfg.JWT.Secret),
		RateLimiter: rateLimiter,
		Health:      handler.NewHealthHandler(required, optional),
	})

	addr := ":" + cfg.Server.Port
	g.Go(func() error {
		return app.Listen(addr)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down server...")
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	logging.Startup("api", map[string]string{
		"addr":       addr,
		"env":        cfg.Server.Env,
		"queue":      cfg.Queue.Mode,
		"store":      cfg.Jobs.Store,
		"output_dir": cfg.Storage.OutputDir,
		"upload_dir": cfg.Storage.UploadDir,
		"workers":    strconv.Itoa(cfg.Queue.Concurrency),
	}, map[string]bool{
		"embedded_worker": cfg.Queue.IsInline() || embedWorkerFlag,
		"images":          rt.images.IsConfigured(),
		"r2_mirror":       rt.mirror != nil,
		"oidc":            verifier != nil,
		"gateway":         cfg.Gateway.Enabled,
		"rate_limit":      rateLimiter != nil,
	})

	err = g.Wait()
	if inline != nil {
		inline.Wait()
	}
	return err
}

// newVerifier sets up OIDC verification when an issuer is configured
func newVerifier(rt *runtime) auth.TokenVerifier {
	if rt.cfg.OIDC.Issuer == "" {
		return nil
	}
	v, err := auth.NewJWKSVerifier(&rt.cfg.OIDC)
	if err != nil {
		log.Warn().Err(err).Msg("JWKS verifier not initialized")
		return nil
	}
	return v
}

func apiAuth(rt *runtime, verifier auth.TokenVerifier) fiber.Handler {
	if rt.cfg.Gateway.Enabled {
		log.Info().Msg("Gateway mode enabled, using header-based auth")
		return middleware.GatewayAuthMiddleware()
	}
	return middleware.NewAuthMiddlewareWithFallback(verifier, rt.cfg.JWT.Secret).Authenticate()
}
