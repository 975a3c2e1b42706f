package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/aivideotool/api/internal/client"
	"github.com/aivideotool/api/internal/config"
	"github.com/aivideotool/api/internal/handler"
	"github.com/aivideotool/api/internal/logging"
	"github.com/aivideotool/api/internal/media"
	"github.com/aivideotool/api/internal/queue"
	"github.com/aivideotool/api/internal/store"
	"github.com/aivideotool/api/internal/worker"
)

const defaultCleanupInterval = time.Hour

// runtime holds the components shared by every subcommand
type runtime struct {
	cfg      *config.Config
	redis    *redis.Client // nil when nothing needs Redis
	asynqOpt asynq.RedisClientOpt
	jobs     store.JobStore
	files    store.FileStore
	adapter  *media.FFmpeg
	images   *client.ImagesClient
	mirror   *client.R2Client // nil when R2 is not configured
}

func loadRuntime() (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logging.Init(cfg.Server.LogLevel, cfg.Server.LogFormat)

	if cfg.Jobs.IsMemory() && !cfg.Queue.IsInline() {
		return nil, errors.New("jobs.store=memory requires queue.mode=inline")
	}

	rt := &runtime{
		cfg: cfg,
		asynqOpt: asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		adapter: media.NewFFmpeg(&cfg.Media),
		images:  client.NewImagesClient(&cfg.Images),
	}

	if !cfg.Jobs.IsMemory() || !cfg.Queue.IsInline() {
		rt.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rt.redis.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("Redis not available")
		}
	}

	if cfg.Jobs.IsMemory() {
		rt.jobs = store.NewMemoryJobStore()
		rt.files = store.NewMemoryFileStore()
	} else {
		rt.jobs = store.NewRedisJobStore(rt.redis, time.Duration(cfg.Jobs.TTLHours)*time.Hour)
		rt.files = store.NewRedisFileStore(rt.redis)
	}

	if cfg.R2.AccessKeyID != "" && cfg.R2.SecretAccessKey != "" {
		rt.mirror, err = client.NewR2Client(&cfg.R2)
		if err != nil {
			log.Warn().Err(err).Msg("R2 mirror not initialized")
		}
	}

	if err := rt.adapter.CheckAvailable(); err != nil {
		log.Warn().Err(err).Msg("Media tools unavailable, composition jobs will fail")
	}
	return rt, nil
}

func (rt *runtime) close() {
	if rt.redis != nil {
		rt.redis.Close()
	}
}

// newMux builds the task handlers. hub may be nil.
func (rt *runtime) newMux(hub worker.Broadcaster) *asynq.ServeMux {
	var mirror client.StorageClient
	if rt.mirror != nil {
		mirror = rt.mirror
	}
	out := rt.cfg.Storage.OutputDir
	return worker.NewMux(
		worker.NewComposeWorker(rt.jobs, rt.adapter, out, mirror, hub),
		worker.NewImageWorker(rt.jobs, rt.images, rt.adapter, out, hub),
		worker.NewCleanupWorker(rt.files, out, time.Duration(rt.cfg.Storage.RetentionHours)*time.Hour),
	)
}

func (rt *runtime) taskRetention() time.Duration {
	return time.Duration(rt.cfg.Jobs.TTLHours) * time.Hour
}

// runWorkerServer processes queued tasks and schedules cleanup until ctx is done
func (rt *runtime) runWorkerServer(ctx context.Context, mux *asynq.ServeMux) error {
	srv := asynq.NewServer(rt.asynqOpt, asynq.Config{
		Concurrency: rt.cfg.Queue.Concurrency,
		Queues:      queue.Priorities,
		LogLevel:    queue.LogLevel(rt.cfg.Server.LogLevel),
	})
	if err := srv.Start(mux); err != nil {
		return fmt.Errorf("failed to start worker server: %w", err)
	}

	scheduler, err := queue.NewScheduler(rt.asynqOpt, rt.cfg.Storage.CleanupCron)
	if err != nil {
		srv.Shutdown()
		return err
	}
	if err := scheduler.Start(); err != nil {
		srv.Shutdown()
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	log.Info().Int("concurrency", rt.cfg.Queue.Concurrency).Msg("Worker server started")
	<-ctx.Done()

	log.Info().Msg("Shutting down worker server...")
	scheduler.Shutdown()
	srv.Shutdown()
	return nil
}

// cleanupInterval reads an "@every <duration>" schedule for the inline ticker
func cleanupInterval(expr string) time.Duration {
	if d, ok := strings.CutPrefix(strings.TrimSpace(expr), "@every "); ok {
		if interval, err := time.ParseDuration(strings.TrimSpace(d)); err == nil && interval > 0 {
			return interval
		}
	}
	log.Warn().Str("cron", expr).Dur("interval", defaultCleanupInterval).Msg("Inline cleanup only understands @every, using default")
	return defaultCleanupInterval
}

// checks returns the required and optional dependency checks
func (rt *runtime) checks() (required, optional map[string]handler.Check) {
	required = map[string]handler.Check{
		"media": func(context.Context) error {
			return rt.adapter.CheckAvailable()
		},
	}
	if rt.redis != nil {
		required["redis"] = func(ctx context.Context) error {
			return rt.redis.Ping(ctx).Err()
		}
	}

	optional = map[string]handler.Check{
		"images": func(context.Context) error {
			if !rt.images.IsConfigured() {
				return client.ErrImagesNotConfigured
			}
			return nil
		},
		"r2": func(ctx context.Context) error {
			if rt.mirror == nil {
				return errors.New("not configured")
			}
			return rt.mirror.Check(ctx)
		},
	}
	return required, optional
}
