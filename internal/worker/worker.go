// Package worker contains the background task handlers. Each handler claims its
// job record, walks fixed progress checkpoints and always leaves the job in a
// terminal state, even when it panics.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/aivideotool/api/internal/model"
	"github.com/aivideotool/api/internal/queue"
	"github.com/aivideotool/api/internal/store"
)

// Broadcaster pushes job updates to live subscribers
type Broadcaster interface {
	BroadcastProgress(job *model.Job)
	BroadcastComplete(job *model.Job)
	BroadcastError(jobID string, code, message string)
}

type nopBroadcaster struct{}

func (nopBroadcaster) BroadcastProgress(*model.Job) {}

func (nopBroadcaster) BroadcastComplete(*model.Job) {}

func (nopBroadcaster) BroadcastError(string, string, string) {}

func orNop(hub Broadcaster) Broadcaster {
	if hub == nil {
		return nopBroadcaster{}
	}
	return hub
}

// NewMux routes task types to their handlers
func NewMux(compose *ComposeWorker, images *ImageWorker, cleanup *CleanupWorker) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskTypeCompose, compose.ProcessTask)
	mux.HandleFunc(queue.TaskTypeImages, images.ProcessTask)
	mux.HandleFunc(queue.TaskTypeCleanup, cleanup.ProcessTask)
	return mux
}

// tracker wraps the job store calls every worker makes for a single job
type tracker struct {
	jobs   store.JobStore
	hub    Broadcaster
	jobID  string
	logger zerolog.Logger
}

// claim takes ownership of the job. It returns false when another worker
// owns it or it already finished, both of which are logged and ignored.
// Any other store error fails the job so it does not stay pending.
func (t *tracker) claim(ctx context.Context) bool {
	job, err := t.jobs.Claim(ctx, t.jobID)
	switch {
	case err == nil:
		t.logger.Info().Msg("Job started")
		t.hub.BroadcastProgress(job)
		return true
	case errors.Is(err, store.ErrJobAlreadyTerminal):
		t.logger.Info().Msg("Job already finished, skipping")
	case errors.Is(err, store.ErrAlreadyClaimed):
		t.logger.Warn().Msg("Job already claimed by another worker, skipping")
	default:
		t.logger.Error().Err(err).Msg("Failed to claim job")
		t.fail(ctx, fmt.Sprintf("starting job failed: %v", err))
	}
	return false
}

// cancelled reports whether the job was cancelled (or otherwise finished) behind our back
func (t *tracker) cancelled(ctx context.Context) bool {
	job, err := t.jobs.Get(ctx, t.jobID)
	if err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			t.logger.Warn().Msg("Job record disappeared, stopping")
			return true
		}
		// the next write will surface a persistent store problem
		t.logger.Warn().Err(err).Msg("Failed to read job status")
		return false
	}
	if job.Status.IsTerminal() {
		t.logger.Info().Str("status", string(job.Status)).Msg("Job stopped externally")
		return true
	}
	return false
}

// checkpoint records progress. It returns false when the job is no longer writable;
// a store error other than a terminal job fails it.
func (t *tracker) checkpoint(ctx context.Context, progress int, message string) bool {
	job, err := t.jobs.Checkpoint(ctx, t.jobID, progress, message)
	if err != nil {
		if errors.Is(err, store.ErrJobAlreadyTerminal) {
			t.logger.Info().Msg("Job stopped externally, dropping checkpoint")
		} else {
			t.logger.Error().Err(err).Int("progress", progress).Msg("Failed to record checkpoint")
			t.fail(ctx, fmt.Sprintf("recording progress failed: %v", err))
		}
		return false
	}
	t.logger.Debug().Int("progress", job.Progress).Str("message", job.Message).Msg("Checkpoint")
	t.hub.BroadcastProgress(job)
	return true
}

// fail records a terminal failure. It runs even when ctx was cancelled by shutdown.
func (t *tracker) fail(ctx context.Context, message string) {
	ctx = context.WithoutCancel(ctx)
	job, err := t.jobs.Fail(ctx, t.jobID, message)
	if err != nil {
		if errors.Is(err, store.ErrJobAlreadyTerminal) {
			t.logger.Info().Msg("Job already finished, failure not recorded")
			return
		}
		t.logger.Error().Err(err).Str("message", message).Msg("Failed to record job failure")
		return
	}
	t.logger.Warn().Int("progress", job.Progress).Str("message", message).Msg("Job failed")
	t.hub.BroadcastError(t.jobID, "JOB_FAILED", message)
}

func (t *tracker) complete(ctx context.Context, c store.Completion) bool {
	job, err := t.jobs.Complete(ctx, t.jobID, c)
	if err != nil {
		if errors.Is(err, store.ErrJobAlreadyTerminal) {
			t.logger.Info().Msg("Job stopped externally before completion")
		} else {
			t.logger.Error().Err(err).Msg("Failed to record completion")
			t.fail(ctx, fmt.Sprintf("recording result failed: %v", err))
		}
		return false
	}
	t.logger.Info().Str("result", c.ResultRef).Msg("Job completed")
	t.hub.BroadcastComplete(job)
	return true
}

// recoverPanic turns a panic in the job body into a failed job
func (t *tracker) recoverPanic(ctx context.Context) {
	if r := recover(); r != nil {
		t.logger.Error().
			Interface("panic", r).
			Bytes("stack", debug.Stack()).
			Msg("Worker panicked")
		t.fail(ctx, fmt.Sprintf("internal error: %v", r))
	}
}
