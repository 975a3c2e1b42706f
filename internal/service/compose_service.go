package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/aivideotool/api/internal/model"
	"github.com/aivideotool/api/internal/planner"
	"github.com/aivideotool/api/internal/queue"
	"github.com/aivideotool/api/internal/store"
)

// ComposeService accepts b-roll composition requests
type ComposeService struct {
	planner    *planner.Planner
	jobs       store.JobStore
	dispatcher queue.Dispatcher
}

func NewComposeService(p *planner.Planner, jobs store.JobStore, dispatcher queue.Dispatcher) *ComposeService {
	return &ComposeService{
		planner:    p,
		jobs:       jobs,
		dispatcher: dispatcher,
	}
}

// ComposeResult is an accepted composition job plus any planning warnings
type ComposeResult struct {
	Job      *model.Job
	Warnings []string
}

// Submit plans the composition, records a pending job and dispatches it.
// Nothing is created when planning fails.
func (s *ComposeService) Submit(ctx context.Context, req *model.CompositionRequest) (*ComposeResult, error) {
	plan, err := s.planner.Plan(ctx, req)
	if err != nil {
		return nil, err
	}

	job := newPendingJob(model.JobKindBrollComposition)
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	payload := model.CompositionTaskPayload{JobID: job.ID, Plan: *plan}
	if err := dispatch(ctx, s.jobs, s.dispatcher, queue.TaskTypeCompose, job.ID, payload); err != nil {
		return nil, err
	}

	log.Info().
		Str("job_id", job.ID).
		Int("clips", len(plan.Paths)).
		Bool("sync", plan.TargetDuration != nil).
		Bool("overlay", plan.OverlayAudio).
		Msg("Composition job submitted")

	return &ComposeResult{Job: job, Warnings: plan.Warnings}, nil
}

func newPendingJob(kind model.JobKind) *model.Job {
	return &model.Job{
		ID:        uuid.New().String(),
		Kind:      kind,
		Status:    model.JobStatusPending,
		Progress:  model.ProgressQueued,
		Message:   model.MessageQueued,
		CreatedAt: time.Now(),
	}
}

// dispatch hands the job to the queue. A job that could not be dispatched is
// failed so that it never stays pending forever.
func dispatch(ctx context.Context, jobs store.JobStore, d queue.Dispatcher, taskType, jobID string, payload interface{}) error {
	err := d.Dispatch(ctx, taskType, jobID, payload)
	if err == nil {
		return nil
	}

	log.Error().Err(err).Str("job_id", jobID).Str("task_type", taskType).Msg("Failed to dispatch job")
	if _, ferr := jobs.Fail(context.WithoutCancel(ctx), jobID, "dispatch failed: "+err.Error()); ferr != nil {
		log.Error().Err(ferr).Str("job_id", jobID).Msg("Failed to mark undispatched job failed")
	}
	return fmt.Errorf("%w: %v", ErrDispatchFailed, err)
}
