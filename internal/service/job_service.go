package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/aivideotool/api/internal/model"
	"github.com/aivideotool/api/internal/store"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// CancelNotifier is told when a job is cancelled through the API
type CancelNotifier interface {
	BroadcastError(jobID string, code, message string)
}

// JobService is the read and control surface over job records
type JobService struct {
	jobs       store.JobStore
	outputRoot string
	notifier   CancelNotifier
}

// NewJobService creates a job service. notifier may be nil.
func NewJobService(jobs store.JobStore, outputRoot string, notifier CancelNotifier) *JobService {
	return &JobService{
		jobs:       jobs,
		outputRoot: outputRoot,
		notifier:   notifier,
	}
}

// GetStatus returns the polled view of a job
func (s *JobService) GetStatus(ctx context.Context, jobID string) (*model.JobResponse, error) {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return model.NewJobResponse(job), nil
}

// List returns a page of jobs, newest first
func (s *JobService) List(ctx context.Context, offset, limit int) (*model.JobListResponse, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	limit = min(limit, maxListLimit)

	jobs, err := s.jobs.List(ctx, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	resp := &model.JobListResponse{
		Jobs:   make([]model.JobResponse, 0, len(jobs)),
		Offset: offset,
		Limit:  limit,
	}
	for _, job := range jobs {
		resp.Jobs = append(resp.Jobs, *model.NewJobResponse(job))
	}
	return resp, nil
}

// Cancel requests cancellation. Cancelling a job that already finished is a
// successful no-op reporting its final status.
func (s *JobService) Cancel(ctx context.Context, jobID string) (*model.JobCancelResponse, error) {
	job, err := s.jobs.Cancel(ctx, jobID, model.MessageCancelled)
	if err != nil {
		if errors.Is(err, store.ErrJobAlreadyTerminal) && job != nil {
			return &model.JobCancelResponse{Success: true, JobID: jobID, Status: job.Status}, nil
		}
		return nil, err
	}

	log.Info().Str("job_id", jobID).Msg("Job cancelled")
	if s.notifier != nil {
		s.notifier.BroadcastError(jobID, "JOB_CANCELLED", model.MessageCancelled)
	}
	return &model.JobCancelResponse{Success: true, JobID: jobID, Status: job.Status}, nil
}

// Delete removes a finished job record. Its output directory is left to cleanup.
func (s *JobService) Delete(ctx context.Context, jobID string) error {
	if err := s.jobs.Delete(ctx, jobID); err != nil {
		return err
	}
	log.Info().Str("job_id", jobID).Msg("Job record deleted")
	return nil
}

// ResultFile returns the on-disk path of an artifact of a completed job
func (s *JobService) ResultFile(ctx context.Context, jobID, filename string) (string, error) {
	if !safeName(jobID) || !safeName(filename) {
		return "", ErrInvalidResultPath
	}

	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return "", err
	}
	if job.Status != model.JobStatusCompleted {
		return "", ErrJobNotCompleted
	}

	jobDir := filepath.Join(s.outputRoot, jobID)
	path := filepath.Join(jobDir, filename)
	rel, err := filepath.Rel(jobDir, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrInvalidResultPath
	}

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", ErrResultNotFound
	}
	return path, nil
}

func safeName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`) && !strings.ContainsRune(name, 0)
}
