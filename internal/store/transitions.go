package store

import (
	"time"

	"github.com/aivideotool/api/internal/model"
)

// The apply functions below are shared by every JobStore implementation.
// Each one mutates job in place or returns an error and leaves it untouched.

func applyClaim(job *model.Job, now time.Time) error {
	switch {
	case job.Status.IsTerminal():
		return ErrJobAlreadyTerminal
	case job.Status != model.JobStatusPending:
		return ErrAlreadyClaimed
	}
	job.Status = model.JobStatusProcessing
	job.Progress = max(job.Progress, model.ProgressProcessing)
	job.Message = model.MessageProcessing
	job.StartedAt = &now
	return nil
}

func applyCheckpoint(job *model.Job, progress int, message string) error {
	switch {
	case job.Status.IsTerminal():
		return ErrJobAlreadyTerminal
	case job.Status != model.JobStatusProcessing:
		return ErrJobNotClaimed
	}
	job.Progress = max(job.Progress, min(progress, model.ProgressCompleted))
	job.Message = message
	return nil
}

func applyComplete(job *model.Job, c Completion, now time.Time) error {
	switch {
	case job.Status.IsTerminal():
		return ErrJobAlreadyTerminal
	case job.Status != model.JobStatusProcessing:
		return ErrJobNotClaimed
	}
	ref := c.ResultRef
	job.Status = model.JobStatusCompleted
	job.Progress = model.ProgressCompleted
	job.Message = model.MessageCompleted
	job.ResultRef = &ref
	job.MirrorURL = c.MirrorURL
	job.CompletedAt = &now
	return nil
}

func applyFail(job *model.Job, message string, now time.Time) error {
	if job.Status.IsTerminal() {
		return ErrJobAlreadyTerminal
	}
	if message == "" {
		message = "failed"
	}
	job.Status = model.JobStatusFailed
	job.Message = message
	job.CompletedAt = &now
	return nil
}

func applyCancel(job *model.Job, message string, now time.Time) error {
	if job.Status.IsTerminal() {
		return ErrJobAlreadyTerminal
	}
	if message == "" {
		message = model.MessageCancelled
	}
	job.Status = model.JobStatusCancelled
	job.Message = message
	job.CompletedAt = &now
	return nil
}

func checkDeletable(job *model.Job) error {
	if !job.Status.IsTerminal() {
		return ErrJobNotTerminal
	}
	return nil
}

func cloneJob(job *model.Job) *model.Job {
	c := *job
	return &c
}
