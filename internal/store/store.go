// Package store keeps job and file records behind small repository interfaces.
//
// Every job mutation goes through one of the transition methods on JobStore, which
// enforce the job state machine:
//
//	pending -> processing -> completed | failed | cancelled
//	pending -> cancelled | failed
//
// Terminal records are never changed again; attempts return ErrJobAlreadyTerminal.
package store

import (
	"context"
	"errors"

	"github.com/aivideotool/api/internal/model"
)

var (
	ErrJobNotFound        = errors.New("job not found")
	ErrJobExists          = errors.New("job already exists")
	ErrJobAlreadyTerminal = errors.New("job already terminal")
	ErrAlreadyClaimed     = errors.New("job already claimed")
	ErrJobNotClaimed      = errors.New("job not claimed")
	ErrJobNotTerminal     = errors.New("job not terminal")
	ErrConflict           = errors.New("job record changed concurrently")
	ErrFileNotFound       = errors.New("file not found")
)

// Completion carries the result of a successfully finished job
type Completion struct {
	ResultRef string
	MirrorURL *string
}

// JobStore persists job records. Implementations must apply each transition atomically.
type JobStore interface {
	Create(ctx context.Context, job *model.Job) error
	Get(ctx context.Context, id string) (*model.Job, error)
	// List returns jobs newest first.
	List(ctx context.Context, offset, limit int) ([]*model.Job, error)

	// Claim moves a pending job to processing. Only one caller can win.
	Claim(ctx context.Context, id string) (*model.Job, error)
	// Checkpoint records progress on a processing job. Progress never decreases.
	Checkpoint(ctx context.Context, id string, progress int, message string) (*model.Job, error)
	Complete(ctx context.Context, id string, c Completion) (*model.Job, error)
	// Fail marks the job failed, leaving progress at its last checkpoint.
	Fail(ctx context.Context, id string, message string) (*model.Job, error)
	Cancel(ctx context.Context, id string, message string) (*model.Job, error)

	// Delete removes a terminal job record.
	Delete(ctx context.Context, id string) error
}

// FileStore persists uploaded file records
type FileStore interface {
	Save(ctx context.Context, rec *model.FileRecord) error
	Get(ctx context.Context, id string) (*model.FileRecord, error)
	List(ctx context.Context) ([]*model.FileRecord, error)
	Delete(ctx context.Context, id string) error
}
