// Package queue hands jobs to background workers. Submission code only sees
// Dispatcher; whether a task runs through asynq or in-process is a deployment choice.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"
)

const (
	TaskTypeCompose = "broll:compose"
	TaskTypeImages  = "images:generate"
	TaskTypeCleanup = "files:cleanup"
)

// Queue names and their asynq priorities
const (
	QueueMedia       = "media"
	QueueImages      = "images"
	QueueMaintenance = "maintenance"
)

var Priorities = map[string]int{
	QueueMedia:       6,
	QueueImages:      3,
	QueueMaintenance: 1,
}

// ErrAlreadyDispatched is returned when a task for the same job is already queued
var ErrAlreadyDispatched = errors.New("task already dispatched for job")

// Dispatcher submits a task for asynchronous execution and returns immediately
type Dispatcher interface {
	Dispatch(ctx context.Context, taskType, jobID string, payload interface{}) error
}

// NewTask encodes payload as JSON into an asynq task
func NewTask(taskType string, payload interface{}) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task payload: %w", err)
	}
	return asynq.NewTask(taskType, data), nil
}

func queueFor(taskType string) string {
	switch taskType {
	case TaskTypeCompose:
		return QueueMedia
	case TaskTypeImages:
		return QueueImages
	default:
		return QueueMaintenance
	}
}

// AsynqDispatcher enqueues tasks into Redis for the asynq worker server
type AsynqDispatcher struct {
	client    *asynq.Client
	retention time.Duration
}

var _ Dispatcher = (*AsynqDispatcher)(nil)

func NewAsynqDispatcher(client *asynq.Client, retention time.Duration) *AsynqDispatcher {
	return &AsynqDispatcher{
		client:    client,
		retention: retention,
	}
}

// Dispatch enqueues the task with the job id as task id. Tasks are never
// retried by the queue; a failed job must be resubmitted.
func (d *AsynqDispatcher) Dispatch(ctx context.Context, taskType, jobID string, payload interface{}) error {
	task, err := NewTask(taskType, payload)
	if err != nil {
		return err
	}

	info, err := d.client.EnqueueContext(ctx, task,
		asynq.Queue(queueFor(taskType)),
		asynq.TaskID(jobID),
		asynq.MaxRetry(0),
		asynq.Retention(d.retention),
	)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return ErrAlreadyDispatched
		}
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	log.Debug().
		Str("job_id", jobID).
		Str("task_type", taskType).
		Str("queue", info.Queue).
		Msg("Task enqueued")
	return nil
}

// LogLevel maps a configured level name onto asynq's logger levels
func LogLevel(level string) asynq.LogLevel {
	switch level {
	case "debug":
		return asynq.DebugLevel
	case "warn":
		return asynq.WarnLevel
	case "error":
		return asynq.ErrorLevel
	default:
		return asynq.InfoLevel
	}
}

// NewScheduler registers the periodic cleanup task on cron
func NewScheduler(opt asynq.RedisClientOpt, cron string) (*asynq.Scheduler, error) {
	scheduler := asynq.NewScheduler(opt, &asynq.SchedulerOpts{
		LogLevel: asynq.WarnLevel,
	})
	entryID, err := scheduler.Register(cron, asynq.NewTask(TaskTypeCleanup, nil), asynq.Queue(QueueMaintenance), asynq.MaxRetry(0))
	if err != nil {
		return nil, fmt.Errorf("failed to register cleanup task: %w", err)
	}
	log.Info().Str("entry_id", entryID).Str("cron", cron).Msg("Cleanup task scheduled")
	return scheduler, nil
}
