package queue

import (
	"context"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"
)

// InlineDispatcher runs tasks on goroutines in the current process through the
// same asynq handler the worker server uses. Jobs do not survive a restart.
type InlineDispatcher struct {
	handler asynq.Handler
	base    context.Context
	sem     chan struct{}
	wg      sync.WaitGroup
}

var _ Dispatcher = (*InlineDispatcher)(nil)

// NewInlineDispatcher runs at most concurrency tasks at once. Tasks run under
// base, not under the submitting request's context.
func NewInlineDispatcher(base context.Context, handler asynq.Handler, concurrency int) *InlineDispatcher {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &InlineDispatcher{
		handler: handler,
		base:    base,
		sem:     make(chan struct{}, concurrency),
	}
}

func (d *InlineDispatcher) Dispatch(_ context.Context, taskType, jobID string, payload interface{}) error {
	task, err := NewTask(taskType, payload)
	if err != nil {
		return err
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		select {
		case d.sem <- struct{}{}:
		case <-d.base.Done():
			return
		}
		defer func() { <-d.sem }()

		if err := d.handler.ProcessTask(d.base, task); err != nil {
			log.Error().Err(err).Str("job_id", jobID).Str("task_type", taskType).Msg("Inline task failed")
		}
	}()
	return nil
}

// Wait blocks until every dispatched task has returned
func (d *InlineDispatcher) Wait() {
	d.wg.Wait()
}

// RunEvery invokes taskType on handler every interval until ctx is done.
// It stands in for the asynq scheduler when running inline.
func RunEvery(ctx context.Context, interval time.Duration, handler asynq.Handler, taskType string) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := handler.ProcessTask(ctx, asynq.NewTask(taskType, nil)); err != nil {
				log.Error().Err(err).Str("task_type", taskType).Msg("Periodic task failed")
			}
		}
	}
}
