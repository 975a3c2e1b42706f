package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	"github.com/aivideotool/api/internal/client"
	"github.com/aivideotool/api/internal/media"
	"github.com/aivideotool/api/internal/model"
	"github.com/aivideotool/api/internal/store"
)

// Output file names inside a job's directory
const (
	concatFile   = "concatenated.mp4"
	syncedFile   = "synced.mp4"
	overlayFile  = "with_voiceover.mp4"
	FinalFile    = "broll_final.mp4"
	LatestResult = "latest_broll.mp4"
)

// ComposeWorker executes composition plans against the media adapter
type ComposeWorker struct {
	jobs       store.JobStore
	media      media.Adapter
	outputRoot string
	mirror     client.StorageClient
	hub        Broadcaster
}

// NewComposeWorker creates a composition worker. mirror and hub may be nil.
func NewComposeWorker(jobs store.JobStore, adapter media.Adapter, outputRoot string, mirror client.StorageClient, hub Broadcaster) *ComposeWorker {
	return &ComposeWorker{
		jobs:       jobs,
		media:      adapter,
		outputRoot: outputRoot,
		mirror:     mirror,
		hub:        orNop(hub),
	}
}

// ProcessTask handles broll:compose tasks
func (w *ComposeWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload model.CompositionTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal composition payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.JobID == "" {
		return fmt.Errorf("composition payload without job id: %w", asynq.SkipRetry)
	}

	w.Run(ctx, payload.JobID, &payload.Plan)
	return nil
}

// composeStep is one adapter call in the composition sequence
type composeStep struct {
	name     string
	progress int
	message  string
	run      func(ctx context.Context, input string) (string, error)
}

// steps lays out the adapter calls for plan; fit and overlay are optional.
func (w *ComposeWorker) steps(plan *model.CompositionPlan, dir string) []composeStep {
	steps := []composeStep{{
		name:     "combining clips",
		progress: model.ProgressClipsCombined,
		message:  model.MessageClipsCombined,
		run: func(ctx context.Context, _ string) (string, error) {
			return w.media.Concatenate(ctx, plan.Paths, filepath.Join(dir, concatFile))
		},
	}}

	if plan.TargetDuration != nil {
		target := *plan.TargetDuration
		steps = append(steps, composeStep{
			name:     "synchronizing to voiceover",
			progress: model.ProgressSynchronized,
			message:  model.MessageSynchronized,
			run: func(ctx context.Context, input string) (string, error) {
				return w.media.FitDuration(ctx, input, target, filepath.Join(dir, syncedFile))
			},
		})
	}

	if plan.OverlayAudio && plan.VoiceoverPath != nil {
		voiceover := *plan.VoiceoverPath
		steps = append(steps, composeStep{
			name:     "overlaying audio",
			progress: model.ProgressAudioOverlaid,
			message:  model.MessageAudioOverlaid,
			run: func(ctx context.Context, input string) (string, error) {
				return w.media.OverlayAudio(ctx, input, voiceover, filepath.Join(dir, overlayFile))
			},
		})
	}

	return steps
}

// Run drives plan to a terminal job state. Steps run strictly in order and
// the job is re-checked for cancellation before every adapter call.
func (w *ComposeWorker) Run(ctx context.Context, jobID string, plan *model.CompositionPlan) {
	t := &tracker{
		jobs:  w.jobs,
		hub:   w.hub,
		jobID: jobID,
		logger: log.With().
			Str("job_id", jobID).
			Str("kind", string(model.JobKindBrollComposition)).
			Logger(),
	}

	if !t.claim(ctx) {
		return
	}
	defer t.recoverPanic(ctx)

	for _, warning := range plan.Warnings {
		t.logger.Warn().Str("warning", warning).Msg("Plan warning")
	}

	dir := filepath.Join(w.outputRoot, jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.fail(ctx, fmt.Sprintf("creating output directory failed: %v", err))
		return
	}

	current := ""
	for _, step := range w.steps(plan, dir) {
		if t.cancelled(ctx) {
			return
		}

		t.logger.Info().Str("step", step.name).Msg("Step started")
		out, err := step.run(ctx, current)
		if err != nil {
			t.fail(ctx, failureMessage(step.name, err))
			return
		}
		current = out

		if t.cancelled(ctx) {
			return
		}
		if !t.checkpoint(ctx, step.progress, step.message) {
			return
		}
	}

	w.finalize(ctx, t, dir, current)
}

// finalize links the last output to the job's result name and completes the job
func (w *ComposeWorker) finalize(ctx context.Context, t *tracker, dir, current string) {
	final := filepath.Join(dir, FinalFile)
	if err := linkOrCopy(current, final); err != nil {
		t.fail(ctx, fmt.Sprintf("saving result failed: %v", err))
		return
	}

	completion := store.Completion{ResultRef: t.jobID + "/" + FinalFile}
	key := fmt.Sprintf("results/%s/%s", t.jobID, FinalFile)
	if w.mirror != nil {
		url, err := w.mirror.UploadFile(ctx, key, final, "video/mp4")
		if err != nil {
			t.logger.Warn().Err(err).Msg("Mirroring result failed")
		} else {
			completion.MirrorURL = &url
		}
	}

	if t.cancelled(ctx) || !t.complete(ctx, completion) {
		// a mirrored copy of a result that never completed is removed
		if completion.MirrorURL != nil {
			if err := w.mirror.Delete(context.WithoutCancel(ctx), key); err != nil {
				t.logger.Warn().Err(err).Msg("Removing mirrored result failed")
			}
		}
		return
	}

	latest := filepath.Join(w.outputRoot, LatestResult)
	if err := copyFile(final, latest); err != nil {
		t.logger.Warn().Err(err).Msg("Updating latest result failed")
	}
}

// failureMessage names the step and carries the adapter's diagnostic text verbatim
func failureMessage(step string, err error) string {
	msg := fmt.Sprintf("%s failed: %v", step, err)
	if media.IsRetryable(err) {
		msg += " (timed out, resubmit to retry)"
	}
	return msg
}
