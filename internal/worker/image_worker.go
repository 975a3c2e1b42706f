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
	"github.com/aivideotool/api/internal/model"
	"github.com/aivideotool/api/internal/planner"
	"github.com/aivideotool/api/internal/store"
)

// MetadataFile is written next to the generated images and is the job's result
const MetadataFile = "generation_metadata.json"

const (
	progressScriptRead = 20
	progressImagesDone = 80
	progressMetadata   = 90
)

// ImageWorker generates one illustration per script segment
type ImageWorker struct {
	jobs       store.JobStore
	images     client.ImageGenerator
	prober     planner.DurationProber
	outputRoot string
	hub        Broadcaster
}

// NewImageWorker creates an image generation worker. hub may be nil.
func NewImageWorker(jobs store.JobStore, images client.ImageGenerator, prober planner.DurationProber, outputRoot string, hub Broadcaster) *ImageWorker {
	return &ImageWorker{
		jobs:       jobs,
		images:     images,
		prober:     prober,
		outputRoot: outputRoot,
		hub:        orNop(hub),
	}
}

// ProcessTask handles images:generate tasks
func (w *ImageWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload model.ImageGenerationTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal image payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.JobID == "" {
		return fmt.Errorf("image payload without job id: %w", asynq.SkipRetry)
	}

	w.Run(ctx, payload.JobID, &payload.Plan)
	return nil
}

// Run generates the images for plan and writes their metadata. Individual
// image failures are skipped; the job fails only when none succeed.
func (w *ImageWorker) Run(ctx context.Context, jobID string, plan *model.ImageGenerationPlan) {
	t := &tracker{
		jobs:  w.jobs,
		hub:   w.hub,
		jobID: jobID,
		logger: log.With().
			Str("job_id", jobID).
			Str("kind", string(model.JobKindImageGeneration)).
			Logger(),
	}

	if !t.claim(ctx) {
		return
	}
	defer t.recoverPanic(ctx)

	if w.images == nil || !w.images.IsConfigured() {
		t.fail(ctx, "image generation API key not configured")
		return
	}

	text, err := ReadScript(plan.ScriptPath)
	if err != nil {
		t.fail(ctx, fmt.Sprintf("reading script failed: %v", err))
		return
	}
	segments, err := SplitScript(text, plan.ImageCount)
	if err != nil {
		t.fail(ctx, fmt.Sprintf("reading script failed: %v", err))
		return
	}

	total, err := w.prober.Probe(ctx, plan.VoicePath)
	if err != nil {
		t.fail(ctx, fmt.Sprintf("reading voiceover duration failed: %v", err))
		return
	}
	timestamps, sceneDuration := SceneTimings(total, plan.ImageCount)

	if !t.checkpoint(ctx, progressScriptRead, "script analysed") {
		return
	}

	dir := filepath.Join(w.outputRoot, jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.fail(ctx, fmt.Sprintf("creating output directory failed: %v", err))
		return
	}

	var generated []model.GeneratedImage
	for i, segment := range segments {
		if t.cancelled(ctx) {
			return
		}

		progress := progressScriptRead + i*(progressImagesDone-progressScriptRead)/len(segments)
		if !t.checkpoint(ctx, progress, fmt.Sprintf("generating image %d of %d", i+1, len(segments))) {
			return
		}

		name := fmt.Sprintf("image_%03d.png", i+1)
		prompt := ScenePrompt(i+1, plan.CharacterDescription, plan.Style, segment)
		if err := w.images.GenerateImage(ctx, prompt, filepath.Join(dir, name)); err != nil {
			t.logger.Warn().Err(err).Int("scene", i+1).Msg("Image generation failed, skipping")
			continue
		}

		generated = append(generated, model.GeneratedImage{
			File:      name,
			Timestamp: timestamps[i],
			Duration:  sceneDuration,
			Prompt:    prompt,
		})
	}

	if len(generated) == 0 {
		t.fail(ctx, "generating images failed: no image could be generated")
		return
	}
	if t.cancelled(ctx) {
		return
	}
	if !t.checkpoint(ctx, progressMetadata, fmt.Sprintf("generated %d of %d images", len(generated), len(segments))) {
		return
	}

	metadata := model.ImageGenerationMetadata{
		JobID:                jobID,
		Images:               generated,
		TotalDuration:        total,
		Style:                plan.Style,
		CharacterDescription: plan.CharacterDescription,
	}
	data, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		t.fail(ctx, fmt.Sprintf("writing metadata failed: %v", err))
		return
	}
	if err := os.WriteFile(filepath.Join(dir, MetadataFile), data, 0o644); err != nil {
		t.fail(ctx, fmt.Sprintf("writing metadata failed: %v", err))
		return
	}

	if t.cancelled(ctx) {
		return
	}
	t.complete(ctx, store.Completion{ResultRef: jobID + "/" + MetadataFile})
}
