package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/aivideotool/api/internal/client"
	"github.com/aivideotool/api/internal/model"
	"github.com/aivideotool/api/internal/planner"
	"github.com/aivideotool/api/internal/queue"
	"github.com/aivideotool/api/internal/store"
)

// ImageService accepts scene illustration requests
type ImageService struct {
	files      store.FileStore
	jobs       store.JobStore
	dispatcher queue.Dispatcher
	images     client.ImageGenerator
	maxImages  int
}

func NewImageService(files store.FileStore, jobs store.JobStore, dispatcher queue.Dispatcher, images client.ImageGenerator, maxImages int) *ImageService {
	return &ImageService{
		files:      files,
		jobs:       jobs,
		dispatcher: dispatcher,
		images:     images,
		maxImages:  maxImages,
	}
}

// Submit resolves the script and voice files, records a pending job and dispatches it
func (s *ImageService) Submit(ctx context.Context, req *model.ImageGenerationRequest) (*model.Job, error) {
	if s.images == nil || !s.images.IsConfigured() {
		return nil, client.ErrImagesNotConfigured
	}
	if req.ImageCount < 1 {
		return nil, validationErrorf(nil, "imageCount must be at least 1")
	}
	if s.maxImages > 0 && req.ImageCount > s.maxImages {
		return nil, validationErrorf(map[string]interface{}{"max": s.maxImages}, "imageCount must not exceed %d", s.maxImages)
	}

	script, err := s.resolve(ctx, req.ScriptFileID, model.MediaKindScript)
	if err != nil {
		return nil, err
	}
	voice, err := s.resolve(ctx, req.VoiceFileID, model.MediaKindAudio)
	if err != nil {
		return nil, err
	}

	job := newPendingJob(model.JobKindImageGeneration)
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	payload := model.ImageGenerationTaskPayload{
		JobID: job.ID,
		Plan: model.ImageGenerationPlan{
			ScriptPath:           script.Path,
			VoicePath:            voice.Path,
			ImageCount:           req.ImageCount,
			Style:                req.Style,
			CharacterDescription: req.CharacterDescription,
		},
	}
	if err := dispatch(ctx, s.jobs, s.dispatcher, queue.TaskTypeImages, job.ID, payload); err != nil {
		return nil, err
	}

	log.Info().
		Str("job_id", job.ID).
		Int("images", req.ImageCount).
		Msg("Image generation job submitted")
	return job, nil
}

func (s *ImageService) resolve(ctx context.Context, id string, kind model.MediaKind) (*model.FileRecord, error) {
	rec, err := s.files.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrFileNotFound) {
			return nil, &planner.FileNotFoundError{FileID: id}
		}
		return nil, fmt.Errorf("failed to resolve file %s: %w", id, err)
	}
	if rec.Kind != kind {
		return nil, &planner.WrongKindError{FileID: id, Want: kind, Got: rec.Kind}
	}
	return rec, nil
}
