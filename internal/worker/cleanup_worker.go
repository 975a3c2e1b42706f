package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	"github.com/aivideotool/api/internal/store"
)

// CleanupWorker removes uploads and job outputs older than the retention window
type CleanupWorker struct {
	files      store.FileStore
	outputRoot string
	retention  time.Duration
	now        func() time.Time
}

func NewCleanupWorker(files store.FileStore, outputRoot string, retention time.Duration) *CleanupWorker {
	return &CleanupWorker{
		files:      files,
		outputRoot: outputRoot,
		retention:  retention,
		now:        time.Now,
	}
}

// CleanupResult counts what one sweep removed
type CleanupResult struct {
	Files      int
	OutputDirs int
}

// ProcessTask handles files:cleanup tasks
func (w *CleanupWorker) ProcessTask(ctx context.Context, _ *asynq.Task) error {
	res, err := w.Run(ctx)
	if err != nil {
		return err
	}
	log.Info().
		Int("files", res.Files).
		Int("output_dirs", res.OutputDirs).
		Msg("Retention cleanup finished")
	return nil
}

// Run deletes expired upload records with their files, then expired job output directories.
func (w *CleanupWorker) Run(ctx context.Context) (CleanupResult, error) {
	var res CleanupResult
	if w.retention <= 0 {
		return res, nil
	}
	cutoff := w.now().Add(-w.retention)

	records, err := w.files.List(ctx)
	if err != nil {
		return res, err
	}
	for _, rec := range records {
		if !rec.CreatedAt.Before(cutoff) {
			continue
		}
		if err := os.Remove(rec.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn().Err(err).Str("file_id", rec.ID).Msg("Failed to remove upload")
			continue
		}
		if err := w.files.Delete(ctx, rec.ID); err != nil && !errors.Is(err, store.ErrFileNotFound) {
			log.Warn().Err(err).Str("file_id", rec.ID).Msg("Failed to delete file record")
			continue
		}
		res.Files++
	}

	entries, err := os.ReadDir(w.outputRoot)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return res, nil
		}
		return res, err
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(w.outputRoot, entry.Name())); err != nil {
			log.Warn().Err(err).Str("dir", entry.Name()).Msg("Failed to remove job output")
			continue
		}
		res.OutputDirs++
	}

	return res, nil
}
