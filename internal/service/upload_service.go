package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/aivideotool/api/internal/model"
	"github.com/aivideotool/api/internal/planner"
	"github.com/aivideotool/api/internal/store"
)

// UploadService stores uploaded files on local disk and records them
type UploadService struct {
	files     store.FileStore
	prober    planner.DurationProber
	uploadDir string
	maxSize   int64
}

// NewUploadService creates an upload service. prober may be nil, in which case
// audio durations are not recorded.
func NewUploadService(files store.FileStore, prober planner.DurationProber, uploadDir string, maxSize int64) *UploadService {
	return &UploadService{
		files:     files,
		prober:    prober,
		uploadDir: uploadDir,
		maxSize:   maxSize,
	}
}

// UploadInput describes one incoming file
type UploadInput struct {
	Kind     model.MediaKind
	Role     model.VideoRole
	Filename string
	Body     io.Reader
}

// Upload validates the extension, writes the file under <upload_dir>/<kind>/<id><ext>
// and saves its record.
func (s *UploadService) Upload(ctx context.Context, in UploadInput) (*model.FileRecord, error) {
	ext := strings.ToLower(filepath.Ext(in.Filename))
	allowed, ok := model.AllowedExtensions[in.Kind]
	if !ok {
		return nil, validationErrorf(nil, "unsupported media kind %q", in.Kind)
	}
	if !slices.Contains(allowed, ext) {
		return nil, validationErrorf(map[string]interface{}{
			"filename": in.Filename,
			"allowed":  allowed,
		}, "invalid %s file type %q", in.Kind, ext)
	}

	role := in.Role
	if in.Kind == model.MediaKindVideo {
		if role == "" {
			role = model.VideoRoleBroll
		}
		if role != model.VideoRoleBroll && role != model.VideoRoleIntro {
			return nil, validationErrorf(nil, "videoType must be broll or intro, got %q", role)
		}
	} else {
		role = ""
	}

	id := uuid.New().String()
	dir := filepath.Join(s.uploadDir, string(in.Kind))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}
	path := filepath.Join(dir, id+ext)

	size, err := s.write(path, in.Body)
	if err != nil {
		os.Remove(path)
		return nil, err
	}

	rec := &model.FileRecord{
		ID:        id,
		Filename:  filepath.Base(in.Filename),
		Path:      path,
		Kind:      in.Kind,
		Role:      role,
		Size:      size,
		CreatedAt: time.Now(),
	}

	if in.Kind == model.MediaKindAudio && s.prober != nil {
		duration, err := s.prober.Probe(ctx, path)
		if err != nil {
			log.Warn().Err(err).Str("file_id", id).Msg("Could not read audio duration")
		} else {
			rec.Duration = &duration
		}
	}

	if err := s.files.Save(ctx, rec); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to save file record: %w", err)
	}

	log.Info().
		Str("file_id", id).
		Str("kind", string(in.Kind)).
		Int64("size", size).
		Msg("File uploaded")
	return rec, nil
}

func (s *UploadService) write(path string, body io.Reader) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	src := body
	if s.maxSize > 0 {
		src = io.LimitReader(body, s.maxSize+1)
	}
	n, err := io.Copy(f, src)
	if err != nil {
		return 0, fmt.Errorf("failed to write file: %w", err)
	}
	if s.maxSize > 0 && n > s.maxSize {
		return 0, validationErrorf(map[string]interface{}{"maxSize": s.maxSize}, "file exceeds %d bytes", s.maxSize)
	}
	if n == 0 {
		return 0, validationErrorf(nil, "file is empty")
	}
	return n, nil
}

// Get returns a file record
func (s *UploadService) Get(ctx context.Context, id string) (*model.FileRecord, error) {
	rec, err := s.files.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrFileNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to read file record: %w", err)
	}
	return rec, nil
}
