// Package planner turns a composition request into a fully resolved plan.
// Planning is all-or-nothing: any unresolved file aborts it and no plan is returned.
package planner

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/rs/zerolog/log"

	"github.com/aivideotool/api/internal/model"
	"github.com/aivideotool/api/internal/store"
)

// ErrEmptyBroll is returned when a request carries no b-roll clips
var ErrEmptyBroll = errors.New("at least one b-roll clip is required")

// FileNotFoundError names the identifier that could not be resolved
type FileNotFoundError struct {
	FileID string
}

func (e *FileNotFoundError) Error() string {
	return fmt.Sprintf("file not found: %s", e.FileID)
}

func (e *FileNotFoundError) Unwrap() error {
	return store.ErrFileNotFound
}

// WrongKindError is returned when a file is used in a slot meant for another media kind
type WrongKindError struct {
	FileID string
	Want   model.MediaKind
	Got    model.MediaKind
}

func (e *WrongKindError) Error() string {
	return fmt.Sprintf("file %s is %s, expected %s", e.FileID, e.Got, e.Want)
}

// FileResolver looks up uploaded files by identifier
type FileResolver interface {
	Get(ctx context.Context, id string) (*model.FileRecord, error)
}

// DurationProber reports the duration of a media file in seconds
type DurationProber interface {
	Probe(ctx context.Context, path string) (float64, error)
}

type Planner struct {
	files  FileResolver
	prober DurationProber
	rng    *rand.Rand
}

type Option func(*Planner)

// WithRand fixes the random source used to shuffle b-roll clips
func WithRand(r *rand.Rand) Option {
	return func(p *Planner) {
		p.rng = r
	}
}

func New(files FileResolver, prober DurationProber, opts ...Option) *Planner {
	p := &Planner{
		files:  files,
		prober: prober,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Plan resolves every clip, shuffles the b-roll and, when asked to sync,
// probes the voiceover for the target duration.
func (p *Planner) Plan(ctx context.Context, req *model.CompositionRequest) (*model.CompositionPlan, error) {
	if len(req.BrollClipIDs) == 0 {
		return nil, ErrEmptyBroll
	}

	intro, err := p.resolveAll(ctx, req.IntroClipIDs, model.MediaKindVideo)
	if err != nil {
		return nil, err
	}
	broll, err := p.resolveAll(ctx, req.BrollClipIDs, model.MediaKindVideo)
	if err != nil {
		return nil, err
	}

	var voiceover *model.FileRecord
	if req.VoiceoverID != nil && *req.VoiceoverID != "" {
		voiceover, err = p.resolve(ctx, *req.VoiceoverID, model.MediaKindAudio)
		if err != nil {
			return nil, err
		}
	}

	p.shuffle(broll)

	plan := &model.CompositionPlan{
		Paths:        make([]string, 0, len(intro)+len(broll)),
		OverlayAudio: req.OverlayAudio,
	}
	plan.Paths = append(plan.Paths, intro...)
	plan.Paths = append(plan.Paths, broll...)

	if voiceover != nil {
		path := voiceover.Path
		plan.VoiceoverPath = &path

		if req.SyncToVoiceover {
			duration, err := p.prober.Probe(ctx, path)
			if err != nil {
				warning := fmt.Sprintf("voiceover duration unavailable, skipping sync: %v", err)
				log.Warn().Err(err).Str("file_id", voiceover.ID).Msg("Voiceover probe failed, composing without sync")
				plan.Warnings = append(plan.Warnings, warning)
			} else {
				plan.TargetDuration = &duration
			}
		}
	} else if req.SyncToVoiceover {
		plan.Warnings = append(plan.Warnings, "sync requested without a voiceover, skipping sync")
	}

	return plan, nil
}

func (p *Planner) resolveAll(ctx context.Context, ids []string, kind model.MediaKind) ([]string, error) {
	paths := make([]string, 0, len(ids))
	for _, id := range ids {
		rec, err := p.resolve(ctx, id, kind)
		if err != nil {
			return nil, err
		}
		paths = append(paths, rec.Path)
	}
	return paths, nil
}

func (p *Planner) resolve(ctx context.Context, id string, kind model.MediaKind) (*model.FileRecord, error) {
	rec, err := p.files.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrFileNotFound) {
			return nil, &FileNotFoundError{FileID: id}
		}
		return nil, fmt.Errorf("failed to resolve file %s: %w", id, err)
	}
	if rec.Kind != kind {
		return nil, &WrongKindError{FileID: id, Want: kind, Got: rec.Kind}
	}
	return rec, nil
}

func (p *Planner) shuffle(paths []string) {
	swap := func(i, j int) { paths[i], paths[j] = paths[j], paths[i] }
	if p.rng != nil {
		p.rng.Shuffle(len(paths), swap)
		return
	}
	rand.Shuffle(len(paths), swap)
}
