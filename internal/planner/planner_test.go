package planner

import (
	"context"
	"errors"
	"math/rand/v2"
	"sort"
	"testing"
	"time"

	"github.com/aivideotool/api/internal/model"
	"github.com/aivideotool/api/internal/store"
)

type stubProber struct {
	duration float64
	err      error
	calls    []string
}

func (p *stubProber) Probe(_ context.Context, path string) (float64, error) {
	p.calls = append(p.calls, path)
	return p.duration, p.err
}

func seedFiles(t *testing.T, kinds map[string]model.MediaKind) *store.MemoryFileStore {
	t.Helper()
	files := store.NewMemoryFileStore()
	for id, kind := range kinds {
		err := files.Save(context.Background(), &model.FileRecord{
			ID:        id,
			Filename:  id,
			Path:      "/uploads/" + id,
			Kind:      kind,
			Size:      1,
			CreatedAt: time.Now(),
		})
		if err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}
	return files
}

func standardFiles(t *testing.T) *store.MemoryFileStore {
	return seedFiles(t, map[string]model.MediaKind{
		"A":     model.MediaKindVideo,
		"B":     model.MediaKindVideo,
		"C":     model.MediaKindVideo,
		"D":     model.MediaKindVideo,
		"E":     model.MediaKindVideo,
		"voice": model.MediaKindAudio,
	})
}

func strPtr(s string) *string { return &s }

func TestPlan_IntroOrderThenBrollPermutation(t *testing.T) {
	files := standardFiles(t)
	req := &model.CompositionRequest{
		IntroClipIDs: []string{"A", "B"},
		BrollClipIDs: []string{"C", "D", "E"},
	}

	seen := map[string]bool{}
	for seed := uint64(0); seed < 50; seed++ {
		p := New(files, &stubProber{}, WithRand(rand.New(rand.NewPCG(seed, seed+1))))
		plan, err := p.Plan(context.Background(), req)
		if err != nil {
			t.Fatalf("seed %d: Plan: %v", seed, err)
		}
		if len(plan.Paths) != 5 {
			t.Fatalf("seed %d: paths = %v", seed, plan.Paths)
		}
		if plan.Paths[0] != "/uploads/A" || plan.Paths[1] != "/uploads/B" {
			t.Fatalf("seed %d: intro order broken: %v", seed, plan.Paths)
		}

		broll := append([]string(nil), plan.Paths[2:]...)
		seen[broll[0]+broll[1]+broll[2]] = true
		sort.Strings(broll)
		want := []string{"/uploads/C", "/uploads/D", "/uploads/E"}
		for i := range want {
			if broll[i] != want[i] {
				t.Fatalf("seed %d: b-roll is not a permutation: %v", seed, plan.Paths[2:])
			}
		}
	}
	if len(seen) < 2 {
		t.Errorf("b-roll was never shuffled across 50 seeds")
	}
}

func TestPlan_DoesNotMutateRequest(t *testing.T) {
	files := standardFiles(t)
	req := &model.CompositionRequest{
		IntroClipIDs: []string{"B", "A"},
		BrollClipIDs: []string{"C", "D", "E"},
	}
	p := New(files, &stubProber{}, WithRand(rand.New(rand.NewPCG(1, 2))))
	if _, err := p.Plan(context.Background(), req); err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if req.IntroClipIDs[0] != "B" || req.BrollClipIDs[0] != "C" || req.BrollClipIDs[2] != "E" {
		t.Errorf("request mutated: %+v", req)
	}
}

func TestPlan_EmptyBroll(t *testing.T) {
	p := New(standardFiles(t), &stubProber{})
	_, err := p.Plan(context.Background(), &model.CompositionRequest{IntroClipIDs: []string{"A"}})
	if !errors.Is(err, ErrEmptyBroll) {
		t.Fatalf("expected ErrEmptyBroll, got %v", err)
	}
}

func TestPlan_UnknownFile(t *testing.T) {
	p := New(standardFiles(t), &stubProber{})
	tests := []struct {
		name string
		req  *model.CompositionRequest
		want string
	}{
		{"intro", &model.CompositionRequest{IntroClipIDs: []string{"A", "nope"}, BrollClipIDs: []string{"C"}}, "nope"},
		{"broll", &model.CompositionRequest{BrollClipIDs: []string{"C", "missing"}}, "missing"},
		{"voiceover", &model.CompositionRequest{BrollClipIDs: []string{"C"}, VoiceoverID: strPtr("ghost")}, "ghost"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := p.Plan(context.Background(), tt.req)
			if plan != nil {
				t.Errorf("expected no plan, got %+v", plan)
			}
			var nf *FileNotFoundError
			if !errors.As(err, &nf) {
				t.Fatalf("expected FileNotFoundError, got %v", err)
			}
			if nf.FileID != tt.want {
				t.Errorf("FileID = %q, want %q", nf.FileID, tt.want)
			}
			if !errors.Is(err, store.ErrFileNotFound) {
				t.Errorf("error should match store.ErrFileNotFound")
			}
		})
	}
}

func TestPlan_WrongKind(t *testing.T) {
	p := New(standardFiles(t), &stubProber{})
	_, err := p.Plan(context.Background(), &model.CompositionRequest{
		BrollClipIDs: []string{"C"},
		VoiceoverID:  strPtr("D"),
	})
	var wk *WrongKindError
	if !errors.As(err, &wk) {
		t.Fatalf("expected WrongKindError, got %v", err)
	}
	if wk.Want != model.MediaKindAudio || wk.Got != model.MediaKindVideo {
		t.Errorf("kinds = %s/%s", wk.Want, wk.Got)
	}
}

func TestPlan_SyncProbesVoiceover(t *testing.T) {
	prober := &stubProber{duration: 30}
	p := New(standardFiles(t), prober)
	plan, err := p.Plan(context.Background(), &model.CompositionRequest{
		BrollClipIDs:    []string{"C"},
		VoiceoverID:     strPtr("voice"),
		SyncToVoiceover: true,
		OverlayAudio:    true,
	})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if plan.TargetDuration == nil || *plan.TargetDuration != 30 {
		t.Errorf("target = %v, want 30", plan.TargetDuration)
	}
	if plan.VoiceoverPath == nil || *plan.VoiceoverPath != "/uploads/voice" {
		t.Errorf("voiceover path = %v", plan.VoiceoverPath)
	}
	if !plan.OverlayAudio {
		t.Error("overlay flag not copied")
	}
	if len(prober.calls) != 1 || prober.calls[0] != "/uploads/voice" {
		t.Errorf("probe calls = %v", prober.calls)
	}
}

func TestPlan_NoSyncNoProbe(t *testing.T) {
	prober := &stubProber{duration: 30}
	p := New(standardFiles(t), prober)
	plan, err := p.Plan(context.Background(), &model.CompositionRequest{
		BrollClipIDs: []string{"C"},
		VoiceoverID:  strPtr("voice"),
	})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if plan.TargetDuration != nil {
		t.Errorf("target should be unset, got %v", *plan.TargetDuration)
	}
	if len(prober.calls) != 0 {
		t.Errorf("probe should not be called, got %v", prober.calls)
	}
}

func TestPlan_ProbeFailureIsWarning(t *testing.T) {
	prober := &stubProber{err: errors.New("MediaUnreadable: probe")}
	p := New(standardFiles(t), prober)
	plan, err := p.Plan(context.Background(), &model.CompositionRequest{
		BrollClipIDs:    []string{"C"},
		VoiceoverID:     strPtr("voice"),
		SyncToVoiceover: true,
	})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if plan.TargetDuration != nil {
		t.Errorf("target should be unset after probe failure")
	}
	if len(plan.Warnings) != 1 {
		t.Errorf("warnings = %v, want one", plan.Warnings)
	}
}

func TestPlan_SyncWithoutVoiceover(t *testing.T) {
	p := New(standardFiles(t), &stubProber{duration: 30})
	plan, err := p.Plan(context.Background(), &model.CompositionRequest{
		BrollClipIDs:    []string{"C"},
		SyncToVoiceover: true,
		OverlayAudio:    true,
	})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if plan.TargetDuration != nil || plan.VoiceoverPath != nil {
		t.Errorf("plan = %+v, want no voiceover or target", plan)
	}
}
