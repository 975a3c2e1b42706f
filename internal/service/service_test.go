package service

import (
	"context"
	"errors"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aivideotool/api/internal/client"
	"github.com/aivideotool/api/internal/model"
	"github.com/aivideotool/api/internal/planner"
	"github.com/aivideotool/api/internal/queue"
	"github.com/aivideotool/api/internal/store"
)

type stubProber struct {
	duration float64
	err      error
}

func (p stubProber) Probe(ctx context.Context, path string) (float64, error) {
	return p.duration, p.err
}

type dispatched struct {
	taskType string
	jobID    string
	payload  interface{}
}

type recordingDispatcher struct {
	mu    sync.Mutex
	tasks []dispatched
	err   error
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, taskType, jobID string, payload interface{}) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.tasks = append(d.tasks, dispatched{taskType: taskType, jobID: jobID, payload: payload})
	return nil
}

type stubImages struct{ configured bool }

func (s stubImages) GenerateImage(ctx context.Context, prompt, outputPath string) error {
	return nil
}

func (s stubImages) IsConfigured() bool {
	return s.configured
}

func saveFile(t *testing.T, files store.FileStore, id string, kind model.MediaKind) {
	t.Helper()
	rec := &model.FileRecord{
		ID:        id,
		Filename:  id,
		Path:      "/uploads/" + id,
		Kind:      kind,
		Size:      1,
		CreatedAt: time.Now(),
	}
	if err := files.Save(context.Background(), rec); err != nil {
		t.Fatalf("save file: %v", err)
	}
}

func countJobs(t *testing.T, jobs store.JobStore) int {
	t.Helper()
	list, err := jobs.List(context.Background(), 0, 100)
	if err != nil {
		t.Fatalf("list jobs: %v", err)
	}
	return len(list)
}

func newComposeFixture(t *testing.T) (*ComposeService, store.JobStore, store.FileStore, *recordingDispatcher) {
	t.Helper()
	jobs := store.NewMemoryJobStore()
	files := store.NewMemoryFileStore()
	d := &recordingDispatcher{}
	p := planner.New(files, stubProber{duration: 42}, planner.WithRand(rand.New(rand.NewPCG(1, 2))))
	return NewComposeService(p, jobs, d), jobs, files, d
}

func TestComposeSubmit_CreatesPendingJobAndDispatches(t *testing.T) {
	svc, jobs, files, d := newComposeFixture(t)
	saveFile(t, files, "b1", model.MediaKindVideo)
	saveFile(t, files, "vo", model.MediaKindAudio)
	vo := "vo"

	res, err := svc.Submit(context.Background(), &model.CompositionRequest{
		BrollClipIDs:    []string{"b1"},
		VoiceoverID:     &vo,
		SyncToVoiceover: true,
		OverlayAudio:    true,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	job, err := jobs.Get(context.Background(), res.Job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if job.Status != model.JobStatusPending || job.Progress != 0 || job.Message != model.MessageQueued {
		t.Errorf("job = %+v, want pending/0/queued", job)
	}
	if job.Kind != model.JobKindBrollComposition {
		t.Errorf("kind = %s", job.Kind)
	}

	if len(d.tasks) != 1 {
		t.Fatalf("dispatched %d tasks, want 1", len(d.tasks))
	}
	task := d.tasks[0]
	if task.taskType != queue.TaskTypeCompose || task.jobID != job.ID {
		t.Errorf("task = %+v", task)
	}
	payload, ok := task.payload.(model.CompositionTaskPayload)
	if !ok {
		t.Fatalf("payload type %T", task.payload)
	}
	if payload.Plan.TargetDuration == nil || *payload.Plan.TargetDuration != 42 {
		t.Errorf("target duration = %v, want 42", payload.Plan.TargetDuration)
	}
	if !payload.Plan.OverlayAudio {
		t.Error("overlay flag lost")
	}
}

func TestComposeSubmit_RejectionsCreateNoJob(t *testing.T) {
	tests := []struct {
		name    string
		req     *model.CompositionRequest
		wantErr func(error) bool
	}{
		{
			name:    "empty broll",
			req:     &model.CompositionRequest{},
			wantErr: func(err error) bool { return errors.Is(err, planner.ErrEmptyBroll) },
		},
		{
			name: "unknown clip",
			req:  &model.CompositionRequest{BrollClipIDs: []string{"b1", "missing"}},
			wantErr: func(err error) bool {
				var nf *planner.FileNotFoundError
				return errors.As(err, &nf) && nf.FileID == "missing"
			},
		},
		{
			name: "audio used as clip",
			req:  &model.CompositionRequest{BrollClipIDs: []string{"vo"}},
			wantErr: func(err error) bool {
				var wk *planner.WrongKindError
				return errors.As(err, &wk)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, jobs, files, d := newComposeFixture(t)
			saveFile(t, files, "b1", model.MediaKindVideo)
			saveFile(t, files, "vo", model.MediaKindAudio)

			_, err := svc.Submit(context.Background(), tt.req)
			if !tt.wantErr(err) {
				t.Fatalf("unexpected error: %v", err)
			}
			if n := countJobs(t, jobs); n != 0 {
				t.Errorf("%d jobs created, want 0", n)
			}
			if len(d.tasks) != 0 {
				t.Errorf("%d tasks dispatched, want 0", len(d.tasks))
			}
		})
	}
}

func TestComposeSubmit_DispatchFailureFailsJob(t *testing.T) {
	svc, jobs, files, d := newComposeFixture(t)
	saveFile(t, files, "b1", model.MediaKindVideo)
	d.err = errors.New("redis down")

	_, err := svc.Submit(context.Background(), &model.CompositionRequest{BrollClipIDs: []string{"b1"}})
	if !errors.Is(err, ErrDispatchFailed) {
		t.Fatalf("expected ErrDispatchFailed, got %v", err)
	}

	list, _ := jobs.List(context.Background(), 0, 10)
	if len(list) != 1 {
		t.Fatalf("expected the job record to remain, got %d", len(list))
	}
	if list[0].Status != model.JobStatusFailed {
		t.Errorf("status = %s, want failed", list[0].Status)
	}
	if !strings.Contains(list[0].Message, "redis down") {
		t.Errorf("message = %q", list[0].Message)
	}
}

func TestImageSubmit(t *testing.T) {
	jobs := store.NewMemoryJobStore()
	files := store.NewMemoryFileStore()
	saveFile(t, files, "script", model.MediaKindScript)
	saveFile(t, files, "voice", model.MediaKindAudio)
	d := &recordingDispatcher{}
	svc := NewImageService(files, jobs, d, stubImages{configured: true}, 5)

	job, err := svc.Submit(context.Background(), &model.ImageGenerationRequest{
		ScriptFileID: "script",
		VoiceFileID:  "voice",
		ImageCount:   3,
		Style:        "Watercolor",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if job.Kind != model.JobKindImageGeneration || job.Status != model.JobStatusPending {
		t.Errorf("job = %+v", job)
	}
	if len(d.tasks) != 1 || d.tasks[0].taskType != queue.TaskTypeImages {
		t.Fatalf("tasks = %+v", d.tasks)
	}
	plan := d.tasks[0].payload.(model.ImageGenerationTaskPayload).Plan
	if plan.ScriptPath != "/uploads/script" || plan.VoicePath != "/uploads/voice" || plan.ImageCount != 3 {
		t.Errorf("plan = %+v", plan)
	}
}

func TestImageSubmit_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		images stubImages
		req    model.ImageGenerationRequest
		check  func(error) bool
	}{
		{
			name:   "not configured",
			images: stubImages{configured: false},
			req:    model.ImageGenerationRequest{ScriptFileID: "script", VoiceFileID: "voice", ImageCount: 1},
			check:  func(err error) bool { return errors.Is(err, client.ErrImagesNotConfigured) },
		},
		{
			name:   "too many images",
			images: stubImages{configured: true},
			req:    model.ImageGenerationRequest{ScriptFileID: "script", VoiceFileID: "voice", ImageCount: 6},
			check: func(err error) bool {
				var ve *ValidationError
				return errors.As(err, &ve)
			},
		},
		{
			name:   "unknown script",
			images: stubImages{configured: true},
			req:    model.ImageGenerationRequest{ScriptFileID: "nope", VoiceFileID: "voice", ImageCount: 1},
			check:  func(err error) bool { return errors.Is(err, store.ErrFileNotFound) },
		},
		{
			name:   "voice is a script",
			images: stubImages{configured: true},
			req:    model.ImageGenerationRequest{ScriptFileID: "script", VoiceFileID: "script", ImageCount: 1},
			check: func(err error) bool {
				var wk *planner.WrongKindError
				return errors.As(err, &wk) && wk.Want == model.MediaKindAudio
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobs := store.NewMemoryJobStore()
			files := store.NewMemoryFileStore()
			saveFile(t, files, "script", model.MediaKindScript)
			saveFile(t, files, "voice", model.MediaKindAudio)
			svc := NewImageService(files, jobs, &recordingDispatcher{}, tt.images, 5)

			req := tt.req
			_, err := svc.Submit(context.Background(), &req)
			if !tt.check(err) {
				t.Fatalf("unexpected error: %v", err)
			}
			if n := countJobs(t, jobs); n != 0 {
				t.Errorf("%d jobs created, want 0", n)
			}
		})
	}
}

type recordingNotifier struct {
	codes []string
}

func (n *recordingNotifier) BroadcastError(jobID string, code, message string) {
	n.codes = append(n.codes, code)
}

func createJob(t *testing.T, jobs store.JobStore, id string) {
	t.Helper()
	err := jobs.Create(context.Background(), &model.Job{
		ID:        id,
		Kind:      model.JobKindBrollComposition,
		Status:    model.JobStatusPending,
		Message:   model.MessageQueued,
		CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
}

func completeJob(t *testing.T, jobs store.JobStore, id, ref string) {
	t.Helper()
	ctx := context.Background()
	if _, err := jobs.Claim(ctx, id); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := jobs.Complete(ctx, id, store.Completion{ResultRef: ref}); err != nil {
		t.Fatalf("complete: %v", err)
	}
}

func TestJobService_GetStatus(t *testing.T) {
	jobs := store.NewMemoryJobStore()
	svc := NewJobService(jobs, t.TempDir(), nil)
	createJob(t, jobs, "j1")

	resp, err := svc.GetStatus(context.Background(), "j1")
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if resp.ResultURL != nil {
		t.Error("pending job must not expose a result url")
	}

	completeJob(t, jobs, "j1", "j1/broll_final.mp4")
	resp, _ = svc.GetStatus(context.Background(), "j1")
	if resp.ResultURL == nil || *resp.ResultURL != "/api/download/j1/broll_final.mp4" {
		t.Errorf("result url = %v", resp.ResultURL)
	}

	if _, err := svc.GetStatus(context.Background(), "missing"); !errors.Is(err, store.ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func TestJobService_Cancel(t *testing.T) {
	jobs := store.NewMemoryJobStore()
	n := &recordingNotifier{}
	svc := NewJobService(jobs, t.TempDir(), n)
	createJob(t, jobs, "j1")

	resp, err := svc.Cancel(context.Background(), "j1")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if !resp.Success || resp.Status != model.JobStatusCancelled {
		t.Errorf("resp = %+v", resp)
	}
	if len(n.codes) != 1 || n.codes[0] != "JOB_CANCELLED" {
		t.Errorf("notifications = %v", n.codes)
	}
}

func TestJobService_CancelTerminalIsNoop(t *testing.T) {
	jobs := store.NewMemoryJobStore()
	n := &recordingNotifier{}
	svc := NewJobService(jobs, t.TempDir(), n)
	createJob(t, jobs, "j1")
	completeJob(t, jobs, "j1", "j1/broll_final.mp4")

	resp, err := svc.Cancel(context.Background(), "j1")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if !resp.Success || resp.Status != model.JobStatusCompleted {
		t.Errorf("resp = %+v, want success with completed status", resp)
	}
	if len(n.codes) != 0 {
		t.Errorf("no notification expected, got %v", n.codes)
	}

	job, _ := jobs.Get(context.Background(), "j1")
	if job.Status != model.JobStatusCompleted {
		t.Errorf("status changed to %s", job.Status)
	}
}

func TestJobService_CancelMissing(t *testing.T) {
	svc := NewJobService(store.NewMemoryJobStore(), t.TempDir(), nil)
	if _, err := svc.Cancel(context.Background(), "missing"); !errors.Is(err, store.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestJobService_List(t *testing.T) {
	jobs := store.NewMemoryJobStore()
	svc := NewJobService(jobs, t.TempDir(), nil)
	for _, id := range []string{"a", "b", "c"} {
		createJob(t, jobs, id)
	}

	resp, err := svc.List(context.Background(), -5, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if resp.Offset != 0 || resp.Limit != defaultListLimit {
		t.Errorf("offset/limit = %d/%d", resp.Offset, resp.Limit)
	}
	if len(resp.Jobs) != 3 {
		t.Errorf("got %d jobs, want 3", len(resp.Jobs))
	}

	resp, _ = svc.List(context.Background(), 0, 1000)
	if resp.Limit != maxListLimit {
		t.Errorf("limit = %d, want %d", resp.Limit, maxListLimit)
	}
}

func TestJobService_Delete(t *testing.T) {
	jobs := store.NewMemoryJobStore()
	svc := NewJobService(jobs, t.TempDir(), nil)
	createJob(t, jobs, "j1")

	if err := svc.Delete(context.Background(), "j1"); !errors.Is(err, store.ErrJobNotTerminal) {
		t.Fatalf("expected ErrJobNotTerminal, got %v", err)
	}

	completeJob(t, jobs, "j1", "j1/broll_final.mp4")
	if err := svc.Delete(context.Background(), "j1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := jobs.Get(context.Background(), "j1"); !errors.Is(err, store.ErrJobNotFound) {
		t.Errorf("record should be gone, got %v", err)
	}
}

func TestJobService_ResultFile(t *testing.T) {
	root := t.TempDir()
	jobs := store.NewMemoryJobStore()
	svc := NewJobService(jobs, root, nil)
	createJob(t, jobs, "j1")

	if err := os.MkdirAll(filepath.Join(root, "j1"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "j1", "broll_final.mp4"), []byte("video"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "secret.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.ResultFile(context.Background(), "j1", "broll_final.mp4"); !errors.Is(err, ErrJobNotCompleted) {
		t.Fatalf("expected ErrJobNotCompleted, got %v", err)
	}

	completeJob(t, jobs, "j1", "j1/broll_final.mp4")

	path, err := svc.ResultFile(context.Background(), "j1", "broll_final.mp4")
	if err != nil {
		t.Fatalf("ResultFile: %v", err)
	}
	if path != filepath.Join(root, "j1", "broll_final.mp4") {
		t.Errorf("path = %q", path)
	}

	for _, name := range []string{"../secret.txt", "..", "a/b", `..\secret.txt`, ""} {
		if _, err := svc.ResultFile(context.Background(), "j1", name); !errors.Is(err, ErrInvalidResultPath) {
			t.Errorf("%q: expected ErrInvalidResultPath, got %v", name, err)
		}
	}
	if _, err := svc.ResultFile(context.Background(), "..", "secret.txt"); !errors.Is(err, ErrInvalidResultPath) {
		t.Errorf("job id traversal: expected ErrInvalidResultPath, got %v", err)
	}

	if _, err := svc.ResultFile(context.Background(), "j1", "missing.mp4"); !errors.Is(err, ErrResultNotFound) {
		t.Errorf("expected ErrResultNotFound, got %v", err)
	}
}

func TestUpload(t *testing.T) {
	dir := t.TempDir()
	files := store.NewMemoryFileStore()
	svc := NewUploadService(files, stubProber{duration: 12.5}, dir, 1024)

	rec, err := svc.Upload(context.Background(), UploadInput{
		Kind:     model.MediaKindAudio,
		Filename: "Voice.MP3",
		Body:     strings.NewReader("audio-bytes"),
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if rec.Path != filepath.Join(dir, "audio", rec.ID+".mp3") {
		t.Errorf("path = %q", rec.Path)
	}
	if rec.Duration == nil || *rec.Duration != 12.5 {
		t.Errorf("duration = %v", rec.Duration)
	}
	if rec.Size != int64(len("audio-bytes")) {
		t.Errorf("size = %d", rec.Size)
	}
	data, err := os.ReadFile(rec.Path)
	if err != nil || string(data) != "audio-bytes" {
		t.Errorf("stored content = %q, %v", data, err)
	}

	got, err := svc.Get(context.Background(), rec.ID)
	if err != nil || got.ID != rec.ID {
		t.Errorf("Get = %+v, %v", got, err)
	}
}

func TestUpload_VideoRole(t *testing.T) {
	svc := NewUploadService(store.NewMemoryFileStore(), nil, t.TempDir(), 0)

	rec, err := svc.Upload(context.Background(), UploadInput{
		Kind:     model.MediaKindVideo,
		Filename: "clip.mp4",
		Body:     strings.NewReader("v"),
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if rec.Role != model.VideoRoleBroll {
		t.Errorf("role = %q, want broll by default", rec.Role)
	}

	_, err = svc.Upload(context.Background(), UploadInput{
		Kind:     model.MediaKindVideo,
		Role:     "outro",
		Filename: "clip.mp4",
		Body:     strings.NewReader("v"),
	})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Errorf("expected ValidationError for bad role, got %v", err)
	}
}

func TestUpload_Rejections(t *testing.T) {
	tests := []struct {
		name string
		in   UploadInput
	}{
		{"bad extension", UploadInput{Kind: model.MediaKindVideo, Filename: "clip.exe", Body: strings.NewReader("x")}},
		{"unknown kind", UploadInput{Kind: "image", Filename: "a.png", Body: strings.NewReader("x")}},
		{"too large", UploadInput{Kind: model.MediaKindScript, Filename: "s.txt", Body: strings.NewReader(strings.Repeat("x", 20))}},
		{"empty", UploadInput{Kind: model.MediaKindScript, Filename: "s.txt", Body: strings.NewReader("")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			files := store.NewMemoryFileStore()
			svc := NewUploadService(files, nil, dir, 10)

			_, err := svc.Upload(context.Background(), tt.in)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			recs, _ := files.List(context.Background())
			if len(recs) != 0 {
				t.Errorf("%d records saved, want 0", len(recs))
			}
			entries, _ := os.ReadDir(filepath.Join(dir, string(tt.in.Kind)))
			if len(entries) != 0 {
				t.Errorf("%d files left on disk", len(entries))
			}
		})
	}
}

func TestUpload_ProbeFailureStillSaves(t *testing.T) {
	svc := NewUploadService(store.NewMemoryFileStore(), stubProber{err: errors.New("boom")}, t.TempDir(), 0)
	rec, err := svc.Upload(context.Background(), UploadInput{
		Kind:     model.MediaKindAudio,
		Filename: "v.wav",
		Body:     strings.NewReader("a"),
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if rec.Duration != nil {
		t.Errorf("duration = %v, want nil", *rec.Duration)
	}
}
