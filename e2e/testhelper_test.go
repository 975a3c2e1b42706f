package e2e

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/aivideotool/api/internal/auth"
	"github.com/aivideotool/api/internal/client"
	"github.com/aivideotool/api/internal/config"
	"github.com/aivideotool/api/internal/handler"
	"github.com/aivideotool/api/internal/middleware"
	"github.com/aivideotool/api/internal/planner"
	"github.com/aivideotool/api/internal/queue"
	"github.com/aivideotool/api/internal/server"
	"github.com/aivideotool/api/internal/service"
	"github.com/aivideotool/api/internal/store"
	"github.com/aivideotool/api/internal/worker"
)

const testJWTSecret = "test-secret-for-e2e"

// fakeMedia stands in for ffmpeg. Outputs record which inputs produced them.
// When gate is set every Concatenate call blocks until it is closed.
type fakeMedia struct {
	mu       sync.Mutex
	calls    []string
	duration float64
	gate     chan struct{}
	started  chan struct{}
}

func (f *fakeMedia) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeMedia) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeMedia) Probe(_ context.Context, path string) (float64, error) {
	f.record("probe")
	return f.duration, nil
}

func (f *fakeMedia) Concatenate(ctx context.Context, paths []string, out string) (string, error) {
	f.record("concat")
	f.mu.Lock()
	if f.started != nil {
		close(f.started)
		f.started = nil
	}
	f.mu.Unlock()
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return out, os.WriteFile(out, []byte("concat:"+strings.Join(paths, ",")), 0o644)
}

func (f *fakeMedia) FitDuration(_ context.Context, path string, target float64, out string) (string, error) {
	f.record(fmt.Sprintf("fit:%.1f", target))
	return out, os.WriteFile(out, []byte("fitted"), 0o644)
}

func (f *fakeMedia) OverlayAudio(_ context.Context, video, audio, out string) (string, error) {
	f.record("overlay")
	return out, os.WriteFile(out, []byte("overlaid"), 0o644)
}

// testApp holds all components needed for testing
type testApp struct {
	app       *fiber.App
	media     *fakeMedia
	jobs      store.JobStore
	outputDir string
}

type appOptions struct {
	imagesURL string
	media     *fakeMedia
}

// setupApp wires the same server as main.go with in-memory stores, the inline
// dispatcher and a fake media adapter. No Redis or ffmpeg is needed.
func setupApp(t *testing.T, opts ...func(*appOptions)) *testApp {
	t.Helper()

	o := appOptions{media: &fakeMedia{duration: 30}}
	for _, opt := range opts {
		opt(&o)
	}

	root := t.TempDir()
	cfg := &config.Config{
		Server:  config.ServerConfig{Port: "0", LogLevel: "error", BodyLimitMB: 16},
		Queue:   config.QueueConfig{Mode: "inline", Concurrency: 2},
		Jobs:    config.JobsConfig{Store: "memory"},
		Storage: config.StorageConfig{UploadDir: root + "/uploads", OutputDir: root + "/outputs", MaxUploadMB: 1},
		Images:  config.ImagesConfig{BaseURL: o.imagesURL, Model: "test", Size: "1024x1024", MaxImages: 5, Timeout: 5},
		JWT:     config.JWTConfig{Secret: testJWTSecret},
	}
	if o.imagesURL != "" {
		cfg.Images.APIKey = "test-key"
	}

	ctx, cancel := context.WithCancel(context.Background())

	jobs := store.NewMemoryJobStore()
	files := store.NewMemoryFileStore()
	images := client.NewImagesClient(&cfg.Images)

	mux := worker.NewMux(
		worker.NewComposeWorker(jobs, o.media, cfg.Storage.OutputDir, nil, nil),
		worker.NewImageWorker(jobs, images, o.media, cfg.Storage.OutputDir, nil),
		worker.NewCleanupWorker(files, cfg.Storage.OutputDir, time.Hour),
	)
	dispatcher := queue.NewInlineDispatcher(ctx, mux, cfg.Queue.Concurrency)
	t.Cleanup(func() {
		cancel()
		dispatcher.Wait()
	})

	validate := validator.New()
	app := server.New(server.Deps{
		Config:      cfg,
		Validate:    validate,
		Uploads:     service.NewUploadService(files, o.media, cfg.Storage.UploadDir, int64(cfg.Storage.MaxUploadMB)*1024*1024),
		Compose:     service.NewComposeService(planner.New(files, o.media), jobs, dispatcher),
		Images:      service.NewImageService(files, jobs, dispatcher, images, cfg.Images.MaxImages),
		Jobs:        service.NewJobService(jobs, cfg.Storage.OutputDir, nil),
		Auth:        middleware.NewLegacyAuthMiddleware(testJWTSecret).Authenticate(),
		AuthHandler: handler.NewAuthHandler(nil, testJWTSecret),
		Health: handler.NewHealthHandler(
			map[string]handler.Check{"media": func(context.Context) error { return nil }},
			map[string]handler.Check{"images": func(context.Context) error { return client.ErrImagesNotConfigured }},
		),
	})

	return &testApp{app: app, media: o.media, jobs: jobs, outputDir: cfg.Storage.OutputDir}
}

func withMedia(m *fakeMedia) func(*appOptions) {
	return func(o *appOptions) { o.media = m }
}

// withImagesAPI points the image client at a fake API that returns one tiny PNG per call
func withImagesAPI(t *testing.T, failEvery int) func(*appOptions) {
	t.Helper()
	var mu sync.Mutex
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if failEvery > 0 && n%failEvery == 0 {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"message":"content policy"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"data":[{"b64_json":%q}]}`, base64.StdEncoding.EncodeToString([]byte("png")))
	}))
	t.Cleanup(srv.Close)
	return func(o *appOptions) { o.imagesURL = srv.URL }
}

// generateToken creates a legacy HMAC JWT token for test requests.
func generateToken(t *testing.T) string {
	t.Helper()
	signed, err := auth.IssueLegacyToken(testJWTSecret, "test-user-123", "test@example.com", time.Hour)
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return signed
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// doAuthRequest performs an authenticated request.
func doAuthRequest(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, error) {
	t.Helper()
	return doRequest(app, method, path, body, map[string]string{
		"Authorization": "Bearer " + generateToken(t),
	})
}

// doUpload posts a multipart file with optional extra form fields.
func doUpload(t *testing.T, app *fiber.App, path, filename, content string, fields map[string]string) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+generateToken(t))
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	return resp
}

// uploadFile uploads and returns the new file id, failing the test on any error.
func uploadFile(t *testing.T, app *fiber.App, kind, filename, content string, fields map[string]string) string {
	t.Helper()
	resp := doUpload(t, app, "/api/upload/"+kind, filename, content, fields)
	assertStatus(t, resp, http.StatusCreated)
	body := parseJSON(t, resp)
	id, _ := body["fileId"].(string)
	if id == "" {
		t.Fatalf("upload returned no fileId: %v", body)
	}
	return id
}

// waitForJob polls the status endpoint until the job reaches a terminal status.
func waitForJob(t *testing.T, app *fiber.App, jobID string) map[string]interface{} {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := doAuthRequest(t, app, http.MethodGet, "/api/jobs/"+jobID, "")
		if err != nil {
			t.Fatalf("status request failed: %v", err)
		}
		body := parseJSON(t, resp)
		switch body["status"] {
		case "completed", "failed", "cancelled":
			return body
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish in time", jobID)
	return nil
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

// errorCode extracts error.code from an error envelope.
func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	body := parseJSON(t, resp)
	e, ok := body["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected error envelope, got %v", body)
	}
	code, _ := e["code"].(string)
	return code
}
