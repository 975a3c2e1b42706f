package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/aivideotool/api/internal/config"
)

const (
	// maxDetail bounds how much tool output is kept on an error
	maxDetail = 2048
	// waitDelay bounds how long a killed subprocess may hold its output pipes
	waitDelay = 5 * time.Second
)

// FFmpeg implements Adapter by running ffmpeg and ffprobe as subprocesses
type FFmpeg struct {
	ffmpegPath  string
	ffprobePath string

	probeTimeout   time.Duration
	concatTimeout  time.Duration
	fitTimeout     time.Duration
	overlayTimeout time.Duration
}

var _ Adapter = (*FFmpeg)(nil)

// NewFFmpeg creates a new ffmpeg-backed adapter
func NewFFmpeg(cfg *config.MediaConfig) *FFmpeg {
	return &FFmpeg{
		ffmpegPath:     resolveBinary(cfg.FFmpegPath, "ffmpeg"),
		ffprobePath:    resolveBinary(cfg.FFprobePath, "ffprobe"),
		probeTimeout:   time.Duration(cfg.ProbeTimeout) * time.Second,
		concatTimeout:  time.Duration(cfg.ConcatTimeout) * time.Second,
		fitTimeout:     time.Duration(cfg.FitTimeout) * time.Second,
		overlayTimeout: time.Duration(cfg.OverlayTimeout) * time.Second,
	}
}

// resolveBinary prefers the configured path, then PATH, then the usual install locations.
func resolveBinary(configured, name string) string {
	if configured != "" {
		return configured
	}
	if p, err := exec.LookPath(name); err == nil {
		return p
	}
	for _, dir := range []string{"/usr/bin", "/usr/local/bin", "/opt/ffmpeg/bin", "./bin"} {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return name
}

// CheckAvailable returns nil when both ffmpeg and ffprobe can be executed.
func (f *FFmpeg) CheckAvailable() error {
	if _, err := exec.LookPath(f.ffmpegPath); err != nil {
		return fmt.Errorf("ffmpeg not found (%s): %w", f.ffmpegPath, err)
	}
	if _, err := exec.LookPath(f.ffprobePath); err != nil {
		return fmt.Errorf("ffprobe not found (%s): %w", f.ffprobePath, err)
	}
	return nil
}

// IsConfigured returns true if the media tools are available
func (f *FFmpeg) IsConfigured() bool {
	return f.CheckAvailable() == nil
}

type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe returns the container duration reported by ffprobe
func (f *FFmpeg) Probe(ctx context.Context, path string) (float64, error) {
	if err := checkReadable("probe", path, KindMediaUnreadable); err != nil {
		return 0, err
	}

	out, err := f.run(ctx, f.probeTimeout, KindMediaUnreadable, "probe", path, f.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "json",
		path,
	)
	if err != nil {
		return 0, err
	}

	duration, err := parseProbeDuration(out)
	if err != nil {
		return 0, &Error{Kind: KindMediaUnreadable, Op: "probe", Path: path, Err: err}
	}
	return duration, nil
}

func parseProbeDuration(data []byte) (float64, error) {
	var probe probeOutput
	if err := json.Unmarshal(data, &probe); err != nil {
		return 0, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	if probe.Format.Duration == "" || probe.Format.Duration == "N/A" {
		return 0, errors.New("no duration in ffprobe output")
	}
	duration, err := strconv.ParseFloat(probe.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", probe.Format.Duration, err)
	}
	if duration <= 0 || math.IsNaN(duration) || math.IsInf(duration, 0) {
		return 0, fmt.Errorf("invalid duration %q", probe.Format.Duration)
	}
	return duration, nil
}

// Concatenate joins clips with the concat demuxer, copying streams without re-encoding
func (f *FFmpeg) Concatenate(ctx context.Context, paths []string, outputPath string) (string, error) {
	if len(paths) == 0 {
		return "", &Error{Kind: KindConcatenationFailed, Op: "concat", Detail: "no input clips"}
	}
	for _, p := range paths {
		if err := checkReadable("concat", p, KindMediaUnreadable); err != nil {
			return "", err
		}
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return "", &Error{Kind: KindConcatenationFailed, Op: "concat", Path: outputPath, Err: err}
	}

	list, err := buildConcatList(paths)
	if err != nil {
		return "", &Error{Kind: KindConcatenationFailed, Op: "concat", Path: outputPath, Err: err}
	}
	listPath := strings.TrimSuffix(outputPath, filepath.Ext(outputPath)) + "_list.txt"
	if err := os.WriteFile(listPath, []byte(list), 0o644); err != nil {
		return "", &Error{Kind: KindConcatenationFailed, Op: "concat", Path: listPath, Err: err}
	}
	defer os.Remove(listPath)

	_, err = f.run(ctx, f.concatTimeout, KindConcatenationFailed, "concat", outputPath, f.ffmpegPath,
		"-y", "-hide_banner", "-loglevel", "error",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		outputPath,
	)
	if err != nil {
		return "", err
	}
	return outputPath, nil
}

// buildConcatList renders the concat demuxer script for paths
func buildConcatList(paths []string) (string, error) {
	var b strings.Builder
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return "", err
		}
		b.WriteString("file '")
		b.WriteString(strings.ReplaceAll(abs, "'", `'\''`))
		b.WriteString("'\n")
	}
	return b.String(), nil
}

// FitDuration trims a longer source or loops a shorter one to exactly target seconds
func (f *FFmpeg) FitDuration(ctx context.Context, path string, target float64, outputPath string) (string, error) {
	if target <= 0 || math.IsNaN(target) || math.IsInf(target, 0) {
		return "", &Error{Kind: KindInvalidTarget, Op: "fit", Path: path, Detail: fmt.Sprintf("target duration must be positive, got %v", target)}
	}

	source, err := f.Probe(ctx, path)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return "", &Error{Kind: KindFitFailed, Op: "fit", Path: outputPath, Err: err}
	}

	log.Debug().
		Str("path", path).
		Float64("source", source).
		Float64("target", target).
		Msg("Fitting media duration")

	if _, err := f.run(ctx, f.fitTimeout, KindFitFailed, "fit", path, f.ffmpegPath, fitArgs(path, source, target, outputPath)...); err != nil {
		return "", err
	}
	return outputPath, nil
}

// fitArgs builds the ffmpeg arguments for FitDuration
func fitArgs(path string, source, target float64, outputPath string) []string {
	args := []string{"-y", "-hide_banner", "-loglevel", "error"}
	if source < target {
		loops := int(math.Ceil(target/source)) - 1
		args = append(args, "-stream_loop", strconv.Itoa(loops))
	}
	return append(args,
		"-i", path,
		"-t", strconv.FormatFloat(target, 'f', 3, 64),
		"-c", "copy",
		outputPath,
	)
}

// OverlayAudio replaces the video's audio track with audioPath
func (f *FFmpeg) OverlayAudio(ctx context.Context, videoPath, audioPath, outputPath string) (string, error) {
	if err := checkReadable("overlay", videoPath, KindOverlayFailed); err != nil {
		return "", err
	}
	if err := checkReadable("overlay", audioPath, KindOverlayFailed); err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return "", &Error{Kind: KindOverlayFailed, Op: "overlay", Path: outputPath, Err: err}
	}

	_, err := f.run(ctx, f.overlayTimeout, KindOverlayFailed, "overlay", videoPath, f.ffmpegPath,
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", videoPath,
		"-i", audioPath,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-c:v", "copy",
		"-c:a", "aac",
		"-shortest",
		outputPath,
	)
	if err != nil {
		return "", err
	}
	return outputPath, nil
}

// run executes one tool invocation under its own timeout and classifies failures.
func (f *FFmpeg) run(ctx context.Context, timeout time.Duration, kind Kind, op, path, bin string, args ...string) ([]byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay

	start := time.Now()
	err := cmd.Run()
	log.Debug().
		Str("op", op).
		Str("bin", bin).
		Strs("args", args).
		Dur("elapsed", time.Since(start)).
		Err(err).
		Msg("Media command finished")

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &Error{
				Kind:   KindMediaTimeout,
				Op:     op,
				Path:   path,
				Detail: fmt.Sprintf("%s did not finish within %s", filepath.Base(bin), timeout),
				Err:    ctx.Err(),
			}
		}
		return nil, &Error{Kind: kind, Op: op, Path: path, Detail: tail(stderr.String()), Err: err}
	}
	return stdout.Bytes(), nil
}

func checkReadable(op, path string, kind Kind) error {
	info, err := os.Stat(path)
	if err != nil {
		return &Error{Kind: kind, Op: op, Path: path, Err: err}
	}
	if info.IsDir() {
		return &Error{Kind: kind, Op: op, Path: path, Detail: "is a directory"}
	}
	if info.Size() == 0 {
		return &Error{Kind: kind, Op: op, Path: path, Detail: "file is empty"}
	}
	return nil
}

// tail keeps the last maxDetail bytes of tool output, cut on a rune boundary
func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxDetail {
		return s
	}
	cut := len(s) - maxDetail
	for cut < len(s) && !utf8.RuneStart(s[cut]) {
		cut++
	}
	return "..." + s[cut:]
}
