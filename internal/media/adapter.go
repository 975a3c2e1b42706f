// Package media wraps the external media tooling behind a small, stable interface.
package media

import "context"

// Adapter defines the media operations the composition pipeline needs.
// Every call blocks until the underlying subprocess exits or its timeout fires.
type Adapter interface {
	// Probe returns the duration of a media file in seconds.
	Probe(ctx context.Context, path string) (float64, error)

	// Concatenate joins paths in order into outputPath.
	Concatenate(ctx context.Context, paths []string, outputPath string) (string, error)

	// FitDuration trims or loops path so it lasts exactly target seconds.
	FitDuration(ctx context.Context, path string, target float64, outputPath string) (string, error)

	// OverlayAudio replaces the audio track of videoPath with audioPath.
	OverlayAudio(ctx context.Context, videoPath, audioPath, outputPath string) (string, error)
}
