package model

// CompositionRequest is the body of POST /api/generate/broll
type CompositionRequest struct {
	IntroClipIDs    []string `json:"introClipIds" validate:"omitempty,dive,required"`
	BrollClipIDs    []string `json:"brollClipIds" validate:"required,min=1,dive,required"`
	VoiceoverID     *string  `json:"voiceoverId,omitempty" validate:"omitempty,min=1"`
	SyncToVoiceover bool     `json:"syncToVoiceover"`
	OverlayAudio    bool     `json:"overlayAudio"`
}

// CompositionPlan is the resolved, ordered work for one composition job.
// TargetDuration is set only when syncing to a voiceover whose duration could be probed.
type CompositionPlan struct {
	Paths          []string `json:"paths"`
	VoiceoverPath  *string  `json:"voiceoverPath,omitempty"`
	TargetDuration *float64 `json:"targetDuration,omitempty"`
	OverlayAudio   bool     `json:"overlayAudio"`
	Warnings       []string `json:"warnings,omitempty"`
}

// CompositionTaskPayload is queued for the composition worker
type CompositionTaskPayload struct {
	JobID string          `json:"jobId"`
	Plan  CompositionPlan `json:"plan"`
}
