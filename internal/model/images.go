package model

// ImageGenerationRequest is the body of POST /api/generate/ai-images
type ImageGenerationRequest struct {
	ScriptFileID         string `json:"scriptFileId" validate:"required"`
	VoiceFileID          string `json:"voiceFileId" validate:"required"`
	ImageCount           int    `json:"imageCount" validate:"required,min=1"`
	Style                string `json:"style" validate:"omitempty,max=200"`
	CharacterDescription string `json:"characterDescription" validate:"omitempty,max=2000"`
}

// ImageGenerationPlan is queued for the image worker
type ImageGenerationPlan struct {
	ScriptPath           string `json:"scriptPath"`
	VoicePath            string `json:"voicePath"`
	ImageCount           int    `json:"imageCount"`
	Style                string `json:"style"`
	CharacterDescription string `json:"characterDescription"`
}

// ImageGenerationTaskPayload is queued for the image worker
type ImageGenerationTaskPayload struct {
	JobID string              `json:"jobId"`
	Plan  ImageGenerationPlan `json:"plan"`
}

// GeneratedImage describes one generated scene image
type GeneratedImage struct {
	File      string  `json:"file"`
	Timestamp float64 `json:"timestamp"`
	Duration  float64 `json:"duration"`
	Prompt    string  `json:"prompt"`
}

// ImageGenerationMetadata is written next to the generated images
type ImageGenerationMetadata struct {
	JobID                string           `json:"jobId"`
	Images               []GeneratedImage `json:"images"`
	TotalDuration        float64          `json:"totalDuration"`
	Style                string           `json:"style"`
	CharacterDescription string           `json:"characterDescription"`
}
