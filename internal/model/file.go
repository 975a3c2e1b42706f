package model

import "time"

// FileRecord is an uploaded file. Records are immutable once created.
type FileRecord struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	Path      string    `json:"path"`
	Kind      MediaKind `json:"kind"`
	Role      VideoRole `json:"role,omitempty"`
	Size      int64     `json:"size"`
	Duration  *float64  `json:"duration,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// UploadResponse represents the response for a file upload
type UploadResponse struct {
	FileID    string    `json:"fileId"`
	Filename  string    `json:"filename"`
	Kind      MediaKind `json:"kind"`
	Role      VideoRole `json:"role,omitempty"`
	Size      int64     `json:"size"`
	Duration  *float64  `json:"duration,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewUploadResponse builds the public view of a file record
func NewUploadResponse(rec *FileRecord) *UploadResponse {
	return &UploadResponse{
		FileID:    rec.ID,
		Filename:  rec.Filename,
		Kind:      rec.Kind,
		Role:      rec.Role,
		Size:      rec.Size,
		Duration:  rec.Duration,
		CreatedAt: rec.CreatedAt,
	}
}
