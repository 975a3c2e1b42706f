package model

// Media kinds of uploaded files
type MediaKind string

const (
	MediaKindScript MediaKind = "script"
	MediaKindAudio  MediaKind = "audio"
	MediaKindVideo  MediaKind = "video"
)

var ValidMediaKinds = []MediaKind{MediaKindScript, MediaKindAudio, MediaKindVideo}

// Video roles
type VideoRole string

const (
	VideoRoleBroll VideoRole = "broll"
	VideoRoleIntro VideoRole = "intro"
)

// Allowed upload extensions per media kind
var AllowedExtensions = map[MediaKind][]string{
	MediaKindScript: {".txt", ".docx"},
	MediaKindAudio:  {".mp3", ".wav", ".m4a"},
	MediaKindVideo:  {".mp4", ".avi", ".mov", ".mkv"},
}

// Job kinds
type JobKind string

const (
	JobKindImageGeneration  JobKind = "image-generation"
	JobKindBrollComposition JobKind = "broll-composition"
)

// Job status
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// IsTerminal reports whether no further transition is allowed out of s.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}
