package model

import "time"

// Job represents a background job in the system
type Job struct {
	ID          string     `json:"id"`
	Kind        JobKind    `json:"kind"`
	Status      JobStatus  `json:"status"`
	Progress    int        `json:"progress"`
	Message     string     `json:"message"`
	ResultRef   *string    `json:"resultRef,omitempty"` // relative to the output root
	MirrorURL   *string    `json:"mirrorUrl,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Checkpoint messages written by the composition worker
const (
	MessageQueued        = "queued"
	MessageProcessing    = "processing"
	MessageClipsCombined = "clips combined"
	MessageSynchronized  = "synchronized to voiceover"
	MessageAudioOverlaid = "audio overlaid"
	MessageCompleted     = "completed"
	MessageCancelled     = "cancelled by user"
)

// Checkpoint progress values written by the composition worker
const (
	ProgressQueued        = 0
	ProgressProcessing    = 10
	ProgressClipsCombined = 60
	ProgressSynchronized  = 80
	ProgressAudioOverlaid = 95
	ProgressCompleted     = 100
)

// JobResponse is the polled view of a job
type JobResponse struct {
	JobID       string     `json:"jobId"`
	Kind        JobKind    `json:"kind"`
	Status      JobStatus  `json:"status"`
	Progress    int        `json:"progress"`
	Message     string     `json:"message"`
	ResultURL   *string    `json:"resultUrl,omitempty"`
	MirrorURL   *string    `json:"mirrorUrl,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// JobSubmitResponse is returned when a job is accepted
type JobSubmitResponse struct {
	JobID     string    `json:"jobId"`
	Kind      JobKind   `json:"kind"`
	Status    JobStatus `json:"status"`
	Progress  int       `json:"progress"`
	Message   string    `json:"message"`
	Warnings  []string  `json:"warnings,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewJobSubmitResponse builds the acceptance view of a freshly created job
func NewJobSubmitResponse(job *Job, warnings []string) *JobSubmitResponse {
	return &JobSubmitResponse{
		JobID:     job.ID,
		Kind:      job.Kind,
		Status:    job.Status,
		Progress:  job.Progress,
		Message:   job.Message,
		Warnings:  warnings,
		CreatedAt: job.CreatedAt,
	}
}

// JobCancelResponse represents the response for a cancel request
type JobCancelResponse struct {
	Success bool      `json:"success"`
	JobID   string    `json:"jobId"`
	Status  JobStatus `json:"status"`
}

// JobListResponse represents a page of jobs
type JobListResponse struct {
	Jobs   []JobResponse `json:"jobs"`
	Offset int           `json:"offset"`
	Limit  int           `json:"limit"`
}

// DownloadPrefix is the public route prefix for job artifacts
const DownloadPrefix = "/api/download/"

// NewJobResponse builds the polled view of job
func NewJobResponse(job *Job) *JobResponse {
	resp := &JobResponse{
		JobID:       job.ID,
		Kind:        job.Kind,
		Status:      job.Status,
		Progress:    job.Progress,
		Message:     job.Message,
		MirrorURL:   job.MirrorURL,
		CreatedAt:   job.CreatedAt,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
	}
	if job.Status == JobStatusCompleted && job.ResultRef != nil {
		url := DownloadPrefix + *job.ResultRef
		resp.ResultURL = &url
	}
	return resp
}
