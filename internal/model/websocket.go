package model

// Message types pushed on /ws/jobs/:jobId. Clients send ping and get pong.
const (
	WSMessageTypeProgress = "progress"
	WSMessageTypeComplete = "complete"
	WSMessageTypeError    = "error"
	WSMessageTypePing     = "ping"
	WSMessageTypePong     = "pong"
)

// WSMessage is the envelope read from clients
type WSMessage struct {
	Type string `json:"type"`
}

// WSProgressMessage mirrors one checkpoint write of a job
type WSProgressMessage struct {
	Type     string    `json:"type"`
	JobID    string    `json:"jobId"`
	Kind     JobKind   `json:"kind"`
	Progress int       `json:"progress"`
	Status   JobStatus `json:"status"`
	Message  string    `json:"message,omitempty"`
}

// WSCompleteMessage carries the same view GET /api/jobs/:jobId returns once completed
type WSCompleteMessage struct {
	Type  string       `json:"type"`
	JobID string       `json:"jobId"`
	Job   *JobResponse `json:"job"`
}

// WSErrorMessage reports a failed or cancelled job. Code is JOB_FAILED or JOB_CANCELLED.
type WSErrorMessage struct {
	Type  string  `json:"type"`
	JobID string  `json:"jobId"`
	Error WSError `json:"error"`
}

type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
