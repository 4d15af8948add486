package model

import "time"

// WebSocket message types
const (
	WSMessageTypeProgress = "progress"
	WSMessageTypeStatus   = "status" // catch-up snapshot for late subscribers
	WSMessageTypeComplete = "complete"
	WSMessageTypeError    = "error"
	WSMessageTypePing     = "ping"
	WSMessageTypePong     = "pong"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// WSProgressMessage is one progress snapshot for a job. The same shape is
// used for the catch-up "status" event sent to subscribers that connect
// after the job has already advanced.
type WSProgressMessage struct {
	Type      string       `json:"type"`
	JobID     string       `json:"jobId"`
	Status    JobStatus    `json:"status"`
	Step      PipelineStep `json:"step,omitempty"`
	Progress  int          `json:"progress"`
	Message   string       `json:"message,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// WSCompleteMessage carries the final asset of a succeeded job
type WSCompleteMessage struct {
	Type      string      `json:"type"`
	JobID     string      `json:"jobId"`
	Asset     *VideoAsset `json:"asset"`
	Timestamp time.Time   `json:"timestamp"`
}

// WSErrorMessage reports a failed job
type WSErrorMessage struct {
	Type      string    `json:"type"`
	JobID     string    `json:"jobId"`
	Error     WSError   `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// WSError represents error details
type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
