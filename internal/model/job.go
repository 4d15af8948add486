package model

import (
	"encoding/json"
	"time"
)

// Job status
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCanceled  JobStatus = "canceled"
)

// Terminal reports whether no further status transitions are allowed.
func (s JobStatus) Terminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed || s == JobStatusCanceled
}

// Pipeline steps, in execution order
type PipelineStep string

const (
	StepValidateScript   PipelineStep = "validate_script"
	StepGenerateTTS      PipelineStep = "generate_tts"
	StepGenerateSubtitle PipelineStep = "generate_subtitle"
	StepRenderSlides     PipelineStep = "render_slides"
	StepComposeVideo     PipelineStep = "compose_video"
	StepUploadAssets     PipelineStep = "upload_assets"
	StepFinalize         PipelineStep = "finalize"
)

// RenderJob represents one tracked attempt (and its retries) to turn an
// approved script into a video asset.
type RenderJob struct {
	ID           string          `json:"id"`
	VideoID      string          `json:"videoId"`
	ScriptID     string          `json:"scriptId"`
	Status       JobStatus       `json:"status"`
	Step         PipelineStep    `json:"step,omitempty"`
	Progress     int             `json:"progress"`
	Snapshot     json.RawMessage `json:"snapshot,omitempty"` // frozen RenderSpec, write-once
	ErrorCode    string          `json:"errorCode,omitempty"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
	Asset        *VideoAsset     `json:"asset,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	StartedAt    *time.Time      `json:"startedAt,omitempty"`
	FinishedAt   *time.Time      `json:"finishedAt,omitempty"`
	RetryCount   int             `json:"retryCount"`
}

// HasSnapshot reports whether the job's render spec has been frozen.
// Once set, the snapshot is never overwritten for the life of the job.
func (j *RenderJob) HasSnapshot() bool {
	return len(j.Snapshot) > 0
}
