package model

import "time"

// CreateJobRequest is the body of POST /api/render/jobs
type CreateJobRequest struct {
	VideoID  string `json:"videoId" validate:"required"`
	ScriptID string `json:"scriptId" validate:"required"`
}

// CreateJobResponse is returned with 201 from job creation
type CreateJobResponse struct {
	JobID     string    `json:"jobId"`
	Status    JobStatus `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// JobActionResponse is returned from start/retry/cancel
type JobActionResponse struct {
	JobID  string    `json:"jobId"`
	Status JobStatus `json:"status"`
}

// JobStatusResponse is the full observable state of a job
type JobStatusResponse struct {
	JobID        string       `json:"jobId"`
	VideoID      string       `json:"videoId"`
	ScriptID     string       `json:"scriptId"`
	Status       JobStatus    `json:"status"`
	Step         PipelineStep `json:"step,omitempty"`
	Progress     int          `json:"progress"`
	ErrorCode    string       `json:"errorCode,omitempty"`
	ErrorMessage string       `json:"errorMessage,omitempty"`
	Asset        *VideoAsset  `json:"asset,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
	StartedAt    *time.Time   `json:"startedAt,omitempty"`
	FinishedAt   *time.Time   `json:"finishedAt,omitempty"`
	RetryCount   int          `json:"retryCount"`
}

// StatusResponseFromJob maps a job record to its API representation.
func StatusResponseFromJob(job *RenderJob) *JobStatusResponse {
	return &JobStatusResponse{
		JobID:        job.ID,
		VideoID:      job.VideoID,
		ScriptID:     job.ScriptID,
		Status:       job.Status,
		Step:         job.Step,
		Progress:     job.Progress,
		ErrorCode:    job.ErrorCode,
		ErrorMessage: job.ErrorMessage,
		Asset:        job.Asset,
		CreatedAt:    job.CreatedAt,
		StartedAt:    job.StartedAt,
		FinishedAt:   job.FinishedAt,
		RetryCount:   job.RetryCount,
	}
}
