package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/scriptreel/api/internal/client"
	"github.com/scriptreel/api/internal/model"
	"github.com/scriptreel/api/internal/repository"
	ws "github.com/scriptreel/api/internal/websocket"
)

const TaskTypeRender = "render:pipeline"

// errAlreadyStarted marks the idempotent no-op path of Start: the job was
// started by an earlier (or concurrent) call and must not run twice.
var errAlreadyStarted = errors.New("job already started")

// Enqueuer schedules background tasks. *asynq.Client satisfies it.
type Enqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// RenderJobService owns the render job state machine and idempotency rules.
// It is the only component that transitions jobs into RUNNING; the atomic
// check-and-transition in the repository is the sole concurrency guard
// against double execution.
type RenderJobService struct {
	repo                 repository.JobRepository
	fetcher              client.SnapshotFetcher
	enqueuer             Enqueuer
	hub                  *ws.Hub
	defaultSceneDuration float64
}

func NewRenderJobService(repo repository.JobRepository, fetcher client.SnapshotFetcher, enqueuer Enqueuer, hub *ws.Hub, defaultSceneDuration float64) *RenderJobService {
	return &RenderJobService{
		repo:                 repo,
		fetcher:              fetcher,
		enqueuer:             enqueuer,
		hub:                  hub,
		defaultSceneDuration: defaultSceneDuration,
	}
}

// Create registers a new render job in PENDING. Fails if the script has no
// approved render spec source, or if a non-terminal job already exists for
// the video.
func (s *RenderJobService) Create(ctx context.Context, videoID, scriptID string) (*model.RenderJob, error) {
	approved, err := s.fetcher.IsApproved(ctx, scriptID)
	if err != nil {
		return nil, mapFetchError(err)
	}
	if !approved {
		return nil, ErrScriptNotApproved
	}

	job := &model.RenderJob{
		ID:        uuid.New().String(),
		VideoID:   videoID,
		ScriptID:  scriptID,
		Status:    model.JobStatusPending,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.repo.Create(ctx, job); err != nil {
		if errors.Is(err, repository.ErrDuplicateActiveJob) {
			return nil, ErrDuplicateJob
		}
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	return job, nil
}

// Start freezes the render spec on the job (first call only) and schedules
// the pipeline. Idempotent: a job that already started is returned as-is
// with no second execution. Snapshot fetch failures leave the job PENDING
// so start can be called again.
func (s *RenderJobService) Start(ctx context.Context, jobID string) (*model.RenderJob, error) {
	job, err := s.repo.Get(ctx, jobID)
	if err != nil {
		return nil, mapRepoError(err)
	}

	if job.Status == model.JobStatusCanceled {
		return nil, ErrJobCanceled
	}

	// No-op path: snapshot frozen and execution already happened (or is
	// happening). Prevents duplicate background runs from double-clicks
	// or retried HTTP calls.
	if job.HasSnapshot() && job.Status != model.JobStatusPending {
		return job, nil
	}

	if !job.HasSnapshot() {
		if err := s.freezeSnapshot(ctx, job); err != nil {
			return nil, err
		}
	}

	job, err = s.repo.Update(ctx, jobID, func(j *model.RenderJob) error {
		switch j.Status {
		case model.JobStatusPending:
			beginRun(j)
			return nil
		case model.JobStatusCanceled:
			return ErrJobCanceled
		default:
			return errAlreadyStarted
		}
	})
	if err != nil {
		if errors.Is(err, errAlreadyStarted) {
			// A concurrent start won the transition; report its state.
			return s.repo.Get(ctx, jobID)
		}
		return nil, mapRepoError(err)
	}

	if err := s.schedule(ctx, jobID); err != nil {
		// Best effort: put the job back in PENDING so start is retryable.
		s.repo.Update(ctx, jobID, func(j *model.RenderJob) error {
			if j.Status == model.JobStatusRunning && j.Progress == 0 && j.Step == "" {
				j.Status = model.JobStatusPending
				j.StartedAt = nil
			}
			return nil
		})
		return nil, ErrScheduling
	}

	return job, nil
}

// Retry re-runs a finished job against its stored snapshot. It never
// re-fetches the render spec; that is the reproducibility guarantee this
// subsystem exists to provide.
func (s *RenderJobService) Retry(ctx context.Context, jobID string) (*model.RenderJob, error) {
	job, err := s.repo.Get(ctx, jobID)
	if err != nil {
		return nil, mapRepoError(err)
	}

	if !job.HasSnapshot() {
		return nil, ErrNoRenderSpecForRetry
	}

	job, err = s.repo.Update(ctx, jobID, func(j *model.RenderJob) error {
		switch j.Status {
		case model.JobStatusRunning:
			return ErrJobAlreadyRunning
		case model.JobStatusCanceled:
			return ErrJobCanceled
		default:
			beginRun(j)
			j.RetryCount++
			return nil
		}
	})
	if err != nil {
		return nil, mapRepoError(err)
	}

	prevRetries := job.RetryCount
	if err := s.schedule(ctx, jobID); err != nil {
		s.repo.Update(ctx, jobID, func(j *model.RenderJob) error {
			if j.Status == model.JobStatusRunning && j.Progress == 0 && j.RetryCount == prevRetries {
				j.Status = model.JobStatusFailed
				j.ErrorCode = ErrScheduling.Code
				j.ErrorMessage = ErrScheduling.Message
			}
			return nil
		})
		return nil, ErrScheduling
	}

	return job, nil
}

// Cancel requests cooperative cancellation. Only PENDING and RUNNING jobs
// can be canceled; the executor stops at its next step boundary.
func (s *RenderJobService) Cancel(ctx context.Context, jobID string) (*model.RenderJob, error) {
	job, err := s.repo.Update(ctx, jobID, func(j *model.RenderJob) error {
		if j.Status.Terminal() {
			return ErrCannotCancel
		}
		now := time.Now().UTC()
		j.Status = model.JobStatusCanceled
		j.FinishedAt = &now
		return nil
	})
	if err != nil {
		return nil, mapRepoError(err)
	}

	s.hub.BroadcastProgress(job.ID, job.Status, job.Step, job.Progress, "Render canceled")
	return job, nil
}

// GetStatus returns the current observable state of a job. No side effects.
func (s *RenderJobService) GetStatus(ctx context.Context, jobID string) (*model.JobStatusResponse, error) {
	job, err := s.repo.Get(ctx, jobID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return model.StatusResponseFromJob(job), nil
}

// freezeSnapshot fetches, validates and persists the render spec. The
// repository write is first-writer-wins: a snapshot set by a concurrent
// start is never overwritten.
func (s *RenderJobService) freezeSnapshot(ctx context.Context, job *model.RenderJob) error {
	spec, err := s.fetcher.GetRenderSpec(ctx, job.ScriptID)
	if err != nil {
		return mapFetchError(err)
	}

	if spec.VideoID == "" {
		spec.VideoID = job.VideoID
	}
	if err := spec.Normalize(s.defaultSceneDuration); err != nil {
		if errors.Is(err, model.ErrEmptyRenderSpec) {
			return ErrEmptyRenderSpec
		}
		return err
	}

	raw, err := json.Marshal(spec)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	_, err = s.repo.Update(ctx, job.ID, func(j *model.RenderJob) error {
		if !j.HasSnapshot() {
			j.Snapshot = raw
		}
		return nil
	})
	return mapRepoError(err)
}

func (s *RenderJobService) schedule(ctx context.Context, jobID string) error {
	task, err := newRenderTask(jobID)
	if err != nil {
		return err
	}

	// Queue-level retries are disabled: re-execution is only ever an
	// explicit RetryJob, so the state machine stays the single guard.
	_, err = s.enqueuer.Enqueue(task,
		asynq.Queue("render"),
		asynq.MaxRetry(0),
		asynq.Retention(24*time.Hour),
	)
	return err
}

// beginRun resets the per-run fields for a fresh pipeline execution.
// The snapshot is deliberately untouched.
func beginRun(j *model.RenderJob) {
	now := time.Now().UTC()
	j.Status = model.JobStatusRunning
	j.Step = ""
	j.Progress = 0
	j.ErrorCode = ""
	j.ErrorMessage = ""
	j.Asset = nil
	j.StartedAt = &now
	j.FinishedAt = nil
}

func newRenderTask(jobID string) (*asynq.Task, error) {
	payload, err := json.Marshal(map[string]string{"jobId": jobID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeRender, payload), nil
}

func mapRepoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, repository.ErrNotFound) {
		return ErrJobNotFound
	}
	return err
}

func mapFetchError(err error) error {
	switch {
	case errors.Is(err, client.ErrScriptNotFound):
		return ErrScriptNotFound
	case errors.Is(err, client.ErrScriptUnauthorized):
		return ErrScriptFetchUnauthorized
	case errors.Is(err, client.ErrScriptServer):
		return ErrScriptFetchServerError
	default:
		return err
	}
}
