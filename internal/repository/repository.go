package repository

import (
	"context"
	"errors"

	"github.com/scriptreel/api/internal/model"
)

var (
	// ErrNotFound is returned when no job exists for the given id.
	ErrNotFound = errors.New("job not found")

	// ErrDuplicateActiveJob is returned by Create when a non-terminal job
	// already exists for the same video.
	ErrDuplicateActiveJob = errors.New("active job already exists for video")
)

// JobRepository is the durable store of render job records. It is the only
// mutable shared state in the system; Update must apply its mutation
// atomically with respect to concurrent writers so that the service's
// check-and-transition state machine cannot race.
type JobRepository interface {
	// Create persists a new job, enforcing at most one non-terminal job
	// per video id.
	Create(ctx context.Context, job *model.RenderJob) error

	// Get returns the current job record.
	Get(ctx context.Context, jobID string) (*model.RenderJob, error)

	// Update applies fn to the stored record atomically. If fn returns an
	// error the record is left unchanged and that error is returned;
	// otherwise the mutated record is persisted and returned.
	Update(ctx context.Context, jobID string, fn func(*model.RenderJob) error) (*model.RenderJob, error)
}
