package repository

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/scriptreel/api/internal/model"
)

// MemoryJobRepository is an in-process JobRepository with the same
// atomicity contract as the Redis implementation. Used in tests and
// single-node development.
type MemoryJobRepository struct {
	mu   sync.Mutex
	jobs map[string]*model.RenderJob
	// latest job per video, for the one-non-terminal-job-per-video check
	byVideo map[string]string
}

func NewMemoryJobRepository() *MemoryJobRepository {
	return &MemoryJobRepository{
		jobs:    make(map[string]*model.RenderJob),
		byVideo: make(map[string]string),
	}
}

func (r *MemoryJobRepository) Create(ctx context.Context, job *model.RenderJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existingID, ok := r.byVideo[job.VideoID]; ok {
		if existing, ok := r.jobs[existingID]; ok && !existing.Status.Terminal() {
			return ErrDuplicateActiveJob
		}
	}

	r.jobs[job.ID] = cloneJob(job)
	r.byVideo[job.VideoID] = job.ID
	return nil
}

func (r *MemoryJobRepository) Get(ctx context.Context, jobID string) (*model.RenderJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneJob(job), nil
}

func (r *MemoryJobRepository) Update(ctx context.Context, jobID string, fn func(*model.RenderJob) error) (*model.RenderJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return nil, ErrNotFound
	}

	candidate := cloneJob(job)
	if err := fn(candidate); err != nil {
		return nil, err
	}

	r.jobs[jobID] = candidate
	return cloneJob(candidate), nil
}

// cloneJob deep-copies via JSON, same round-trip the Redis store performs.
func cloneJob(job *model.RenderJob) *model.RenderJob {
	data, err := json.Marshal(job)
	if err != nil {
		panic(err)
	}
	var out model.RenderJob
	if err := json.Unmarshal(data, &out); err != nil {
		panic(err)
	}
	return &out
}
