package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scriptreel/api/internal/model"
)

func newJob(id, videoID string) *model.RenderJob {
	return &model.RenderJob{
		ID:        id,
		VideoID:   videoID,
		ScriptID:  "script-1",
		Status:    model.JobStatusPending,
		CreatedAt: time.Now().UTC(),
	}
}

func TestCreate_RejectsDuplicateActiveJob(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryJobRepository()

	require.NoError(t, repo.Create(ctx, newJob("j1", "v1")))

	err := repo.Create(ctx, newJob("j2", "v1"))
	require.ErrorIs(t, err, ErrDuplicateActiveJob)

	// A different video is unaffected
	require.NoError(t, repo.Create(ctx, newJob("j3", "v2")))
}

func TestCreate_AllowsNewJobAfterTerminal(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryJobRepository()

	require.NoError(t, repo.Create(ctx, newJob("j1", "v1")))
	_, err := repo.Update(ctx, "j1", func(j *model.RenderJob) error {
		j.Status = model.JobStatusFailed
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, repo.Create(ctx, newJob("j2", "v1")))
}

func TestGet_NotFound(t *testing.T) {
	repo := NewMemoryJobRepository()
	_, err := repo.Get(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpdate_AbortedMutationLeavesRecordUntouched(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryJobRepository()
	require.NoError(t, repo.Create(ctx, newJob("j1", "v1")))

	boom := errors.New("precondition failed")
	_, err := repo.Update(ctx, "j1", func(j *model.RenderJob) error {
		j.Status = model.JobStatusRunning
		return boom
	})
	require.ErrorIs(t, err, boom)

	job, err := repo.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPending, job.Status)
}

func TestUpdate_ReturnsMutatedCopy(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryJobRepository()
	require.NoError(t, repo.Create(ctx, newJob("j1", "v1")))

	updated, err := repo.Update(ctx, "j1", func(j *model.RenderJob) error {
		j.Status = model.JobStatusRunning
		j.Progress = 10
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusRunning, updated.Status)
	assert.Equal(t, 10, updated.Progress)

	// Mutating the returned copy must not leak into the store
	updated.Progress = 99
	job, err := repo.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, 10, job.Progress)
}
