package service

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scriptreel/api/internal/model"
	"github.com/scriptreel/api/internal/repository"
	ws "github.com/scriptreel/api/internal/websocket"
)

type fakeFetcher struct {
	spec       *model.RenderSpec
	approved   bool
	fetchErr   error
	fetchCalls int
}

func (f *fakeFetcher) GetRenderSpec(ctx context.Context, scriptID string) (*model.RenderSpec, error) {
	f.fetchCalls++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	// Fresh copy per call; the service normalizes in place
	clone := *f.spec
	clone.Scenes = append([]model.Scene(nil), f.spec.Scenes...)
	return &clone, nil
}

func (f *fakeFetcher) IsApproved(ctx context.Context, scriptID string) (bool, error) {
	return f.approved, nil
}

type fakeEnqueuer struct {
	tasks      []*asynq.Task
	enqueueErr error
}

func (f *fakeEnqueuer) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.enqueueErr != nil {
		return nil, f.enqueueErr
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "task-1", Type: task.Type()}, nil
}

func validSpec() *model.RenderSpec {
	return &model.RenderSpec{
		ScriptID: "script-1",
		Title:    "Onboarding",
		Scenes: []model.Scene{
			{ID: "a", Order: 1, Narration: "Hello.", DurationSec: 5},
			{ID: "b", Order: 2, Narration: "World.", DurationSec: 5},
		},
	}
}

func newTestService(t *testing.T) (*RenderJobService, *repository.MemoryJobRepository, *fakeFetcher, *fakeEnqueuer) {
	t.Helper()
	repo := repository.NewMemoryJobRepository()
	fetcher := &fakeFetcher{spec: validSpec(), approved: true}
	enqueuer := &fakeEnqueuer{}
	hub := ws.NewHub()
	go hub.Run()
	svc := NewRenderJobService(repo, fetcher, enqueuer, hub, 5)
	return svc, repo, fetcher, enqueuer
}

func createJob(t *testing.T, svc *RenderJobService) *model.RenderJob {
	t.Helper()
	job, err := svc.Create(context.Background(), "video-1", "script-1")
	require.NoError(t, err)
	return job
}

func TestCreate(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	job := createJob(t, svc)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, model.JobStatusPending, job.Status)
	assert.Equal(t, "video-1", job.VideoID)
	assert.False(t, job.HasSnapshot())
}

func TestCreate_NotApproved(t *testing.T) {
	svc, _, fetcher, _ := newTestService(t)
	fetcher.approved = false

	_, err := svc.Create(context.Background(), "video-1", "script-1")
	require.ErrorIs(t, err, ErrScriptNotApproved)
}

func TestCreate_DuplicateActiveJob(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	createJob(t, svc)

	_, err := svc.Create(context.Background(), "video-1", "script-1")
	require.ErrorIs(t, err, ErrDuplicateJob)
}

func TestStart(t *testing.T) {
	ctx := context.Background()
	svc, repo, fetcher, enqueuer := newTestService(t)
	job := createJob(t, svc)

	started, err := svc.Start(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusRunning, started.Status)

	stored, err := repo.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusRunning, stored.Status)
	assert.True(t, stored.HasSnapshot())
	assert.NotNil(t, stored.StartedAt)
	assert.Equal(t, 1, fetcher.fetchCalls)
	require.Len(t, enqueuer.tasks, 1)
	assert.Equal(t, TaskTypeRender, enqueuer.tasks[0].Type())
}

func TestStart_Idempotent(t *testing.T) {
	ctx := context.Background()
	svc, _, fetcher, enqueuer := newTestService(t)
	job := createJob(t, svc)

	_, err := svc.Start(ctx, job.ID)
	require.NoError(t, err)

	again, err := svc.Start(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusRunning, again.Status)

	// No second fetch, no second execution
	assert.Equal(t, 1, fetcher.fetchCalls)
	assert.Len(t, enqueuer.tasks, 1)
}

func TestStart_NotFound(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	_, err := svc.Start(context.Background(), "missing")
	require.ErrorIs(t, err, ErrJobNotFound)
}

func TestStart_Canceled(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newTestService(t)
	job := createJob(t, svc)
	_, err := svc.Cancel(ctx, job.ID)
	require.NoError(t, err)

	_, err = svc.Start(ctx, job.ID)
	require.ErrorIs(t, err, ErrJobCanceled)
}

func TestStart_FetchFailureLeavesJobPending(t *testing.T) {
	ctx := context.Background()
	svc, repo, fetcher, enqueuer := newTestService(t)
	job := createJob(t, svc)
	fetcher.fetchErr = errors.New("connection refused")

	_, err := svc.Start(ctx, job.ID)
	require.Error(t, err)

	stored, err := repo.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPending, stored.Status)
	assert.False(t, stored.HasSnapshot())
	assert.Empty(t, enqueuer.tasks)

	// The failure is transient from the job's point of view: start again
	fetcher.fetchErr = nil
	started, err := svc.Start(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusRunning, started.Status)
}

func TestStart_EmptySpec(t *testing.T) {
	ctx := context.Background()
	svc, repo, fetcher, _ := newTestService(t)
	fetcher.spec = &model.RenderSpec{ScriptID: "script-1"}
	job := createJob(t, svc)

	_, err := svc.Start(ctx, job.ID)
	require.ErrorIs(t, err, ErrEmptyRenderSpec)

	stored, err := repo.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPending, stored.Status)
}

func TestStart_EnqueueFailureRevertsToPending(t *testing.T) {
	ctx := context.Background()
	svc, repo, _, enqueuer := newTestService(t)
	job := createJob(t, svc)
	enqueuer.enqueueErr = errors.New("redis down")

	_, err := svc.Start(ctx, job.ID)
	require.ErrorIs(t, err, ErrScheduling)

	stored, err := repo.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPending, stored.Status)
	// The snapshot stays frozen; the retried start will not re-fetch
	assert.True(t, stored.HasSnapshot())
}

func failJob(t *testing.T, repo *repository.MemoryJobRepository, jobID string) {
	t.Helper()
	_, err := repo.Update(context.Background(), jobID, func(j *model.RenderJob) error {
		j.Status = model.JobStatusFailed
		j.ErrorCode = "COMPOSE_VIDEO_FAILED"
		return nil
	})
	require.NoError(t, err)
}

func TestRetry_NeverRefetches(t *testing.T) {
	ctx := context.Background()
	svc, repo, fetcher, enqueuer := newTestService(t)
	job := createJob(t, svc)

	_, err := svc.Start(ctx, job.ID)
	require.NoError(t, err)
	before, err := repo.Get(ctx, job.ID)
	require.NoError(t, err)

	failJob(t, repo, job.ID)

	retried, err := svc.Retry(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusRunning, retried.Status)
	assert.Equal(t, 1, retried.RetryCount)
	assert.Empty(t, retried.ErrorCode)

	// The reproducibility guarantee: same snapshot bytes, no second fetch
	assert.Equal(t, 1, fetcher.fetchCalls)
	assert.Equal(t, string(before.Snapshot), string(retried.Snapshot))
	assert.Len(t, enqueuer.tasks, 2)
}

func TestRetry_WithoutSnapshot(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	job := createJob(t, svc)

	_, err := svc.Retry(context.Background(), job.ID)
	require.ErrorIs(t, err, ErrNoRenderSpecForRetry)
}

func TestRetry_WhileRunning(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newTestService(t)
	job := createJob(t, svc)
	_, err := svc.Start(ctx, job.ID)
	require.NoError(t, err)

	_, err = svc.Retry(ctx, job.ID)
	require.ErrorIs(t, err, ErrJobAlreadyRunning)
}

func TestRetry_Canceled(t *testing.T) {
	ctx := context.Background()
	svc, repo, _, _ := newTestService(t)
	job := createJob(t, svc)
	_, err := svc.Start(ctx, job.ID)
	require.NoError(t, err)
	_, err = svc.Cancel(ctx, job.ID)
	require.NoError(t, err)

	_, err = svc.Retry(ctx, job.ID)
	require.ErrorIs(t, err, ErrJobCanceled)

	stored, err := repo.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCanceled, stored.Status)
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newTestService(t)
	job := createJob(t, svc)

	canceled, err := svc.Cancel(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCanceled, canceled.Status)
	assert.NotNil(t, canceled.FinishedAt)
}

func TestCancel_Running(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newTestService(t)
	job := createJob(t, svc)
	_, err := svc.Start(ctx, job.ID)
	require.NoError(t, err)

	canceled, err := svc.Cancel(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCanceled, canceled.Status)
}

func TestCancel_Terminal(t *testing.T) {
	ctx := context.Background()
	svc, repo, _, _ := newTestService(t)
	job := createJob(t, svc)
	_, err := svc.Start(ctx, job.ID)
	require.NoError(t, err)
	failJob(t, repo, job.ID)

	_, err = svc.Cancel(ctx, job.ID)
	require.ErrorIs(t, err, ErrCannotCancel)
}

func TestGetStatus(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newTestService(t)
	job := createJob(t, svc)

	status, err := svc.GetStatus(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, status.JobID)
	assert.Equal(t, model.JobStatusPending, status.Status)

	_, err = svc.GetStatus(ctx, "missing")
	require.ErrorIs(t, err, ErrJobNotFound)
}
