package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/scriptreel/api/internal/client"
	"github.com/scriptreel/api/internal/model"
	"github.com/scriptreel/api/internal/repository"
	"github.com/scriptreel/api/internal/storage"
	ws "github.com/scriptreel/api/internal/websocket"
)

// errRunOver marks a job that left RUNNING (canceled) while a step was in
// flight; the executor stops without touching the record further.
var errRunOver = errors.New("job no longer running")

// Per-step progress sub-ranges. Each step starts where the previous one
// ended, so persisted progress is monotonically non-decreasing.
var stepBounds = map[model.PipelineStep][2]int{
	model.StepValidateScript:   {0, 10},
	model.StepGenerateTTS:      {10, 30},
	model.StepGenerateSubtitle: {30, 40},
	model.StepRenderSlides:     {40, 60},
	model.StepComposeVideo:     {60, 80},
	model.StepUploadAssets:     {80, 95},
	model.StepFinalize:         {95, 100},
}

var stepMessages = map[model.PipelineStep]string{
	model.StepValidateScript:   "Validating render spec...",
	model.StepGenerateTTS:      "Generating narration audio...",
	model.StepGenerateSubtitle: "Building subtitle track...",
	model.StepRenderSlides:     "Rendering slides...",
	model.StepComposeVideo:     "Composing video...",
	model.StepUploadAssets:     "Uploading assets...",
	model.StepFinalize:         "Finalizing...",
}

// RenderWorkerOptions carries the deployment knobs of the executor.
type RenderWorkerOptions struct {
	WorkRoot             string
	Voice                string
	DefaultSceneDuration float64
}

// RenderWorker executes the seven-step render pipeline for one job per
// task. All failures are converted into a FAILED transition on the job
// record; nothing escapes to the asynq server beyond logging.
type RenderWorker struct {
	repo     repository.JobRepository
	tts      client.SpeechSynthesizer
	slides   client.SlideRenderer
	composer client.VideoComposer
	store    storage.Provider
	hub      *ws.Hub
	opts     RenderWorkerOptions
}

// NewRenderWorker creates a new render pipeline worker
func NewRenderWorker(repo repository.JobRepository, tts client.SpeechSynthesizer, slides client.SlideRenderer, composer client.VideoComposer, store storage.Provider, hub *ws.Hub, opts RenderWorkerOptions) *RenderWorker {
	if opts.Voice == "" {
		opts.Voice = "narrator"
	}
	return &RenderWorker{
		repo:     repo,
		tts:      tts,
		slides:   slides,
		composer: composer,
		store:    store,
		hub:      hub,
		opts:     opts,
	}
}

// pipelineState is the scratch space one run accumulates across steps.
type pipelineState struct {
	spec         *model.RenderSpec
	workDir      string
	audioPaths   []string
	slidePaths   []string
	subtitlePath string
	videoPath    string
	thumbPath    string
	durationSec  float64
	asset        *model.VideoAsset
}

// ProcessTask handles one render:pipeline task.
func (w *RenderWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload struct {
		JobID string `json:"jobId"`
	}
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w", err)
	}
	jobID := payload.JobID
	log.Printf("Starting render pipeline for job %s", jobID)

	job, err := w.repo.Get(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", jobID, err)
	}
	if job.Status != model.JobStatusRunning {
		// Canceled (or otherwise settled) between scheduling and pickup.
		log.Printf("Render job %s is %s, skipping execution", jobID, job.Status)
		return nil
	}

	st := &pipelineState{spec: &model.RenderSpec{}}
	if err := json.Unmarshal(job.Snapshot, st.spec); err != nil {
		w.failJob(ctx, jobID, model.StepValidateScript, fmt.Errorf("corrupt snapshot: %w", err))
		return err
	}

	st.workDir, err = os.MkdirTemp(w.opts.WorkRoot, "render-"+jobID+"-")
	if err != nil {
		w.failJob(ctx, jobID, model.StepValidateScript, err)
		return err
	}
	defer os.RemoveAll(st.workDir)

	steps := []struct {
		step model.PipelineStep
		fn   func(context.Context, *model.RenderJob, *pipelineState) error
	}{
		{model.StepValidateScript, w.stepValidate},
		{model.StepGenerateTTS, w.stepGenerateTTS},
		{model.StepGenerateSubtitle, w.stepGenerateSubtitle},
		{model.StepRenderSlides, w.stepRenderSlides},
		{model.StepComposeVideo, w.stepComposeVideo},
		{model.StepUploadAssets, w.stepUploadAssets},
	}

	for _, s := range steps {
		cont, err := w.runStep(ctx, job, s.step, func() error { return s.fn(ctx, job, st) })
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}

	return w.finalize(ctx, job, st)
}

// runStep executes one step inside its failure-isolation boundary.
// Cancellation is honored at the boundary only: a cancel requested
// mid-step lets the step finish, then stops before the next one.
func (w *RenderWorker) runStep(ctx context.Context, job *model.RenderJob, step model.PipelineStep, fn func() error) (bool, error) {
	canceled, err := w.isCanceled(ctx, job.ID)
	if err != nil {
		return false, err
	}
	if canceled {
		log.Printf("Render job %s canceled before step %s", job.ID, step)
		return false, nil
	}

	bounds := stepBounds[step]
	if err := w.persistProgress(ctx, job.ID, step, bounds[0]); err != nil {
		if errors.Is(err, errRunOver) {
			return false, nil
		}
		return false, err
	}
	w.hub.BroadcastProgress(job.ID, model.JobStatusRunning, step, bounds[0], stepMessages[step])

	if err := fn(); err != nil {
		w.failJob(ctx, job.ID, step, err)
		return false, err
	}

	if err := w.persistProgress(ctx, job.ID, step, bounds[1]); err != nil {
		if errors.Is(err, errRunOver) {
			return false, nil
		}
		return false, err
	}
	w.hub.BroadcastProgress(job.ID, model.JobStatusRunning, step, bounds[1], stepMessages[step])

	return true, nil
}

// Step 1: structural re-check of the frozen snapshot.
func (w *RenderWorker) stepValidate(ctx context.Context, job *model.RenderJob, st *pipelineState) error {
	if err := st.spec.Normalize(w.opts.DefaultSceneDuration); err != nil {
		return err
	}
	return nil
}

// Step 2: synthesize narration audio. Scenes with empty narration are
// skipped and covered by silence for their duration; that is not an error.
func (w *RenderWorker) stepGenerateTTS(ctx context.Context, job *model.RenderJob, st *pipelineState) error {
	st.audioPaths = make([]string, len(st.spec.Scenes))
	for i, scene := range st.spec.Scenes {
		if strings.TrimSpace(scene.Narration) == "" {
			continue
		}
		outPath := filepath.Join(st.workDir, fmt.Sprintf("audio_%03d.wav", i))
		if _, err := w.tts.Synthesize(ctx, scene.Narration, w.opts.Voice, outPath); err != nil {
			return fmt.Errorf("scene %s: %w", scene.ID, err)
		}
		st.audioPaths[i] = outPath
	}
	return nil
}

// Step 3: derive the subtitle track.
func (w *RenderWorker) stepGenerateSubtitle(ctx context.Context, job *model.RenderJob, st *pipelineState) error {
	st.subtitlePath = filepath.Join(st.workDir, "subtitle.vtt")
	return BuildSubtitle(st.spec.Scenes, st.subtitlePath)
}

// Step 4: rasterize one slide per scene.
func (w *RenderWorker) stepRenderSlides(ctx context.Context, job *model.RenderJob, st *pipelineState) error {
	st.slidePaths = make([]string, len(st.spec.Scenes))
	for i := range st.spec.Scenes {
		outPath := filepath.Join(st.workDir, fmt.Sprintf("slide_%03d.png", i))
		if err := w.slides.RenderSlide(ctx, &st.spec.Scenes[i], outPath); err != nil {
			return fmt.Errorf("scene %s: %w", st.spec.Scenes[i].ID, err)
		}
		st.slidePaths[i] = outPath
	}
	return nil
}

// Step 5: mux slides, audio and subtitle into one video plus a thumbnail.
func (w *RenderWorker) stepComposeVideo(ctx context.Context, job *model.RenderJob, st *pipelineState) error {
	durations := make([]float64, len(st.spec.Scenes))
	for i, scene := range st.spec.Scenes {
		durations[i] = scene.DurationSec
	}

	st.videoPath = filepath.Join(st.workDir, "video.mp4")
	result, err := w.composer.Compose(ctx, &client.ComposeRequest{
		SlidePaths:     st.slidePaths,
		AudioPaths:     st.audioPaths,
		SubtitlePath:   st.subtitlePath,
		SceneDurations: durations,
		OutputPath:     st.videoPath,
	})
	if err != nil {
		return err
	}

	st.durationSec = result.DurationSec
	if st.durationSec <= 0 {
		st.durationSec = st.spec.TotalDurationSec
	}

	// The first scene's slide doubles as the thumbnail.
	st.thumbPath = filepath.Join(st.workDir, "thumbnail.png")
	return copyFile(st.slidePaths[0], st.thumbPath)
}

// Step 6: push the three assets under the job's key namespace. Keys are
// deterministic per job, so a retry overwrites its own earlier objects and
// never collides with another job's.
func (w *RenderWorker) stepUploadAssets(ctx context.Context, job *model.RenderJob, st *pipelineState) error {
	uploads := []struct {
		name        string
		path        string
		contentType string
	}{
		{"video.mp4", st.videoPath, "video/mp4"},
		{"subtitle.vtt", st.subtitlePath, "text/vtt"},
		{"thumbnail.png", st.thumbPath, "image/png"},
	}

	urls := make([]string, len(uploads))
	for i, u := range uploads {
		key := fmt.Sprintf("videos/%s/%s/%s/%s", job.VideoID, job.ScriptID, job.ID, u.name)
		result, err := w.store.Upload(ctx, key, u.path, u.contentType, logUploadObserver{})
		if err != nil {
			return err
		}
		urls[i] = result.PublicURL
	}

	st.asset = &model.VideoAsset{
		VideoURL:     urls[0],
		SubtitleURL:  urls[1],
		ThumbnailURL: urls[2],
		DurationSec:  st.durationSec,
	}
	return nil
}

// Step 7: persist the asset and settle the job.
func (w *RenderWorker) finalize(ctx context.Context, job *model.RenderJob, st *pipelineState) error {
	canceled, err := w.isCanceled(ctx, job.ID)
	if err != nil {
		return err
	}
	if canceled {
		log.Printf("Render job %s canceled before finalize", job.ID)
		return nil
	}

	bounds := stepBounds[model.StepFinalize]
	w.hub.BroadcastProgress(job.ID, model.JobStatusRunning, model.StepFinalize, bounds[0], stepMessages[model.StepFinalize])

	_, err = w.repo.Update(ctx, job.ID, func(j *model.RenderJob) error {
		if j.Status != model.JobStatusRunning {
			return errRunOver
		}
		now := time.Now().UTC()
		j.Status = model.JobStatusSucceeded
		j.Step = model.StepFinalize
		j.Progress = 100
		j.Asset = st.asset
		j.FinishedAt = &now
		return nil
	})
	if err != nil {
		if errors.Is(err, errRunOver) {
			return nil
		}
		w.failJob(ctx, job.ID, model.StepFinalize, err)
		return err
	}

	w.hub.BroadcastProgress(job.ID, model.JobStatusSucceeded, model.StepFinalize, 100, "Render complete")
	w.hub.BroadcastComplete(job.ID, st.asset)
	log.Printf("Render job %s completed", job.ID)
	return nil
}

func (w *RenderWorker) isCanceled(ctx context.Context, jobID string) (bool, error) {
	job, err := w.repo.Get(ctx, jobID)
	if err != nil {
		return false, err
	}
	return job.Status == model.JobStatusCanceled, nil
}

// persistProgress records (step, progress) while the job is still RUNNING.
// A job canceled mid-step surfaces here as errRunOver.
func (w *RenderWorker) persistProgress(ctx context.Context, jobID string, step model.PipelineStep, progress int) error {
	_, err := w.repo.Update(ctx, jobID, func(j *model.RenderJob) error {
		if j.Status != model.JobStatusRunning {
			return errRunOver
		}
		j.Step = step
		if progress > j.Progress {
			j.Progress = progress
		}
		return nil
	})
	return err
}

func (w *RenderWorker) failJob(ctx context.Context, jobID string, step model.PipelineStep, cause error) {
	code := stepFailureCode(step)
	msg := truncate(cause.Error(), 512)

	_, err := w.repo.Update(ctx, jobID, func(j *model.RenderJob) error {
		if j.Status != model.JobStatusRunning {
			return errRunOver
		}
		now := time.Now().UTC()
		j.Status = model.JobStatusFailed
		j.Step = step
		j.ErrorCode = code
		j.ErrorMessage = msg
		j.FinishedAt = &now
		return nil
	})
	if err != nil && !errors.Is(err, errRunOver) {
		log.Printf("Failed to mark job %s as failed: %v", jobID, err)
	}

	w.hub.BroadcastError(jobID, code, msg)
	log.Printf("Render job %s failed at %s: %v", jobID, step, cause)
}

// stepFailureCode derives the stable error code recorded on FAILED jobs.
func stepFailureCode(step model.PipelineStep) string {
	if step == model.StepUploadAssets {
		return "STORAGE_UPLOAD_FAILED"
	}
	return strings.ToUpper(string(step)) + "_FAILED"
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

// logUploadObserver logs the coarse per-object upload events.
type logUploadObserver struct{}

func (logUploadObserver) UploadStarted(key string) {
	log.Printf("[Upload] → %s", key)
}

func (logUploadObserver) UploadDone(key string, result *model.UploadResult) {
	log.Printf("[Upload] ✓ %s (%d bytes, etag=%s)", key, result.SizeBytes, result.ETag)
}

func (logUploadObserver) UploadFailed(key string, err error) {
	log.Printf("[Upload] ✗ %s: %v", key, err)
}
