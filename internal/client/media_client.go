package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/scriptreel/api/internal/config"
	"github.com/scriptreel/api/internal/model"
)

// SpeechSynthesizer turns narration text into an audio file on disk and
// reports the audio duration in seconds.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text, voice, outPath string) (float64, error)
}

// SlideRenderer rasterizes one scene into an image file on disk.
type SlideRenderer interface {
	RenderSlide(ctx context.Context, scene *model.Scene, outPath string) error
}

// ComposeRequest carries the inputs of a video composition. AudioPaths is
// index-aligned with SlidePaths; an empty entry means the scene has no
// narration audio and is covered by silence for its duration.
type ComposeRequest struct {
	SlidePaths     []string
	AudioPaths     []string
	SubtitlePath   string
	SceneDurations []float64
	OutputPath     string
}

// ComposeResult is the outcome of a video composition.
type ComposeResult struct {
	DurationSec float64
}

// VideoComposer muxes slides, audio and the subtitle track into one video.
type VideoComposer interface {
	Compose(ctx context.Context, req *ComposeRequest) (*ComposeResult, error)
}

// MediaClient implements the three media capabilities against the media
// rendering microservice. Binary responses are streamed straight to disk;
// audio/video duration rides on the X-Duration-Sec response header.
type MediaClient struct {
	httpClient *http.Client
	baseURL    string
}

// NewMediaClient creates a new media service client
func NewMediaClient(cfg *config.MediaConfig) *MediaClient {
	return &MediaClient{
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
		baseURL: cfg.ServiceURL,
	}
}

// Synthesize requests TTS audio for the given text and writes it to outPath.
func (c *MediaClient) Synthesize(ctx context.Context, text, voice, outPath string) (float64, error) {
	body := map[string]string{"text": text, "voice": voice}
	resp, err := c.postJSON(ctx, "/v1/tts", body)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if err := writeBody(resp.Body, outPath); err != nil {
		return 0, fmt.Errorf("failed to write audio: %w", err)
	}

	return parseDurationHeader(resp), nil
}

// RenderSlide requests a rasterized slide for the scene and writes it to
// outPath.
func (c *MediaClient) RenderSlide(ctx context.Context, scene *model.Scene, outPath string) error {
	resp, err := c.postJSON(ctx, "/v1/slides", scene)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := writeBody(resp.Body, outPath); err != nil {
		return fmt.Errorf("failed to write slide: %w", err)
	}
	return nil
}

// Compose uploads slides, audio and subtitle as multipart form data and
// streams the composed video back to req.OutputPath.
func (c *MediaClient) Compose(ctx context.Context, req *ComposeRequest) (*ComposeResult, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	meta := map[string]interface{}{"sceneDurations": req.SceneDurations}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}
	if err := w.WriteField("meta", string(metaBytes)); err != nil {
		return nil, err
	}

	for i, p := range req.SlidePaths {
		if err := attachFile(w, fmt.Sprintf("slide_%d", i), p); err != nil {
			return nil, err
		}
	}
	for i, p := range req.AudioPaths {
		if p == "" {
			continue
		}
		if err := attachFile(w, fmt.Sprintf("audio_%d", i), p); err != nil {
			return nil, err
		}
	}
	if req.SubtitlePath != "" {
		if err := attachFile(w, "subtitle", req.SubtitlePath); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/compose", &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", w.FormDataContentType())

	log.Printf("[Media API] → POST %s", httpReq.URL.String())

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("media service error (status %d): %s", resp.StatusCode, string(body))
	}

	if err := writeBody(resp.Body, req.OutputPath); err != nil {
		return nil, fmt.Errorf("failed to write video: %w", err)
	}

	return &ComposeResult{DurationSec: parseDurationHeader(resp)}, nil
}

// IsConfigured returns true if the client has valid configuration
func (c *MediaClient) IsConfigured() bool {
	return c.baseURL != ""
}

func (c *MediaClient) postJSON(ctx context.Context, endpoint string, body interface{}) (*http.Response, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	log.Printf("[Media API] → POST %s", req.URL.String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("media service error (status %d): %s", resp.StatusCode, string(respBody))
	}

	return resp, nil
}

func attachFile(w *multipart.Writer, field, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	part, err := w.CreateFormFile(field, filepath.Base(path))
	if err != nil {
		return err
	}
	_, err = io.Copy(part, f)
	return err
}

func writeBody(body io.Reader, outPath string) error {
	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(f, body)
	return err
}

func parseDurationHeader(resp *http.Response) float64 {
	d, err := strconv.ParseFloat(resp.Header.Get("X-Duration-Sec"), 64)
	if err != nil {
		return 0
	}
	return d
}
