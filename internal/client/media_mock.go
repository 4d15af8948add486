package client

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/scriptreel/api/internal/model"
)

// Mock media providers for development and tests. They write small
// placeholder files so the rest of the pipeline (composition, upload)
// exercises real file handling.

// MockSynthesizer fakes TTS. Duration is estimated from word count at a
// typical narration pace.
type MockSynthesizer struct{}

func (MockSynthesizer) Synthesize(ctx context.Context, text, voice, outPath string) (float64, error) {
	content := fmt.Sprintf("MOCKAUDIO voice=%s words=%d\n", voice, len(strings.Fields(text)))
	if err := os.WriteFile(outPath, []byte(content), 0o644); err != nil {
		return 0, err
	}

	words := len(strings.Fields(text))
	duration := float64(words) / 2.5
	if duration < 1 {
		duration = 1
	}
	return duration, nil
}

// MockSlideRenderer fakes slide rasterization.
type MockSlideRenderer struct{}

func (MockSlideRenderer) RenderSlide(ctx context.Context, scene *model.Scene, outPath string) error {
	content := fmt.Sprintf("MOCKSLIDE scene=%s order=%d title=%s\n", scene.ID, scene.Order, scene.ChapterTitle)
	return os.WriteFile(outPath, []byte(content), 0o644)
}

// MockComposer fakes video composition. The reported duration is the sum of
// the scene durations, matching what the real composer produces.
type MockComposer struct{}

func (MockComposer) Compose(ctx context.Context, req *ComposeRequest) (*ComposeResult, error) {
	content := fmt.Sprintf("MOCKVIDEO slides=%d subtitle=%v\n", len(req.SlidePaths), req.SubtitlePath != "")
	if err := os.WriteFile(req.OutputPath, []byte(content), 0o644); err != nil {
		return nil, err
	}

	var total float64
	for _, d := range req.SceneDurations {
		total += d
	}
	return &ComposeResult{DurationSec: total}, nil
}
