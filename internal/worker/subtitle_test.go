package worker

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scriptreel/api/internal/model"
)

func buildVTT(t *testing.T, scenes []model.Scene) string {
	t.Helper()
	outPath := filepath.Join(t.TempDir(), "subtitle.vtt")
	require.NoError(t, BuildSubtitle(scenes, outPath))
	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	return string(data)
}

func TestBuildSubtitle_CuePerScene(t *testing.T) {
	vtt := buildVTT(t, []model.Scene{
		{ID: "a", DurationSec: 5, Narration: "Welcome to the course."},
		{ID: "b", DurationSec: 10, Narration: "Let's begin."},
	})

	assert.True(t, strings.HasPrefix(vtt, "WEBVTT\n"))
	assert.Contains(t, vtt, "00:00:00.000 --> 00:00:05.000\nWelcome to the course.")
	assert.Contains(t, vtt, "00:00:05.000 --> 00:00:15.000\nLet's begin.")
}

func TestBuildSubtitle_CaptionFallback(t *testing.T) {
	vtt := buildVTT(t, []model.Scene{
		{ID: "a", DurationSec: 4, Caption: "Title slide"},
	})
	assert.Contains(t, vtt, "Title slide")
}

func TestBuildSubtitle_SilentSceneAdvancesClock(t *testing.T) {
	vtt := buildVTT(t, []model.Scene{
		{ID: "a", DurationSec: 5, Narration: "First."},
		{ID: "b", DurationSec: 7}, // silent, no cue
		{ID: "c", DurationSec: 3, Narration: "Last."},
	})

	// Two cues only, with the silent gap reflected in the third scene's start
	assert.NotContains(t, vtt, "\n3\n")
	assert.Contains(t, vtt, "00:00:12.000 --> 00:00:15.000\nLast.")
}

func TestBuildSubtitle_FractionalTimestamps(t *testing.T) {
	vtt := buildVTT(t, []model.Scene{
		{ID: "a", DurationSec: 2.5, Narration: "Half."},
	})
	assert.Contains(t, vtt, "00:00:00.000 --> 00:00:02.500")
}
