package model

import (
	"errors"
	"sort"
)

// ErrEmptyRenderSpec is returned when a render spec carries no scenes.
// A job cannot start from such a spec.
var ErrEmptyRenderSpec = errors.New("render spec has no scenes")

// RenderSpec is the frozen render specification a job works from. It is
// fetched from the script authority once, at start time, and stored on the
// job record as an opaque blob.
type RenderSpec struct {
	ScriptID         string  `json:"scriptId"`
	VideoID          string  `json:"videoId"`
	Title            string  `json:"title"`
	TotalDurationSec float64 `json:"totalDurationSec"`
	Scenes           []Scene `json:"scenes"`
}

// Scene is one narrated unit within a render spec. Narration may be empty,
// which means "no audio for this scene", not an error.
type Scene struct {
	ID           string      `json:"sceneId"`
	Order        int         `json:"sceneOrder"`
	ChapterTitle string      `json:"chapterTitle,omitempty"`
	Purpose      string      `json:"purpose,omitempty"`
	Narration    string      `json:"narration"`
	Caption      string      `json:"caption,omitempty"`
	DurationSec  float64     `json:"durationSec"`
	VisualSpec   *VisualSpec `json:"visualSpec,omitempty"`
}

// VisualSpec describes how a scene's slide should look.
type VisualSpec struct {
	Layout       string   `json:"layout,omitempty"`
	Theme        string   `json:"theme,omitempty"`
	BulletPoints []string `json:"bulletPoints,omitempty"`
}

// Normalize validates the spec and brings it into canonical form: scenes
// sorted by order, non-positive scene durations coerced to
// defaultSceneDuration, and the total duration recomputed. A spec with zero
// scenes is rejected; an empty narration is not.
func (s *RenderSpec) Normalize(defaultSceneDuration float64) error {
	if len(s.Scenes) == 0 {
		return ErrEmptyRenderSpec
	}

	sort.SliceStable(s.Scenes, func(i, j int) bool {
		return s.Scenes[i].Order < s.Scenes[j].Order
	})

	var total float64
	for i := range s.Scenes {
		if s.Scenes[i].DurationSec <= 0 {
			s.Scenes[i].DurationSec = defaultSceneDuration
		}
		total += s.Scenes[i].DurationSec
	}
	s.TotalDurationSec = total

	return nil
}
