package worker

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/scriptreel/api/internal/model"
)

// BuildSubtitle derives a WebVTT track from the scene list and writes it to
// outPath. Cue timing follows the normalized scene durations; scenes with
// neither narration nor caption produce no cue but still advance the clock.
func BuildSubtitle(scenes []model.Scene, outPath string) error {
	var b strings.Builder
	b.WriteString("WEBVTT\n")

	var clock float64
	cue := 0
	for _, scene := range scenes {
		start := clock
		clock += scene.DurationSec

		text := strings.TrimSpace(scene.Narration)
		if text == "" {
			text = strings.TrimSpace(scene.Caption)
		}
		if text == "" {
			continue
		}

		cue++
		b.WriteString(fmt.Sprintf("\n%d\n%s --> %s\n%s\n", cue, vttTimestamp(start), vttTimestamp(clock), text))
	}

	return os.WriteFile(outPath, []byte(b.String()), 0o644)
}

// vttTimestamp formats seconds as HH:MM:SS.mmm.
func vttTimestamp(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second))
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	ms := int(d.Milliseconds()) % 1000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}
