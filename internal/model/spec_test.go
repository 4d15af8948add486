package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_EmptySpec(t *testing.T) {
	spec := &RenderSpec{ScriptID: "s1"}
	err := spec.Normalize(5)
	require.ErrorIs(t, err, ErrEmptyRenderSpec)
}

func TestNormalize_SortsScenesByOrder(t *testing.T) {
	spec := &RenderSpec{
		Scenes: []Scene{
			{ID: "c", Order: 3, DurationSec: 2},
			{ID: "a", Order: 1, DurationSec: 2},
			{ID: "b", Order: 2, DurationSec: 2},
		},
	}
	require.NoError(t, spec.Normalize(5))

	assert.Equal(t, "a", spec.Scenes[0].ID)
	assert.Equal(t, "b", spec.Scenes[1].ID)
	assert.Equal(t, "c", spec.Scenes[2].ID)
}

func TestNormalize_CoercesNonPositiveDurations(t *testing.T) {
	spec := &RenderSpec{
		Scenes: []Scene{
			{ID: "a", Order: 1, DurationSec: 0},
			{ID: "b", Order: 2, DurationSec: -3},
			{ID: "c", Order: 3, DurationSec: 7},
		},
	}
	require.NoError(t, spec.Normalize(5))

	assert.Equal(t, 5.0, spec.Scenes[0].DurationSec)
	assert.Equal(t, 5.0, spec.Scenes[1].DurationSec)
	assert.Equal(t, 7.0, spec.Scenes[2].DurationSec)
	assert.Equal(t, 17.0, spec.TotalDurationSec)
}

func TestNormalize_RecomputesTotalDuration(t *testing.T) {
	spec := &RenderSpec{
		// Stale total from the authority is ignored
		TotalDurationSec: 999,
		Scenes: []Scene{
			{ID: "a", Order: 1, DurationSec: 4},
			{ID: "b", Order: 2, DurationSec: 6},
		},
	}
	require.NoError(t, spec.Normalize(5))
	assert.Equal(t, 10.0, spec.TotalDurationSec)
}

func TestTerminal(t *testing.T) {
	assert.False(t, JobStatusPending.Terminal())
	assert.False(t, JobStatusRunning.Terminal())
	assert.True(t, JobStatusSucceeded.Terminal())
	assert.True(t, JobStatusFailed.Terminal())
	assert.True(t, JobStatusCanceled.Terminal())
}
