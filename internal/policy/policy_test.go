package policy_test

import (
	"testing"

	"github.com/lukasz26671/webaudioprov/internal/item"
	"github.com/lukasz26671/webaudioprov/internal/policy"
	"github.com/stretchr/testify/assert"
)

func Test_Check_DisabledGateAlwaysPasses(t *testing.T) {
	t.Parallel()

	limits := policy.Limits{LimitDuration: false, MaxAudioDurationMinutes: 1, MaxVideoDurationMinutes: 1}
	assert.NoError(t, policy.Check(999999, item.Audio, limits))
	assert.NoError(t, policy.Check(999999, item.Video, limits))
}

func Test_Check_BoundaryIsInclusive(t *testing.T) {
	t.Parallel()

	limits := policy.Limits{LimitDuration: true, MaxAudioDurationMinutes: 5, MaxVideoDurationMinutes: 5}

	// Exactly at the ceiling is accepted, the smallest excess is not.
	assert.NoError(t, policy.Check(300, item.Audio, limits))
	assert.Error(t, policy.Check(300.01, item.Audio, limits))
}

func Test_Check_KindSelectsCeiling(t *testing.T) {
	t.Parallel()

	limits := policy.Limits{LimitDuration: true, MaxAudioDurationMinutes: 600, MaxVideoDurationMinutes: 5}

	// 10 minutes: fine for audio, too long for video.
	assert.NoError(t, policy.Check(600, item.Audio, limits))

	err := policy.Check(600, item.Video, limits)
	assert.Error(t, err)

	var exceeded *policy.DurationExceededError
	assert.ErrorAs(t, err, &exceeded)
	assert.Equal(t, 5, exceeded.LimitMinutes)
	assert.Equal(t, item.Video, exceeded.Kind)
}
