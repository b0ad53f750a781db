// Package policy enforces the configured duration ceilings on probed
// media before any download is started.
package policy

import (
	"fmt"

	"github.com/lukasz26671/webaudioprov/internal/item"
)

// Limits is the duration policy portion of the service configuration.
// It is read once at startup and never mutated.
type Limits struct {
	LimitDuration           bool `env:"LIMIT_DURATION" env-default:"true"`
	MaxAudioDurationMinutes int  `env:"MAX_AUDIO_DURATION_MINUTES" env-default:"600" validate:"gte=1"`
	MaxVideoDurationMinutes int  `env:"MAX_VIDEO_DURATION_MINUTES" env-default:"5" validate:"gte=1"`
}

// DurationExceededError reports a policy violation. It carries the
// configured ceiling so the HTTP layer can surface a useful message.
type DurationExceededError struct {
	Kind            item.Kind
	DurationSeconds float64
	LimitMinutes    int
}

func (err *DurationExceededError) Error() string {
	return fmt.Sprintf("%s duration of %.2fs exceeds the configured maximum of %d minutes", err.Kind, err.DurationSeconds, err.LimitMinutes)
}

// Check compares the probed duration against the ceiling configured for
// the requested kind. A duration exactly equal to the ceiling passes.
// When limiting is disabled the check always passes.
//
// This must run before any download is initiated; rejecting after the
// fact wastes bandwidth and disk.
func Check(durationSeconds float64, kind item.Kind, limits Limits) error {
	if !limits.LimitDuration {
		return nil
	}

	limitMinutes := limits.MaxAudioDurationMinutes
	if kind == item.Video {
		limitMinutes = limits.MaxVideoDurationMinutes
	}

	if durationSeconds > float64(limitMinutes*60) {
		return &DurationExceededError{Kind: kind, DurationSeconds: durationSeconds, LimitMinutes: limitMinutes}
	}

	return nil
}
