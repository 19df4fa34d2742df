// Package aec defines the Canceller interface for acoustic echo cancellation.
//
// During playback the microphone picks up the assistant's own voice. A
// Canceller removes the reference signal (what was just written to the
// speaker) from the captured frame so the wake-word detector listens to the
// user rather than to the echo.
package aec

import (
	"errors"

	"github.com/MrWong99/vocalis/pkg/audio"
)

// ErrLengthMismatch is returned when the captured and reference frames do not
// have the same number of samples.
var ErrLengthMismatch = errors.New("aec: captured and reference frames differ in length")

// Canceller removes the reference signal from a captured frame.
//
// Implementations may keep adaptive state between calls and are not required
// to be safe for concurrent use.
type Canceller interface {
	Cancel(captured, reference audio.Frame) (audio.Frame, error)
}

// Passthrough returns the captured frame unchanged. It is used when no echo
// cancellation is configured, e.g. with headphones.
type Passthrough struct{}

// Cancel implements [Canceller].
func (Passthrough) Cancel(captured, reference audio.Frame) (audio.Frame, error) {
	if len(reference.Samples) != 0 && len(captured.Samples) != len(reference.Samples) {
		return audio.Frame{}, ErrLengthMismatch
	}
	return captured, nil
}

var _ Canceller = Passthrough{}
