// Package wakeword defines the Detector interface for wake-word (hotword)
// backends.
//
// The same Detector serves two listening modes: idle listening on raw capture
// frames, and barge-in detection during playback on echo-cancelled frames.
// Backends typically buffer audio internally to run their model over a
// window; that state is opaque to the caller.
package wakeword

import "github.com/MrWong99/vocalis/pkg/audio"

// Detector reports whether the wake phrase was heard.
type Detector interface {
	// Detect feeds one frame and reports whether the wake phrase completed
	// within it. Errors cause the frame to be skipped by the caller.
	Detect(frame audio.Frame) (bool, error)
}

// Resetter is implemented by detectors that can drop their buffered audio.
// Callers reset a detector when switching between listening modes so audio
// from one mode does not trigger in the next.
type Resetter interface {
	Reset()
}

// Reset calls d.Reset when d implements [Resetter].
func Reset(d Detector) {
	if r, ok := d.(Resetter); ok {
		r.Reset()
	}
}
