// Package energy provides a dependency-free [vad.Detector] that classifies a
// frame as speech when its RMS level reaches a threshold.
//
// It has no model and no cross-frame state, which makes it the default for
// tests and a fallback when no native VAD is available.
package energy

import (
	"github.com/MrWong99/vocalis/pkg/audio"
	"github.com/MrWong99/vocalis/pkg/provider/vad"
)

var _ vad.Detector = (*Detector)(nil)

// DefaultThreshold is the normalised RMS level treated as speech.
const DefaultThreshold = 0.015

// Option is a functional option for [Detector].
type Option func(*Detector)

// WithThreshold sets the normalised RMS level in (0, 1] at or above which a
// frame counts as speech.
func WithThreshold(t float64) Option {
	return func(d *Detector) {
		if t > 0 {
			d.threshold = t
		}
	}
}

// Detector is an RMS threshold detector. It is safe for concurrent use.
type Detector struct {
	threshold float64
}

// New returns a Detector.
func New(opts ...Option) *Detector {
	d := &Detector{threshold: DefaultThreshold}
	for _, o := range opts {
		o(d)
	}
	return d
}

// IsSpeech implements [vad.Detector]. It never fails.
func (d *Detector) IsSpeech(frame audio.Frame) (bool, error) {
	return audio.RMS(frame.Samples) >= d.threshold, nil
}

// Threshold returns the configured level.
func (d *Detector) Threshold() float64 { return d.threshold }
