// Package mock provides a test double for the vad.Detector interface.
//
// Detector answers from Script in order, then from Default. Tests can inject
// per-frame errors and inspect every frame that was classified.
//
// Example:
//
//	det := &mock.Detector{
//	    Script: []mock.Answer{{Speech: true}, {Err: errors.New("bad frame")}},
//	}
package mock

import (
	"sync"

	"github.com/MrWong99/vocalis/pkg/audio"
	"github.com/MrWong99/vocalis/pkg/provider/vad"
)

// Answer is one scripted IsSpeech result.
type Answer struct {
	Speech bool
	Err    error
}

// Detector is a mock implementation of vad.Detector.
type Detector struct {
	mu sync.Mutex

	// Script is consumed first, one entry per call.
	Script []Answer

	// Default is returned once Script is exhausted.
	Default Answer

	// Frames records every frame passed to IsSpeech, in order.
	Frames []audio.Frame

	pos int
}

// IsSpeech records the frame and returns the next scripted answer.
func (d *Detector) IsSpeech(frame audio.Frame) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Frames = append(d.Frames, frame)
	if d.pos < len(d.Script) {
		a := d.Script[d.pos]
		d.pos++
		return a.Speech, a.Err
	}
	return d.Default.Speech, d.Default.Err
}

// CallCount returns how many frames were classified.
func (d *Detector) CallCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.Frames)
}

// Ensure Detector implements vad.Detector at compile time.
var _ vad.Detector = (*Detector)(nil)
