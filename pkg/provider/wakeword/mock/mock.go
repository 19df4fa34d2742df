// Package mock provides a test double for the wakeword.Detector interface.
//
// Detector fires on chosen call numbers or whenever Match returns true, and
// records every frame it was given.
//
// Example:
//
//	det := &mock.Detector{FireOn: map[int]bool{50: true}}
package mock

import (
	"sync"

	"github.com/MrWong99/vocalis/pkg/audio"
	"github.com/MrWong99/vocalis/pkg/provider/wakeword"
)

// Detector is a mock implementation of wakeword.Detector.
type Detector struct {
	mu sync.Mutex

	// FireOn lists 1-based call numbers that report a detection.
	FireOn map[int]bool

	// Match, if set, reports a detection for frames it returns true for.
	Match func(audio.Frame) bool

	// Err, if non-nil, is returned for calls listed in ErrOn (or every call
	// when ErrOn is nil).
	Err   error
	ErrOn map[int]bool

	// Frames records every frame passed to Detect, in order.
	Frames []audio.Frame

	// CallCountReset records how many times Reset was called.
	CallCountReset int
}

// Detect records the frame and returns the configured answer.
func (d *Detector) Detect(frame audio.Frame) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Frames = append(d.Frames, frame)
	n := len(d.Frames)
	if d.Err != nil && (d.ErrOn == nil || d.ErrOn[n]) {
		return false, d.Err
	}
	if d.FireOn[n] {
		return true, nil
	}
	if d.Match != nil && d.Match(frame) {
		return true, nil
	}
	return false, nil
}

// Reset implements wakeword.Resetter.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CallCountReset++
}

// CallCount returns how many frames were inspected.
func (d *Detector) CallCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.Frames)
}

var (
	_ wakeword.Detector = (*Detector)(nil)
	_ wakeword.Resetter = (*Detector)(nil)
)
