// Package webrtc provides a [vad.Detector] backed by the WebRTC voice
// activity detector through github.com/maxhawkins/go-webrtcvad.
//
// The WebRTC VAD accepts 8, 16, 32 or 48 kHz audio in 10, 20 or 30 ms
// frames. Frames of any other length are rejected with an error.
package webrtc

import (
	"fmt"
	"sync"

	webrtcvad "github.com/maxhawkins/go-webrtcvad"

	"github.com/MrWong99/vocalis/pkg/audio"
	"github.com/MrWong99/vocalis/pkg/provider/vad"
)

var _ vad.Detector = (*Detector)(nil)

// DefaultMode is the aggressiveness used when none is configured.
const DefaultMode = 2

// Option is a functional option for [Detector].
type Option func(*Detector)

// WithMode sets the aggressiveness in [0, 3]. Higher values reject more
// non-speech at the cost of missing quiet speech. Default: 2.
func WithMode(mode int) Option {
	return func(d *Detector) { d.mode = mode }
}

// Detector wraps a single WebRTC VAD instance.
type Detector struct {
	mu         sync.Mutex
	inst       *webrtcvad.VAD
	sampleRate int
	mode       int
}

// New creates a Detector for audio at sampleRate.
func New(sampleRate int, opts ...Option) (*Detector, error) {
	d := &Detector{sampleRate: sampleRate, mode: DefaultMode}
	for _, o := range opts {
		o(d)
	}
	if d.mode < 0 || d.mode > 3 {
		return nil, fmt.Errorf("webrtc vad: mode must be in [0, 3], got %d", d.mode)
	}
	if !validRate(sampleRate) {
		return nil, fmt.Errorf("webrtc vad: unsupported sample rate %d", sampleRate)
	}
	inst, err := webrtcvad.New()
	if err != nil {
		return nil, fmt.Errorf("webrtc vad: create: %w", err)
	}
	if err := inst.SetMode(d.mode); err != nil {
		return nil, fmt.Errorf("webrtc vad: set mode %d: %w", d.mode, err)
	}
	d.inst = inst
	return d, nil
}

// IsSpeech implements [vad.Detector].
func (d *Detector) IsSpeech(frame audio.Frame) (bool, error) {
	if !validFrameLength(d.sampleRate, frame.Len()) {
		return false, fmt.Errorf("webrtc vad: invalid frame length %d at %d Hz", frame.Len(), d.sampleRate)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	active, err := d.inst.Process(d.sampleRate, frame.PCM())
	if err != nil {
		return false, fmt.Errorf("webrtc vad: process: %w", err)
	}
	return active, nil
}

func validRate(rate int) bool {
	switch rate {
	case 8000, 16000, 32000, 48000:
		return true
	}
	return false
}

// validFrameLength reports whether n samples span 10, 20 or 30 ms at rate.
func validFrameLength(rate, n int) bool {
	for _, ms := range []int{10, 20, 30} {
		if n == rate*ms/1000 {
			return true
		}
	}
	return false
}
