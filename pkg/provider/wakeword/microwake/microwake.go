// Package microwake provides a [wakeword.Detector] backed by
// github.com/pmdroid/microwakeword, which runs the microWakeWord streaming
// models (e.g. "okay_nabu", "hey_jarvis") on 16 kHz PCM.
package microwake

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pmdroid/microwakeword"

	"github.com/MrWong99/vocalis/pkg/audio"
	"github.com/MrWong99/vocalis/pkg/provider/wakeword"
)

var (
	_ wakeword.Detector = (*Detector)(nil)
	_ wakeword.Resetter = (*Detector)(nil)
)

// DefaultModel is the built-in model used when none is configured.
const DefaultModel = "okay_nabu"

// SampleRate is the only rate the models accept.
const SampleRate = 16000

// DefaultRefractory is the library's suppression window after a detection.
var DefaultRefractory = time.Duration(microwakeword.DefaultRefractory * float64(time.Second))

// model is the part of *microwakeword.MicroWakeWord the detector drives.
type model interface {
	ProcessStreaming(pcm []byte) (bool, error)
	Reset() error
}

// Option is a functional option for [Detector].
type Option func(*Detector)

// WithRefractory sets how long the model suppresses further detections after
// a hit. Non-positive values keep [DefaultRefractory].
func WithRefractory(d time.Duration) Option {
	return func(det *Detector) {
		if d > 0 {
			det.refractory = d
		}
	}
}

// WithCooldown suppresses detections for d after a hit, measured in audio
// time. Zero disables the cooldown.
func WithCooldown(d time.Duration) Option {
	return func(det *Detector) { det.cooldown = d }
}

// Detector streams frames into a microWakeWord model.
type Detector struct {
	mu         sync.Mutex
	name       string
	refractory time.Duration
	cooldown   time.Duration
	ww         model
	sinceHit   time.Duration
	hit        bool
}

// New loads the named built-in model.
func New(name string, opts ...Option) (*Detector, error) {
	d := newDetector(name, opts...)
	ww, err := microwakeword.FromBuiltin(d.name, d.refractory.Seconds())
	if err != nil {
		return nil, fmt.Errorf("microwake: load model %q: %w", d.name, err)
	}
	d.ww = ww
	return d, nil
}

func newDetector(name string, opts ...Option) *Detector {
	if name == "" {
		name = DefaultModel
	}
	d := &Detector{name: name, refractory: DefaultRefractory}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Detect implements [wakeword.Detector].
func (d *Detector) Detect(frame audio.Frame) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	detected, err := d.ww.ProcessStreaming(frame.PCM())
	if err != nil {
		return false, fmt.Errorf("microwake: process: %w", err)
	}

	frameDur := time.Duration(frame.Len()) * time.Second / SampleRate
	if d.hit {
		d.sinceHit += frameDur
		if d.sinceHit < d.cooldown {
			return false, nil
		}
		d.hit = false
	}
	if detected && d.cooldown > 0 {
		d.hit = true
		d.sinceHit = 0
	}
	return detected, nil
}

// Reset clears the model's streaming state in place, releasing the native
// interpreter before it is reloaded.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.ww.Reset(); err != nil {
		slog.Warn("microwake: reset model", "model", d.name, "error", err)
	}
	d.hit = false
	d.sinceHit = 0
}
