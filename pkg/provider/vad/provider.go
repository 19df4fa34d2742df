// Package vad defines the Detector interface for Voice Activity Detection
// backends.
//
// A Detector classifies one frame at a time as speech or non-speech. It is
// stateless from the caller's point of view: smoothing and onset/end-point
// decisions over several frames belong to the utterance recorder, which keeps
// its own sliding windows. Backends may keep opaque model state internally.
//
// IsSpeech is synchronous and must not block; it is called once per captured
// frame on the recording path.
package vad

import "github.com/MrWong99/vocalis/pkg/audio"

// Detector is a per-frame speech classifier.
//
// Implementations must be safe for use from one goroutine at a time; the
// pipeline never calls a Detector concurrently.
type Detector interface {
	// IsSpeech reports whether frame contains speech. It returns an error when
	// the frame does not match the configured format or the backend fails;
	// the caller skips such frames.
	IsSpeech(frame audio.Frame) (bool, error)
}

// DetectorFunc adapts a plain function to [Detector].
type DetectorFunc func(frame audio.Frame) (bool, error)

// IsSpeech implements [Detector].
func (f DetectorFunc) IsSpeech(frame audio.Frame) (bool, error) { return f(frame) }
