// Package stt defines the Provider interface for Speech-to-Text backends.
//
// Transcription is batch: the recorder hands over one complete utterance and
// the provider returns its text. An utterance that contains no recognisable
// words is not a failure; providers report it with [ErrEmptyTranscript] so the
// dialogue can re-listen silently.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/MrWong99/vocalis/pkg/audio"
)

// ErrEmptyTranscript is returned when the audio contained no recognisable
// speech.
var ErrEmptyTranscript = errors.New("stt: empty transcript")

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe returns the text spoken in utt. It returns
	// ErrEmptyTranscript (possibly wrapped) when nothing was recognised, and
	// the ctx error when ctx is cancelled first.
	Transcribe(ctx context.Context, utt audio.Utterance) (string, error)
}

// annotations matches non-speech markers whisper-style models emit, such as
// "[BLANK_AUDIO]" or "(wind blowing)".
var annotations = regexp.MustCompile(`\[[^\]]*\]|\([^)]*\)|\*[^*]*\*`)

// Clean strips non-speech annotations and surrounding whitespace from raw
// recogniser output and returns ErrEmptyTranscript when nothing is left.
func Clean(raw string) (string, error) {
	text := strings.Join(strings.Fields(annotations.ReplaceAllString(raw, " ")), " ")
	if text == "" {
		return "", ErrEmptyTranscript
	}
	return text, nil
}
