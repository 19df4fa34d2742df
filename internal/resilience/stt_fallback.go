package resilience

import (
	"context"
	"errors"

	"github.com/MrWong99/vocalis/pkg/audio"
	"github.com/MrWong99/vocalis/pkg/provider/stt"
)

// STTFallback is an [stt.Provider] over a [FallbackGroup]. An empty
// transcript is a valid answer and is not retried on another backend.
type STTFallback struct {
	*FallbackGroup[stt.Provider]
}

var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback creates an STTFallback with primary as the preferred backend.
func NewSTTFallback(primary stt.Provider, name string, cfg FallbackConfig) *STTFallback {
	cfg.CircuitBreaker.Neutral = either(cfg.CircuitBreaker.Neutral, func(err error) bool {
		return isCancellation(err) || errors.Is(err, stt.ErrEmptyTranscript)
	})
	return &STTFallback{NewFallbackGroup(primary, name, cfg)}
}

// Transcribe returns the first successful transcript.
func (f *STTFallback) Transcribe(ctx context.Context, utt audio.Utterance) (string, error) {
	return Do(ctx, f.FallbackGroup, func(p stt.Provider) (string, error) {
		return p.Transcribe(ctx, utt)
	})
}
