package resilience

import (
	"context"

	"github.com/MrWong99/vocalis/pkg/provider/tts"
)

// TTSFallback is a [tts.Provider] over a [FallbackGroup]. Only starting the
// stream fails over; errors after the first audio are reported by the
// stream itself.
type TTSFallback struct {
	*FallbackGroup[tts.Provider]
}

var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback creates a TTSFallback with primary as the preferred backend.
func NewTTSFallback(primary tts.Provider, name string, cfg FallbackConfig) *TTSFallback {
	cfg.CircuitBreaker.Neutral = either(cfg.CircuitBreaker.Neutral, isCancellation)
	return &TTSFallback{NewFallbackGroup(primary, name, cfg)}
}

// SynthesizeStream starts synthesis on the first backend that accepts it.
func (f *TTSFallback) SynthesizeStream(ctx context.Context, text string, voice tts.VoiceProfile) (*tts.Stream, error) {
	return Do(ctx, f.FallbackGroup, func(p tts.Provider) (*tts.Stream, error) {
		return p.SynthesizeStream(ctx, text, voice)
	})
}
