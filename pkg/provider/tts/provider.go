// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (a local Coqui server,
// ElevenLabs, ...) and presents a uniform streaming interface: the caller
// hands over the complete text and receives raw PCM audio as it is produced,
// so playback can start before the whole answer is synthesised.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"strings"
	"sync"
	"unicode"
)

// VoiceProfile selects the voice used for synthesis.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier. Empty selects the
	// provider's default voice where supported.
	ID string

	// Name is the human-readable voice name.
	Name string

	// Speed adjusts speaking rate (1.0 = default). Zero keeps the provider
	// default.
	Speed float64
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// SynthesizeStream starts synthesising text and returns a Stream that
	// emits 16-bit little-endian mono PCM at Stream.SampleRate.
	//
	// Returns a non-nil error only if synthesis cannot be started. Failures
	// after that close the stream early and are reported by Stream.Err.
	// Cancelling ctx stops synthesis and closes the stream.
	SynthesizeStream(ctx context.Context, text string, voice VoiceProfile) (*Stream, error)
}

// Stream carries synthesised audio from a provider to its consumer.
//
// Providers create a Stream with NewStream, deliver audio with Send and call
// Close exactly once when done. Consumers range over Audio and then check Err.
type Stream struct {
	audio      chan []byte
	sampleRate int

	once sync.Once
	mu   sync.Mutex
	err  error
}

// NewStream returns a Stream for audio at sampleRate with a channel buffer of
// depth chunks.
func NewStream(sampleRate, depth int) *Stream {
	return &Stream{audio: make(chan []byte, depth), sampleRate: sampleRate}
}

// Audio returns the channel of PCM chunks. It is closed when synthesis ends.
func (s *Stream) Audio() <-chan []byte { return s.audio }

// SampleRate returns the rate of the emitted PCM in Hz.
func (s *Stream) SampleRate() int { return s.sampleRate }

// Send delivers one chunk. It returns false when ctx is done first.
func (s *Stream) Send(ctx context.Context, pcm []byte) bool {
	if len(pcm) == 0 {
		return true
	}
	select {
	case s.audio <- pcm:
		return true
	case <-ctx.Done():
		return false
	}
}

// Close records err (nil for a clean end) and closes the audio channel.
// Only the first call has an effect.
func (s *Stream) Close(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.audio)
	})
}

// Err returns the error that ended the stream, or nil. It is meaningful once
// the audio channel is closed.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// SplitSentences splits text after '.', '!' or '?' when followed by
// whitespace or the end of text. Abbreviations such as "3.14" stay intact.
// Empty sentences are dropped.
func SplitSentences(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c != '.' && c != '!' && c != '?' {
			continue
		}
		if i+1 < len(text) && !unicode.IsSpace(rune(text[i+1])) {
			continue
		}
		if s := strings.TrimSpace(text[start : i+1]); s != "" {
			out = append(out, s)
		}
		start = i + 1
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}
