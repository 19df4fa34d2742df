// Package native provides an in-process STT provider backed by the
// whisper.cpp CGO bindings. The whisper.cpp static library (libwhisper.a) and
// headers (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH.
package native

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/MrWong99/vocalis/pkg/audio"
	"github.com/MrWong99/vocalis/pkg/provider/stt"
)

// Compile-time assertion that Provider satisfies stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// SampleRate is the only rate whisper models accept.
const SampleRate = 16000

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithLanguage sets the language code for transcription (e.g., "en", "de").
// Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithThreads sets the number of CPU threads used per inference. Zero keeps
// the library default.
func WithThreads(n uint) Option {
	return func(p *Provider) { p.threads = n }
}

// Provider implements stt.Provider with a whisper model loaded into the
// process. The model is shared; each call creates its own context. Calls are
// serialised because a single model saturates the CPU anyway.
type Provider struct {
	mu       sync.Mutex
	model    whisperlib.Model
	language string
	threads  uint
}

// New loads the model at modelPath. The caller must call Close when done.
func New(modelPath string, opts ...Option) (*Provider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper native: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper native: load model %q: %w", modelPath, err)
	}
	p := &Provider{model: model, language: "en"}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the model.
func (p *Provider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// Transcribe implements stt.Provider. Utterances at other sample rates are
// resampled to 16 kHz first.
func (p *Provider) Transcribe(ctx context.Context, utt audio.Utterance) (string, error) {
	if utt.Empty() {
		return "", stt.ErrEmptyTranscript
	}
	samples := utt.Samples()
	if utt.SampleRate != SampleRate {
		samples = audio.PCMToSamples(audio.ResampleMono16(audio.SamplesToPCM(samples), utt.SampleRate, SampleRate))
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}

	wctx, err := p.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper native: create context: %w", err)
	}
	if err := wctx.SetLanguage(p.language); err != nil {
		slog.Warn("whisper native: failed to set language, using default", "language", p.language, "error", err)
	}
	if p.threads > 0 {
		wctx.SetThreads(p.threads)
	}

	if err := wctx.Process(toFloat32(samples), nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper native: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper native: read segment: %w", err)
		}
		parts = append(parts, segment.Text)
	}
	return stt.Clean(strings.Join(parts, " "))
}

// toFloat32 converts int16 samples to float32 normalised to [-1, 1).
func toFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768.0
	}
	return out
}
