// Package mock provides a test double for the tts.Provider interface.
//
// Provider emits scripted PCM chunks on the returned Stream, optionally with a
// delay between chunks or a trailing error, and records every call.
//
// Example:
//
//	p := &mock.Provider{Chunks: [][]byte{pcm1, pcm2}}
//	s, _ := p.SynthesizeStream(ctx, "hello", tts.VoiceProfile{})
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/vocalis/pkg/audio"
	"github.com/MrWong99/vocalis/pkg/provider/tts"
)

// SynthesizeStreamCall records a single invocation of SynthesizeStream.
type SynthesizeStreamCall struct {
	// Text is the text passed to SynthesizeStream.
	Text string
	// Voice is the VoiceProfile passed to SynthesizeStream.
	Voice tts.VoiceProfile
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// Chunks is the sequence of PCM chunks emitted on every stream.
	Chunks [][]byte

	// SampleRate is the rate reported by the stream. Zero means
	// audio.DefaultSampleRate.
	SampleRate int

	// ChunkDelay is waited before each chunk.
	ChunkDelay time.Duration

	// StreamErr, if non-nil, ends the stream after all chunks were sent.
	StreamErr error

	// OpenErr, if non-nil, is returned from SynthesizeStream.
	OpenErr error

	// Block keeps the stream open after the chunks until ctx is cancelled.
	Block bool

	// SynthesizeStreamCalls records every call to SynthesizeStream in order.
	SynthesizeStreamCalls []SynthesizeStreamCall
}

// SynthesizeStream records the call and, if OpenErr is nil, returns a stream
// that emits Chunks and then ends with StreamErr.
func (p *Provider) SynthesizeStream(ctx context.Context, text string, voice tts.VoiceProfile) (*tts.Stream, error) {
	p.mu.Lock()
	p.SynthesizeStreamCalls = append(p.SynthesizeStreamCalls, SynthesizeStreamCall{Text: text, Voice: voice})
	if p.OpenErr != nil {
		err := p.OpenErr
		p.mu.Unlock()
		return nil, err
	}
	chunks := make([][]byte, len(p.Chunks))
	copy(chunks, p.Chunks)
	rate := p.SampleRate
	delay, streamErr, block := p.ChunkDelay, p.StreamErr, p.Block
	p.mu.Unlock()

	if rate == 0 {
		rate = audio.DefaultSampleRate
	}
	s := tts.NewStream(rate, len(chunks)+1)
	go func() {
		for _, c := range chunks {
			if delay > 0 {
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					s.Close(ctx.Err())
					return
				}
			}
			if !s.Send(ctx, c) {
				s.Close(ctx.Err())
				return
			}
		}
		if block {
			<-ctx.Done()
			s.Close(ctx.Err())
			return
		}
		s.Close(streamErr)
	}()
	return s, nil
}

// CallCount returns the number of SynthesizeStream calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.SynthesizeStreamCalls)
}

// Calls returns a copy of the recorded calls. Thread-safe.
func (p *Provider) Calls() []SynthesizeStreamCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]SynthesizeStreamCall, len(p.SynthesizeStreamCalls))
	copy(out, p.SynthesizeStreamCalls)
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeStreamCalls = nil
}

var _ tts.Provider = (*Provider)(nil)
