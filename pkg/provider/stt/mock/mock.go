// Package mock provides a test double for the stt.Provider interface.
//
// Provider returns scripted transcripts in order and records every utterance
// it was asked to transcribe.
//
// Example:
//
//	p := &mock.Provider{Results: []mock.Result{{Text: "what time is it"}}}
//	text, _ := p.Transcribe(ctx, utt)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/vocalis/pkg/audio"
	"github.com/MrWong99/vocalis/pkg/provider/stt"
)

// Result is one scripted Transcribe answer.
type Result struct {
	Text string
	Err  error
}

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// Utterance is the audio passed to Transcribe.
	Utterance audio.Utterance
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Results are returned in order, one per call. Once exhausted, Default is
	// returned.
	Results []Result

	// Default is returned once Results is exhausted. A zero Default yields
	// stt.ErrEmptyTranscript.
	Default Result

	// Block, if true, makes Transcribe wait for ctx cancellation.
	Block bool

	// TranscribeCalls records every call to Transcribe.
	TranscribeCalls []TranscribeCall
}

// Transcribe records the call and returns the next scripted result.
func (p *Provider) Transcribe(ctx context.Context, utt audio.Utterance) (string, error) {
	p.mu.Lock()
	p.TranscribeCalls = append(p.TranscribeCalls, TranscribeCall{Ctx: ctx, Utterance: utt})
	var r Result
	if len(p.Results) > 0 {
		r = p.Results[0]
		p.Results = p.Results[1:]
	} else {
		r = p.Default
	}
	block := p.Block
	p.mu.Unlock()

	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if r.Err != nil {
		return "", r.Err
	}
	if r.Text == "" {
		return "", stt.ErrEmptyTranscript
	}
	return r.Text, nil
}

// CallCount returns the number of Transcribe calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.TranscribeCalls)
}

// Calls returns a copy of the recorded calls. Thread-safe.
func (p *Provider) Calls() []TranscribeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]TranscribeCall(nil), p.TranscribeCalls...)
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)
