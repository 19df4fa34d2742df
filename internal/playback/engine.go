// Package playback speaks synthesised text through the output device while
// listening for the wake word, so the user can interrupt (barge in).
//
// A [Session] runs two goroutines under an errgroup:
//
//   - the synthesis puller reads PCM chunks from the TTS stream, cuts them
//     into fixed pipeline frames (resampling and zero-padding the tail) and
//     queues them;
//   - the writer writes one frame at a time to the device, whose blocking
//     write paces the session to real time, then pairs the written frame with
//     the latest captured frame: the echo canceller removes the written audio
//     from the capture, and once the warm-up has elapsed the wake-word
//     detector inspects the result.
//
// A detection, a cancel or a failure ends both goroutines within one frame
// period. The device is always stopped and closed before [Session.Wait]
// returns. At most one session is active per [Engine].
package playback

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/vocalis/internal/classify"
	"github.com/MrWong99/vocalis/internal/observe"
	"github.com/MrWong99/vocalis/pkg/audio"
	"github.com/MrWong99/vocalis/pkg/provider/aec"
	"github.com/MrWong99/vocalis/pkg/provider/tts"
	"github.com/MrWong99/vocalis/pkg/provider/wakeword"
)

// Defaults for engine options.
const (
	DefaultWarmUp     = 500 * time.Millisecond
	DefaultQueueDepth = 32
)

// Capture is the playback view of the frame bus: a non-blocking read of the
// most recent captured frame. [*bus.Reader] implements it.
type Capture interface {
	Latest() (audio.Frame, bool)
}

// Option configures an [Engine].
type Option func(*Engine)

// WithWarmUp sets how much audio must have been written before barge-in
// detection starts. This gives the echo canceller time to adapt.
func WithWarmUp(d time.Duration) Option {
	return func(e *Engine) {
		if d >= 0 {
			e.warmUp = d
		}
	}
}

// WithQueueDepth sets the capacity, in frames, of the queue between the
// synthesis puller and the writer.
func WithQueueDepth(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.queueDepth = n
		}
	}
}

// WithFormat sets the pipeline frame format. Default: [audio.DefaultFormat].
func WithFormat(f audio.Format) Option {
	return func(e *Engine) { e.format = f }
}

// WithVoice sets the voice used for every session.
func WithVoice(v tts.VoiceProfile) Option {
	return func(e *Engine) { e.voice = v }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithPolicy sets the classifier failure policy.
func WithPolicy(p *classify.Policy) Option {
	return func(e *Engine) { e.policy = p }
}

// Engine creates playback sessions.
type Engine struct {
	out       audio.OutputOpener
	synth     tts.Provider
	wake      wakeword.Detector
	canceller aec.Canceller

	format     audio.Format
	warmUp     time.Duration
	queueDepth int
	metrics    *observe.Metrics
	policy     *classify.Policy

	// startMu serialises Start so the previous session is fully stopped
	// before the next one opens the device.
	startMu sync.Mutex

	mu      sync.Mutex
	voice   tts.VoiceProfile
	current *Session
}

// New creates an Engine. wake may be nil to disable barge-in; canceller may
// be nil for no echo cancellation.
func New(out audio.OutputOpener, synth tts.Provider, wake wakeword.Detector, canceller aec.Canceller, opts ...Option) *Engine {
	e := &Engine{
		out:        out,
		synth:      synth,
		wake:       wake,
		canceller:  canceller,
		format:     audio.DefaultFormat(),
		warmUp:     DefaultWarmUp,
		queueDepth: DefaultQueueDepth,
	}
	for _, o := range opts {
		o(e)
	}
	if e.canceller == nil {
		e.canceller = aec.Passthrough{}
	}
	if e.metrics == nil {
		e.metrics = observe.DefaultMetrics()
	}
	if e.policy == nil {
		e.policy = classify.NewPolicy(classify.WithMetrics(e.metrics))
	}
	return e
}

// SetVoice changes the voice for sessions started afterwards.
func (e *Engine) SetVoice(v tts.VoiceProfile) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.voice = v
}

// Active returns the running session, or nil.
func (e *Engine) Active() *Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return nil
	}
	select {
	case <-e.current.done:
		return nil
	default:
		return e.current
	}
}

// Start cancels and waits for any running session, then plays text in the
// background. src supplies captured frames for barge-in detection; it may
// be nil.
func (e *Engine) Start(ctx context.Context, text string, src Capture) *Session {
	e.startMu.Lock()
	defer e.startMu.Unlock()

	e.mu.Lock()
	prev := e.current
	voice := e.voice
	e.mu.Unlock()
	if prev != nil {
		prev.Cancel()
		prev.Wait()
	}

	s := newSession(ctx, e, text, voice, src)
	e.mu.Lock()
	e.current = s
	e.mu.Unlock()

	go s.run()
	return s
}

// Speak plays text and waits for the outcome.
func (e *Engine) Speak(ctx context.Context, text string, src Capture) Outcome {
	return e.Start(ctx, text, src).Wait()
}

// resetDetectors drops audio buffered by the detector and canceller from a
// previous listening mode.
func (e *Engine) resetDetectors() {
	if e.wake != nil {
		wakeword.Reset(e.wake)
	}
	if r, ok := e.canceller.(interface{ Reset() }); ok {
		r.Reset()
	}
}
