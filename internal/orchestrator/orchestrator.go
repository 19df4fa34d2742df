// Package orchestrator runs the dialogue state machine that ties the voice
// pipeline together.
//
// The orchestrator owns the frame bus's active-consumer role. Every state
// that listens acquires a fresh bus reader on entry, so frames captured for
// the state just left are discarded rather than delivered late:
//
//	AwaitingWake --wake--> Speaking(greeting) --> Recording
//	Recording --empty utterance--> AwaitingWake
//	Recording --transcript--> Speaking(answer) --> AwaitingWake
//	Recording --exit phrase--> Speaking(farewell) --> Terminal
//	Speaking --barge-in--> Speaking(reprompt) --> Recording
//	Speaking --synthesis failure--> AwaitingWake
//	Speaking --output device failure--> Terminal (Run returns the error)
//
// Each wake-to-idle cycle is one dialogue turn with its own turn ID and
// trace span.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/MrWong99/vocalis/internal/classify"
	"github.com/MrWong99/vocalis/internal/observe"
	"github.com/MrWong99/vocalis/internal/phrase"
	"github.com/MrWong99/vocalis/internal/playback"
	"github.com/MrWong99/vocalis/internal/recorder"
	"github.com/MrWong99/vocalis/pkg/audio"
	"github.com/MrWong99/vocalis/pkg/audio/bus"
	"github.com/MrWong99/vocalis/pkg/provider/stt"
	"github.com/MrWong99/vocalis/pkg/provider/wakeword"
)

// apologyTimeout bounds the apology spoken after capture failed.
const apologyTimeout = 10 * time.Second

// Recorder records one utterance. [*recorder.Recorder] implements it.
type Recorder interface {
	Record(ctx context.Context, src recorder.FrameSource) (audio.Utterance, error)
}

// Speaker plays text with barge-in detection. [*playback.Engine] implements
// it.
type Speaker interface {
	Speak(ctx context.Context, text string, src playback.Capture) playback.Outcome
}

// Option configures an [Orchestrator].
type Option func(*Orchestrator)

// WithDialogue sets the initial prompts and exit phrases.
func WithDialogue(d Dialogue) Option {
	return func(o *Orchestrator) { o.dialogue = d }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithPolicy sets the classifier failure policy.
func WithPolicy(p *classify.Policy) Option {
	return func(o *Orchestrator) { o.policy = p }
}

// Orchestrator is the dialogue state machine. Run must be called at most
// once; the accessors are safe for concurrent use.
type Orchestrator struct {
	bus     *bus.Bus
	wake    wakeword.Detector
	rec     Recorder
	speaker Speaker
	stt     stt.Provider
	gen     Responder
	metrics *observe.Metrics
	policy  *classify.Policy

	mu        sync.Mutex
	state     State
	dialogue  Dialogue
	exit      *phrase.Matcher
	listeners []func(Transition)
}

// New creates an Orchestrator in AwaitingWake.
func New(b *bus.Bus, wake wakeword.Detector, rec Recorder, speaker Speaker, transcriber stt.Provider, gen Responder, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		bus:      b,
		wake:     wake,
		rec:      rec,
		speaker:  speaker,
		stt:      transcriber,
		gen:      gen,
		dialogue: DefaultDialogue(),
		state:    AwaitingWake,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	if o.policy == nil {
		o.policy = classify.NewPolicy(classify.WithMetrics(o.metrics))
	}
	o.exit = newExitMatcher(o.dialogue)
	o.applySystemPrompt(o.dialogue.SystemPrompt)
	return o
}

func newExitMatcher(d Dialogue) *phrase.Matcher {
	var opts []phrase.Option
	if d.PhoneticExit {
		opts = append(opts, phrase.WithPhonetic(0))
	}
	return phrase.New(d.ExitPhrases, opts...)
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Dialogue returns the active prompts and exit phrases.
func (o *Orchestrator) Dialogue() Dialogue {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.dialogue
}

// OnTransition registers fn to be called after every state change. fn runs
// on the orchestrator goroutine and must not block.
func (o *Orchestrator) OnTransition(fn func(Transition)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.listeners = append(o.listeners, fn)
}

// UpdateDialogue replaces prompts and exit phrases while running.
func (o *Orchestrator) UpdateDialogue(d Dialogue) {
	m := newExitMatcher(d)
	o.mu.Lock()
	o.dialogue = d
	o.exit = m
	o.mu.Unlock()
	o.applySystemPrompt(d.SystemPrompt)
	slog.Info("dialogue settings updated", "exit_phrases", d.ExitPhrases)
}

func (o *Orchestrator) applySystemPrompt(p string) {
	if p == "" {
		return
	}
	if s, ok := o.gen.(interface{ SetSystemPrompt(string) }); ok {
		s.SetSystemPrompt(p)
	}
}

func (o *Orchestrator) transition(ctx context.Context, to State, reason string) {
	o.mu.Lock()
	from := o.state
	if from == to {
		o.mu.Unlock()
		return
	}
	o.state = to
	listeners := append(([]func(Transition))(nil), o.listeners...)
	o.mu.Unlock()

	o.metrics.RecordTransition(ctx, from.String(), to.String())
	observe.Logger(ctx).Debug("dialogue transition", "from", from.String(), "to", to.String(), "reason", reason)
	t := Transition{From: from, To: to, Reason: reason}
	for _, fn := range listeners {
		fn(t)
	}
}

// Run executes the dialogue until an exit phrase ends it or ctx is
// cancelled; both return nil. A fatal output device failure returns the
// [*audio.DeviceError]. When ctx was cancelled with a device error as cause
// (capture failed), the device apology is spoken before returning.
func (o *Orchestrator) Run(ctx context.Context) error {
	slog.Info("dialogue started", "state", o.State().String())
	for {
		if err := o.awaitWake(ctx); err != nil {
			return o.stop(ctx, err)
		}
		done, err := o.turn(ctx)
		if err != nil {
			return o.stop(ctx, err)
		}
		if done {
			o.transition(ctx, Terminal, "farewell")
			slog.Info("dialogue ended")
			return nil
		}
	}
}

// stop decides Run's result for err.
func (o *Orchestrator) stop(ctx context.Context, err error) error {
	defer o.transition(context.WithoutCancel(ctx), Terminal, "stopped")

	if ctx.Err() != nil {
		if cause := context.Cause(ctx); audio.IsDeviceError(cause) {
			o.apologise(ctx, cause)
			return nil
		}
		slog.Info("dialogue cancelled")
		return nil
	}
	if audio.IsDeviceError(err) {
		slog.Error("dialogue ended by device failure", "err", err, "apology", o.Dialogue().DeviceApology)
		return err
	}
	return fmt.Errorf("orchestrator: %w", err)
}

// apologise speaks the device apology without barge-in after the capture
// side failed. The output device may still work.
func (o *Orchestrator) apologise(ctx context.Context, cause error) {
	apology := o.Dialogue().DeviceApology
	slog.Error("capture device failed, ending dialogue", "err", cause, "apology", apology)
	if apology == "" {
		return
	}
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), apologyTimeout)
	defer cancel()
	o.transition(actx, Speaking, "device apology")
	if out := o.speaker.Speak(actx, apology, nil); out.Result != playback.Completed {
		slog.Warn("device apology not spoken", "result", out.Result.String(), "err", out.Err)
	}
}

// awaitWake consumes frames until the wake word is detected.
func (o *Orchestrator) awaitWake(ctx context.Context) error {
	o.transition(ctx, AwaitingWake, "listening")
	if o.wake != nil {
		wakeword.Reset(o.wake)
	}
	r := o.bus.Acquire()
	for {
		f, err := r.Next(ctx)
		if err != nil {
			return err
		}
		if o.wake == nil {
			continue
		}
		hit, ok := classify.Apply(ctx, o.policy, classify.Call(classify.StageWakeWord, func() (bool, error) {
			return o.wake.Detect(f)
		}))
		if ok && hit {
			o.metrics.RecordWakeDetection(ctx, "idle")
			slog.Info("wake word detected", "seq", f.Seq)
			return nil
		}
	}
}

// turn runs one dialogue turn from greeting to the next idle state. done is
// true when the dialogue must end.
func (o *Orchestrator) turn(ctx context.Context) (done bool, err error) {
	ctx = observe.WithTurnID(ctx, uuid.NewString())
	ctx, span := observe.StartSpan(ctx, "dialogue.turn")
	defer span.End()

	next, err := o.speak(ctx, o.Dialogue().Greeting, Recording, "greeting")
	for err == nil {
		switch next {
		case Recording:
			next, err = o.listen(ctx)
		case Terminal:
			span.SetAttributes(attribute.Bool("dialogue.exit", true))
			return true, nil
		default:
			return false, nil
		}
	}
	if ctx.Err() == nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return false, err
}

// speak plays text and returns the state to continue with. after is the
// state that follows a completed playback. A barge-in is answered with the
// reprompt and then Recording, except for the farewell which always ends the
// dialogue.
func (o *Orchestrator) speak(ctx context.Context, text string, after State, reason string) (State, error) {
	for {
		if text == "" {
			return after, nil
		}
		o.transition(ctx, Speaking, reason)
		out := o.speaker.Speak(ctx, text, o.bus.Acquire())

		switch out.Result {
		case playback.Completed:
			return after, nil

		case playback.Interrupted:
			if ctx.Err() != nil {
				return AwaitingWake, ctx.Err()
			}
			if after == Terminal {
				return Terminal, nil
			}
			if !out.BargeIn {
				return AwaitingWake, nil
			}
			observe.Logger(ctx).Info("speech interrupted by wake word", "frames", out.FramesWritten)
			text, after, reason = o.Dialogue().Reprompt, Recording, "reprompt"

		default:
			if audio.IsDeviceError(out.Err) {
				return Terminal, out.Err
			}
			observe.Logger(ctx).Warn("speech synthesis failed", "err", out.Err, "frames", out.FramesWritten)
			if after == Terminal {
				return Terminal, nil
			}
			return AwaitingWake, nil
		}
	}
}

// listen records and handles one utterance.
func (o *Orchestrator) listen(ctx context.Context) (State, error) {
	o.transition(ctx, Recording, "listening for command")
	log := observe.Logger(ctx)

	utt, err := o.rec.Record(ctx, o.bus.Acquire())
	if err != nil {
		if ctx.Err() != nil {
			return AwaitingWake, ctx.Err()
		}
		log.Warn("recording ended early", "err", err, "frames", len(utt.Frames))
	}
	if utt.Empty() {
		log.Debug("no speech heard")
		return AwaitingWake, nil
	}

	text, err := o.transcribe(ctx, utt)
	switch {
	case errors.Is(err, stt.ErrEmptyTranscript):
		log.Debug("nothing transcribed")
		return o.speak(ctx, o.Dialogue().RetryPrompt, AwaitingWake, "retry prompt")
	case err != nil:
		if ctx.Err() != nil {
			return AwaitingWake, ctx.Err()
		}
		log.Warn("transcription failed", "err", err)
		return AwaitingWake, nil
	}
	log.Info("heard", "text", text)

	o.mu.Lock()
	exit := o.exit
	o.mu.Unlock()
	if p, ok := exit.Match(text); ok {
		log.Info("exit phrase recognised", "phrase", p)
		return o.speak(ctx, o.Dialogue().Farewell, Terminal, "farewell")
	}

	reply, err := o.generate(ctx, text)
	if err != nil {
		if ctx.Err() != nil {
			return AwaitingWake, ctx.Err()
		}
		log.Warn("generation failed, using fallback", "err", err)
		reply = o.Dialogue().GenerationFallback
	}
	return o.speak(ctx, reply, AwaitingWake, "response")
}

func (o *Orchestrator) transcribe(ctx context.Context, utt audio.Utterance) (string, error) {
	ctx, span := observe.StartSpan(ctx, "stt.transcribe")
	defer span.End()
	span.SetAttributes(attribute.Float64("audio.seconds", utt.Duration().Seconds()))

	start := time.Now()
	text, err := o.stt.Transcribe(ctx, utt)
	o.metrics.RecordProviderDuration(ctx, "stt", time.Since(start).Seconds())
	if err != nil && !errors.Is(err, stt.ErrEmptyTranscript) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return text, err
}

func (o *Orchestrator) generate(ctx context.Context, text string) (string, error) {
	ctx, span := observe.StartSpan(ctx, "llm.generate")
	defer span.End()

	start := time.Now()
	reply, err := o.gen.Respond(ctx, text)
	o.metrics.RecordProviderDuration(ctx, "llm", time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	if reply == "" {
		return "", ErrEmptyResponse
	}
	return reply, nil
}
