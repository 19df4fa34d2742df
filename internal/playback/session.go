package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/vocalis/internal/classify"
	"github.com/MrWong99/vocalis/internal/observe"
	"github.com/MrWong99/vocalis/pkg/audio"
	"github.com/MrWong99/vocalis/pkg/provider/tts"
)

// ErrSynthesis marks a failure of the TTS stream, either when opening it or
// mid-utterance.
var ErrSynthesis = errors.New("playback: synthesis failed")

// errInterrupted ends the errgroup when the wake word is heard.
var errInterrupted = errors.New("playback: interrupted by wake word")

// Result is how a session ended.
type Result int

const (
	// Completed means every synthesised frame was written.
	Completed Result = iota
	// Interrupted means the wake word was heard or the session was cancelled.
	Interrupted
	// Failed means synthesis or the output device failed.
	Failed
)

// String returns the lower-case result name.
func (r Result) String() string {
	switch r {
	case Completed:
		return "completed"
	case Interrupted:
		return "interrupted"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("Result(%d)", int(r))
	}
}

// Outcome is the final report of a session.
type Outcome struct {
	Result Result

	// FramesWritten counts frames accepted by the output device.
	FramesWritten int

	// Err is set for Failed: it wraps [ErrSynthesis] or is an
	// [*audio.DeviceError].
	Err error

	// BargeIn is true when the wake word caused the interruption.
	BargeIn bool
}

// Session is one playback of one text.
type Session struct {
	id     string
	engine *Engine
	text   string
	voice  tts.VoiceProfile
	src    Capture

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	outcome Outcome
}

func newSession(parent context.Context, e *Engine, text string, voice tts.VoiceProfile, src Capture) *Session {
	ctx, cancel := context.WithCancel(parent)
	return &Session{
		id:     uuid.NewString(),
		engine: e,
		text:   text,
		voice:  voice,
		src:    src,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// ID returns the unique session identifier.
func (s *Session) ID() string { return s.id }

// Cancel stops the session. It is safe to call more than once and from any
// goroutine. A session cancelled before its first frame is written ends
// Interrupted with zero frames.
func (s *Session) Cancel() { s.cancel() }

// Done is closed when the session has ended and the device is released.
func (s *Session) Done() <-chan struct{} { return s.done }

// Wait blocks until the session has ended and returns its outcome.
func (s *Session) Wait() Outcome {
	<-s.done
	return s.outcome
}

func (s *Session) run() {
	e := s.engine
	ctx, span := observe.StartSpan(s.ctx, "playback.speak")
	log := observe.Logger(ctx).With("session", s.id)
	start := time.Now()

	defer func() {
		s.cancel()
		o := s.outcome
		span.SetAttributes(
			attribute.String("playback.result", o.Result.String()),
			attribute.Int("playback.frames", o.FramesWritten),
		)
		if o.Err != nil {
			span.RecordError(o.Err)
			span.SetStatus(codes.Error, o.Err.Error())
		}
		span.End()
		e.metrics.RecordPlaybackSession(ctx, o.Result.String())
		log.Debug("playback session ended",
			"result", o.Result.String(),
			"frames", o.FramesWritten,
			"barge_in", o.BargeIn,
			"elapsed", time.Since(start),
			"err", o.Err,
		)
		close(s.done)
	}()

	if ctx.Err() != nil {
		s.outcome = Outcome{Result: Interrupted}
		return
	}

	e.resetDetectors()
	log.Debug("playback session started", "chars", len(s.text))

	dev, err := e.out.OpenOutput(e.format)
	if err != nil {
		s.outcome = Outcome{Result: Failed, Err: &audio.DeviceError{Op: "open", Device: "output", Err: err}}
		return
	}
	defer release(log, dev)
	if err := dev.Start(); err != nil {
		s.outcome = Outcome{Result: Failed, Err: &audio.DeviceError{Op: "start", Device: "output", Err: err}}
		return
	}

	synthCtx, cancelSynth := context.WithCancel(ctx)
	defer cancelSynth()
	stream, err := e.synth.SynthesizeStream(synthCtx, s.text, s.voice)
	if err != nil {
		if ctx.Err() != nil {
			s.outcome = Outcome{Result: Interrupted}
			return
		}
		s.outcome = Outcome{Result: Failed, Err: fmt.Errorf("%w: %w", ErrSynthesis, err)}
		return
	}

	var w writer
	g, gctx := errgroup.WithContext(ctx)
	frames := make(chan audio.Frame, e.queueDepth)
	g.Go(func() error {
		defer close(frames)
		return e.pull(gctx, stream, frames)
	})
	g.Go(func() error {
		return w.write(gctx, e, dev, frames, s.src)
	})
	err = g.Wait()

	// Stop synthesis and let the provider finish so its goroutine exits.
	cancelSynth()
	audio.Drain(stream.Audio())

	s.outcome = Outcome{FramesWritten: w.written}
	switch {
	case errors.Is(err, errInterrupted):
		s.outcome.Result = Interrupted
		s.outcome.BargeIn = true
	case err != nil:
		s.outcome.Result = Failed
		s.outcome.Err = err
	case w.completed:
		s.outcome.Result = Completed
	default:
		s.outcome.Result = Interrupted
	}
}

// release stops and closes dev. Failures are logged; the session outcome is
// already decided.
func release(log *slog.Logger, dev audio.OutputDevice) {
	if err := dev.Stop(); err != nil {
		log.Warn("playback: stop output device", "err", err)
	}
	if err := dev.Close(); err != nil {
		log.Warn("playback: close output device", "err", err)
	}
}

// pull frames the TTS stream into the queue. It returns nil on cancellation
// and an error wrapping ErrSynthesis when the stream fails.
func (e *Engine) pull(ctx context.Context, stream *tts.Stream, out chan<- audio.Frame) error {
	framer := audio.NewFramer(e.format, stream.SampleRate())
	send := func(f audio.Frame) bool {
		select {
		case out <- f:
			return true
		case <-ctx.Done():
			return false
		}
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case chunk, ok := <-stream.Audio():
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				if err := stream.Err(); err != nil {
					return fmt.Errorf("%w: %w", ErrSynthesis, err)
				}
				if f, ok := framer.Flush(); ok {
					send(f)
				}
				return nil
			}
			for _, f := range framer.Write(chunk) {
				if !send(f) {
					return nil
				}
			}
		}
	}
}

// writer is the device side of a session.
type writer struct {
	written   int
	completed bool
}

// write plays queued frames and runs barge-in detection after each one.
func (w *writer) write(ctx context.Context, e *Engine, dev audio.OutputDevice, frames <-chan audio.Frame, src Capture) error {
	frameDur := e.format.FrameDuration()
	for {
		select {
		case <-ctx.Done():
			return nil
		case f, ok := <-frames:
			if !ok {
				w.completed = ctx.Err() == nil
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			if err := dev.WriteFrame(f); err != nil {
				return &audio.DeviceError{Op: "write", Device: "output", Err: err}
			}
			w.written++
			e.metrics.PlaybackFrames.Add(ctx, 1)

			if src == nil || e.wake == nil {
				continue
			}
			captured, ok := src.Latest()
			if !ok {
				continue
			}
			played := time.Duration(w.written) * frameDur
			if e.bargeIn(ctx, captured, f, played) {
				return errInterrupted
			}
		}
	}
}

// bargeIn runs the echo canceller on captured with the written frame as
// reference, then the wake-word detector once warm-up has passed.
func (e *Engine) bargeIn(ctx context.Context, captured, reference audio.Frame, played time.Duration) bool {
	cleaned, ok := classify.Apply(ctx, e.policy, classify.Call(classify.StageAEC, func() (audio.Frame, error) {
		return e.canceller.Cancel(captured, reference)
	}))
	if !ok || played < e.warmUp {
		return false
	}
	hit, ok := classify.Apply(ctx, e.policy, classify.Call(classify.StageWakeWord, func() (bool, error) {
		return e.wake.Detect(cleaned)
	}))
	if ok && hit {
		e.metrics.RecordWakeDetection(ctx, "barge_in")
		observe.Logger(ctx).Info("barge-in detected", "seq", captured.Seq, "played", played)
		return true
	}
	return false
}
