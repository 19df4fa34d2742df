// Package recorder captures one utterance from the frame bus, bounded by
// voice activity.
//
// Recording runs in two phases. While waiting for speech the recorder keeps a
// sliding onset window of the last N classified frames; once the window is
// full and the voiced fraction exceeds the configured ratio, the window's
// frames become the start of the utterance. While collecting, every frame is
// appended and a trailing window of the last M classifications decides the
// end point: once full with an unvoiced fraction above its ratio, the
// utterance is finalised including the frame that triggered it.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/vocalis/internal/classify"
	"github.com/MrWong99/vocalis/internal/observe"
	"github.com/MrWong99/vocalis/pkg/audio"
	"github.com/MrWong99/vocalis/pkg/audio/bus"
	"github.com/MrWong99/vocalis/pkg/provider/vad"
)

// FrameSource delivers frames in capture order. [*bus.Reader] implements it.
type FrameSource interface {
	Next(ctx context.Context) (audio.Frame, error)
}

// Config holds the recorder's windowing parameters.
type Config struct {
	// Format is the pipeline frame format.
	Format audio.Format

	// Window is the onset window length.
	Window time.Duration

	// Silence is the trailing end-point window length.
	Silence time.Duration

	// Timeout bounds a whole Record call, measured from its start.
	Timeout time.Duration

	// VoicedRatio is the voiced fraction the onset window must exceed.
	VoicedRatio float64

	// UnvoicedRatio is the unvoiced fraction the trailing window must exceed.
	UnvoicedRatio float64
}

// DefaultConfig returns 300 ms windows, a 10 s timeout and 0.9 ratios at the
// default format.
func DefaultConfig() Config {
	return Config{
		Format:        audio.DefaultFormat(),
		Window:        300 * time.Millisecond,
		Silence:       300 * time.Millisecond,
		Timeout:       10 * time.Second,
		VoicedRatio:   0.9,
		UnvoicedRatio: 0.9,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Format.SampleRate == 0 || c.Format.FrameSize == 0 {
		c.Format = d.Format
	}
	if c.Window <= 0 {
		c.Window = d.Window
	}
	if c.Silence <= 0 {
		c.Silence = d.Silence
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.VoicedRatio <= 0 {
		c.VoicedRatio = d.VoicedRatio
	}
	if c.UnvoicedRatio <= 0 {
		c.UnvoicedRatio = d.UnvoicedRatio
	}
	return c
}

// Option configures a [Recorder].
type Option func(*Recorder)

// WithPolicy sets the classifier failure policy.
func WithPolicy(p *classify.Policy) Option {
	return func(r *Recorder) { r.policy = p }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Recorder) { r.metrics = m }
}

// Recorder turns a stream of frames into utterances. A Recorder holds no
// per-call state and may be reused, but not concurrently.
type Recorder struct {
	det     vad.Detector
	cfg     Config
	onsetN  int
	endM    int
	policy  *classify.Policy
	metrics *observe.Metrics
}

// New creates a Recorder classifying frames with det. Zero fields in cfg take
// their defaults.
func New(det vad.Detector, cfg Config, opts ...Option) *Recorder {
	cfg = cfg.withDefaults()
	r := &Recorder{
		det:    det,
		cfg:    cfg,
		onsetN: cfg.Format.FramesIn(cfg.Window),
		endM:   cfg.Format.FramesIn(cfg.Silence),
	}
	for _, o := range opts {
		o(r)
	}
	if r.metrics == nil {
		r.metrics = observe.DefaultMetrics()
	}
	if r.policy == nil {
		r.policy = classify.NewPolicy(classify.WithMetrics(r.metrics))
	}
	return r
}

// Config returns the effective configuration.
func (r *Recorder) Config() Config { return r.cfg }

// WindowFrames returns the onset (N) and end-point (M) window sizes in frames.
func (r *Recorder) WindowFrames() (onset, end int) { return r.onsetN, r.endM }

type classified struct {
	frame  audio.Frame
	voiced bool
}

// Record reads frames from src until an utterance is complete.
//
// On timeout the frames collected so far are returned with a nil error; the
// utterance is empty when speech never started. When ctx is cancelled the
// context error is returned. When src reports [bus.ErrSuperseded] the
// collected frames are returned together with that error.
func (r *Recorder) Record(ctx context.Context, src FrameSource) (audio.Utterance, error) {
	rctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	start := time.Now()
	utt := audio.Utterance{SampleRate: r.cfg.Format.SampleRate}
	collecting := false
	onset := make([]classified, 0, r.onsetN)
	trailing := make([]bool, 0, r.endM)

	for {
		f, err := src.Next(rctx)
		if err != nil {
			switch {
			case errors.Is(err, bus.ErrSuperseded):
				return r.finish(ctx, utt, "superseded", start), err
			case ctx.Err() != nil:
				return audio.Utterance{}, ctx.Err()
			case errors.Is(err, context.DeadlineExceeded):
				return r.finish(ctx, utt, "timeout", start), nil
			default:
				return r.finish(ctx, utt, "source error", start), fmt.Errorf("recorder: read frame: %w", err)
			}
		}

		res := classify.Call(classify.StageVAD, func() (bool, error) { return r.det.IsSpeech(f) })
		voiced, ok := classify.Apply(ctx, r.policy, res)

		if !collecting {
			if !ok {
				continue
			}
			if len(onset) == r.onsetN {
				onset = onset[1:]
			}
			onset = append(onset, classified{frame: f, voiced: voiced})
			if len(onset) < r.onsetN || !exceeds(countVoiced(onset), r.onsetN, r.cfg.VoicedRatio) {
				continue
			}
			collecting = true
			for _, c := range onset {
				utt.Frames = append(utt.Frames, c.frame)
			}
			slog.Debug("recorder: speech onset", "seq", f.Seq, "pre_roll", len(onset))
			continue
		}

		utt.Frames = append(utt.Frames, f)
		if !ok {
			continue
		}
		if len(trailing) == r.endM {
			trailing = trailing[1:]
		}
		trailing = append(trailing, !voiced)
		if len(trailing) == r.endM && exceeds(countTrue(trailing), r.endM, r.cfg.UnvoicedRatio) {
			return r.finish(ctx, utt, "end of speech", start), nil
		}
	}
}

// finish records metrics for utt and returns it.
func (r *Recorder) finish(ctx context.Context, utt audio.Utterance, reason string, start time.Time) audio.Utterance {
	r.metrics.RecordUtterance(ctx, utt.Duration().Seconds())
	observe.Logger(ctx).Debug("recorder: utterance finished",
		"reason", reason,
		"frames", len(utt.Frames),
		"audio", utt.Duration(),
		"elapsed", time.Since(start),
	)
	return utt
}

// exceeds reports hits/n > ratio.
func exceeds(hits, n int, ratio float64) bool {
	return float64(hits)/float64(n) > ratio
}

func countVoiced(w []classified) int {
	n := 0
	for _, c := range w {
		if c.voiced {
			n++
		}
	}
	return n
}

func countTrue(w []bool) int {
	n := 0
	for _, b := range w {
		if b {
			n++
		}
	}
	return n
}
