// Package app wires the voice pipeline into a running assistant.
//
// New connects the frame bus, recorder, playback engine and dialogue
// orchestrator to the configured providers. Run opens the microphone and
// drives capture and dialogue until the dialogue ends, the input device
// fails or ctx is cancelled. Shutdown stops every background task within a
// deadline and closes the providers.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/vocalis/internal/capture"
	"github.com/MrWong99/vocalis/internal/classify"
	"github.com/MrWong99/vocalis/internal/config"
	"github.com/MrWong99/vocalis/internal/observe"
	"github.com/MrWong99/vocalis/internal/orchestrator"
	"github.com/MrWong99/vocalis/internal/playback"
	"github.com/MrWong99/vocalis/internal/recorder"
	"github.com/MrWong99/vocalis/internal/supervise"
	"github.com/MrWong99/vocalis/pkg/audio"
	"github.com/MrWong99/vocalis/pkg/audio/bus"
	"github.com/MrWong99/vocalis/pkg/provider/tts"
)

// defaultStopTimeout bounds each task join when Shutdown has no deadline.
const defaultStopTimeout = 5 * time.Second

// errDialogueEnded stops capture once the dialogue reached its end.
var errDialogueEnded = errors.New("app: dialogue ended")

// App owns the pipeline and its background tasks.
type App struct {
	cfg       *config.Config
	providers *Providers
	format    audio.Format
	metrics   *observe.Metrics
	logLevel  *slog.LevelVar
	watcher   *config.Watcher
	responder orchestrator.Responder
	scrape    http.Handler

	bus     *bus.Bus
	speaker *playback.Engine
	orch    *orchestrator.Orchestrator
	loop    atomic.Pointer[capture.Loop]

	mu       sync.Mutex
	started  bool
	stopped  bool
	cancel   context.CancelFunc
	tasks    []*supervise.Task
	stopOnce sync.Once
}

// Option configures an [App].
type Option func(*App)

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler sets the handler mounted at /metrics. Defaults to the
// Prometheus default registry.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.scrape = h }
}

// WithLogLevel lets hot reload change the level of the installed logger.
func WithLogLevel(v *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = v }
}

// WithConfigWatcher hot-applies dialogue changes reported by w while Run is
// active.
func WithConfigWatcher(w *config.Watcher) Option {
	return func(a *App) { a.watcher = w }
}

// WithResponder replaces the LLM-backed responder.
func WithResponder(r orchestrator.Responder) Option {
	return func(a *App) { a.responder = r }
}

// New wires the pipeline. It does not open any device.
func New(cfg *config.Config, p *Providers, opts ...Option) (*App, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	a := &App{cfg: cfg, providers: p}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.responder == nil {
		a.responder = orchestrator.NewResponder(p.LLM, orchestrator.WithSystemPrompt(cfg.Dialogue.SystemPrompt))
	}

	a.format = audio.NewFormat(cfg.Audio.SampleRate, cfg.Audio.FrameMs)
	if err := a.format.Validate(); err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	policy := classify.NewPolicy(classify.WithMetrics(a.metrics))

	a.bus = bus.New(cfg.Audio.BusCapacity, bus.WithObserver(a.metrics.BusObserver()))

	rec := recorder.New(p.VAD, recorder.Config{
		Format:        a.format,
		Window:        cfg.Recorder.Window,
		Silence:       cfg.Recorder.Silence,
		Timeout:       cfg.Recorder.Timeout,
		VoicedRatio:   cfg.Recorder.VoicedRatio,
		UnvoicedRatio: cfg.Recorder.UnvoicedRatio,
	}, recorder.WithPolicy(policy), recorder.WithMetrics(a.metrics))

	a.speaker = playback.New(p.Audio, p.TTS, p.WakeWord, p.AEC,
		playback.WithFormat(a.format),
		playback.WithWarmUp(cfg.Playback.WarmUp),
		playback.WithQueueDepth(cfg.Playback.QueueDepth),
		playback.WithVoice(voiceProfile(cfg.Dialogue.Voice)),
		playback.WithMetrics(a.metrics),
		playback.WithPolicy(policy),
	)

	a.orch = orchestrator.New(a.bus, p.WakeWord, rec, a.speaker, p.STT, a.responder,
		orchestrator.WithDialogue(dialogue(cfg.Dialogue)),
		orchestrator.WithMetrics(a.metrics),
		orchestrator.WithPolicy(policy),
	)

	slog.Info("pipeline ready",
		"sample_rate", a.format.SampleRate,
		"frame", a.format.FrameDuration(),
		"bus_capacity", cfg.Audio.BusCapacity,
	)
	return a, nil
}

// Orchestrator returns the dialogue state machine.
func (a *App) Orchestrator() *orchestrator.Orchestrator { return a.orch }

// CaptureRunning reports whether the capture loop is reading frames.
func (a *App) CaptureRunning() bool {
	l := a.loop.Load()
	return l != nil && l.Running()
}

// Run starts the optional HTTP server and config watcher, then runs capture
// and dialogue until the dialogue ends (nil), ctx is cancelled (nil) or a
// device fails ([*audio.DeviceError]). Run may be called once.
func (a *App) Run(ctx context.Context) error {
	a.mu.Lock()
	if a.started || a.stopped {
		a.mu.Unlock()
		return errors.New("app: Run called twice or after Shutdown")
	}
	a.started = true
	ctx, a.cancel = context.WithCancel(ctx)
	a.mu.Unlock()

	if a.cfg.Server.ListenAddr != "" {
		a.track(supervise.Go(ctx, "http", a.serve))
	}
	if a.watcher != nil {
		a.track(supervise.Go(ctx, "config-watcher", a.watcher.Run))
	}
	pipeline := supervise.Go(ctx, "pipeline", a.runPipeline)
	a.track(pipeline)

	<-pipeline.Done()
	return pipeline.Err()
}

func (a *App) track(t *supervise.Task) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tasks = append(a.tasks, t)
}

// runPipeline owns the input device for one run. A capture failure cancels
// the dialogue with the device error as cause so it can apologise.
func (a *App) runPipeline(ctx context.Context) error {
	in, err := a.providers.Audio.OpenInput(a.format)
	if err != nil {
		return err
	}
	closeInput := sync.OnceFunc(func() {
		if err := in.Close(); err != nil {
			slog.Warn("closing input device", "err", err)
		}
	})
	defer closeInput()

	loop := capture.New(in, a.bus,
		capture.WithMaxFailures(a.cfg.Audio.MaxReadFailures),
		capture.WithRetryDelay(a.cfg.Audio.RetryDelay),
		capture.WithMetrics(a.metrics),
	)
	a.loop.Store(loop)

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	g, gctx := errgroup.WithContext(runCtx)
	// Unblocks a pending ReadFrame once the run is over.
	stop := context.AfterFunc(gctx, closeInput)
	defer stop()

	g.Go(func() error { return loop.Run(gctx) })
	g.Go(func() error {
		err := a.orch.Run(gctx)
		cancel(errDialogueEnded)
		return err
	})
	return g.Wait()
}

// Reconfigure applies the hot-reloadable parts of next.
func (a *App) Reconfigure(old, next *config.Config) {
	changes := config.Diff(old, next)
	if changes.Dialogue {
		a.orch.UpdateDialogue(dialogue(next.Dialogue))
		a.speaker.SetVoice(voiceProfile(next.Dialogue.Voice))
	}
	if changes.LogLevel && a.logLevel != nil {
		a.logLevel.Set(next.Server.LogLevel.Slog())
		slog.Info("log level changed", "level", next.Server.LogLevel)
	}
	if len(changes.Restart) > 0 {
		slog.Warn("configuration changes need a restart", "sections", changes.Restart)
	}
}

// Shutdown cancels Run, joins every task within ctx's deadline and closes
// the providers. It is safe to call more than once; later calls return nil.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	a.stopOnce.Do(func() {
		a.mu.Lock()
		a.stopped = true
		if a.cancel != nil {
			a.cancel()
		}
		tasks := append([]*supervise.Task(nil), a.tasks...)
		a.mu.Unlock()

		for i := len(tasks) - 1; i >= 0; i-- {
			if err := tasks[i].Stop(stopTimeout(ctx)); err != nil && errors.Is(err, supervise.ErrJoinTimeout) {
				errs = append(errs, err)
			}
		}
		errs = append(errs, a.providers.close()...)
		slog.Info("shutdown complete", "errors", len(errs))
	})
	return errors.Join(errs...)
}

func stopTimeout(ctx context.Context) time.Duration {
	dl, ok := ctx.Deadline()
	if !ok {
		return defaultStopTimeout
	}
	if d := time.Until(dl); d > 0 {
		return d
	}
	return time.Millisecond
}

func dialogue(c config.DialogueConfig) orchestrator.Dialogue {
	return orchestrator.Dialogue{
		Greeting:           c.Greeting,
		Reprompt:           c.Reprompt,
		Farewell:           c.Farewell,
		RetryPrompt:        c.RetryPrompt,
		GenerationFallback: c.GenerationFallback,
		DeviceApology:      c.DeviceApology,
		ExitPhrases:        c.ExitPhrases,
		PhoneticExit:       c.PhoneticExit,
		SystemPrompt:       c.SystemPrompt,
	}
}

func voiceProfile(v config.VoiceConfig) tts.VoiceProfile {
	return tts.VoiceProfile{ID: v.ID, Name: v.Name, Speed: v.Speed}
}

// closeAll closes every value that implements io.Closer.
func closeAll(vs ...any) []error {
	var errs []error
	for _, v := range vs {
		c, ok := v.(io.Closer)
		if !ok {
			continue
		}
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
