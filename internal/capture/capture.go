// Package capture runs the audio capture loop: it reads fixed-length frames
// from the input device and pushes them onto the frame bus.
//
// The loop is the bus's only producer. It never waits on consumers; a slow
// consumer loses the oldest frames instead of stalling capture.
package capture

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/MrWong99/vocalis/internal/observe"
	"github.com/MrWong99/vocalis/pkg/audio"
	"github.com/MrWong99/vocalis/pkg/audio/bus"
)

// Defaults for the read retry policy.
const (
	DefaultMaxFailures = 5
	DefaultRetryDelay  = 100 * time.Millisecond
)

// Option configures a [Loop].
type Option func(*Loop)

// WithMaxFailures sets how many consecutive read failures are tolerated
// before the loop gives up with a device error.
func WithMaxFailures(n int) Option {
	return func(l *Loop) {
		if n > 0 {
			l.maxFailures = n
		}
	}
}

// WithRetryDelay sets the pause after a failed read.
func WithRetryDelay(d time.Duration) Option {
	return func(l *Loop) {
		if d >= 0 {
			l.retryDelay = d
		}
	}
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(l *Loop) { l.metrics = m }
}

// Loop moves frames from an input device onto a bus.
type Loop struct {
	dev         audio.InputDevice
	bus         *bus.Bus
	maxFailures int
	retryDelay  time.Duration
	metrics     *observe.Metrics

	running atomic.Bool
	frames  atomic.Uint64
}

// New creates a capture loop reading from dev into b. The caller owns dev:
// it opens it before Run and closes it after Run returns (closing it earlier
// unblocks a pending read).
func New(dev audio.InputDevice, b *bus.Bus, opts ...Option) *Loop {
	l := &Loop{
		dev:         dev,
		bus:         b,
		maxFailures: DefaultMaxFailures,
		retryDelay:  DefaultRetryDelay,
	}
	for _, o := range opts {
		o(l)
	}
	if l.metrics == nil {
		l.metrics = observe.DefaultMetrics()
	}
	return l
}

// Running reports whether Run is currently executing.
func (l *Loop) Running() bool { return l.running.Load() }

// Frames returns how many frames have been pushed onto the bus.
func (l *Loop) Frames() uint64 { return l.frames.Load() }

// Run reads frames until ctx is cancelled, in which case it returns nil.
//
// A failed read is logged and retried after the retry delay. After the
// configured number of consecutive failures, or when the device reports it
// was closed, Run returns an [*audio.DeviceError]. Any successful read
// resets the failure count.
func (l *Loop) Run(ctx context.Context) error {
	l.running.Store(true)
	defer l.running.Store(false)

	slog.Info("capture loop started", "max_failures", l.maxFailures)
	defer slog.Info("capture loop stopped", "frames", l.frames.Load())

	failures := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		f, err := l.dev.ReadFrame()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			failures++
			l.metrics.CaptureReadErrors.Add(ctx, 1)

			if errors.Is(err, audio.ErrDeviceClosed) || failures >= l.maxFailures {
				slog.Error("capture device failed", "err", err, "consecutive_failures", failures)
				return &audio.DeviceError{Op: "read", Device: "input", Err: err}
			}
			slog.Warn("capture read failed, retrying", "err", err, "attempt", failures, "retry_in", l.retryDelay)
			if !sleep(ctx, l.retryDelay) {
				return nil
			}
			continue
		}

		failures = 0
		l.bus.Push(f)
		l.frames.Add(1)
		l.metrics.CapturedFrames.Add(ctx, 1)
	}
}

// sleep waits d or until ctx is done. It returns false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
