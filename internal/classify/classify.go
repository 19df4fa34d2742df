// Package classify gives every per-frame classifier (VAD, wake word, echo
// cancellation) one result type and one failure policy: a failed frame is
// skipped, counted and logged, never fatal.
package classify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/MrWong99/vocalis/internal/observe"
)

// Stage names the classifier that produced a result.
type Stage string

// Classifier stages.
const (
	StageVAD      Stage = "vad"
	StageWakeWord Stage = "wakeword"
	StageAEC      Stage = "aec"
)

// Error is a classifier failure on a single frame.
type Error struct {
	Stage Stage
	Err   error
}

// Error implements error.
func (e *Error) Error() string {
	return fmt.Sprintf("classify: %s: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error { return e.Err }

// Result is the outcome of one classifier call: either a Value or an Err.
type Result[T any] struct {
	Value T
	Err   *Error
}

// OK reports whether the call succeeded.
func (r Result[T]) OK() bool { return r.Err == nil }

// Call runs fn and wraps its outcome. A panic inside fn is recovered and
// reported as an Error.
func Call[T any](stage Stage, fn func() (T, error)) (res Result[T]) {
	defer func() {
		if p := recover(); p != nil {
			res = Result[T]{Err: &Error{Stage: stage, Err: fmt.Errorf("panic: %v", p)}}
		}
	}()
	v, err := fn()
	if err != nil {
		return Result[T]{Err: &Error{Stage: stage, Err: err}}
	}
	return Result[T]{Value: v}
}

// Policy applies skip-and-log to failed results. Logging is rate limited per
// stage; suppressed occurrences are reported with the next emitted line.
type Policy struct {
	metrics *observe.Metrics
	every   time.Duration

	mu         sync.Mutex
	limiters   map[Stage]*rate.Limiter
	suppressed map[Stage]int
}

// Option configures a [Policy].
type Option func(*Policy)

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Policy) { p.metrics = m }
}

// WithLogInterval sets the minimum spacing between log lines per stage.
// Default: 5s.
func WithLogInterval(d time.Duration) Option {
	return func(p *Policy) { p.every = d }
}

// NewPolicy creates a Policy.
func NewPolicy(opts ...Option) *Policy {
	p := &Policy{
		every:      5 * time.Second,
		limiters:   make(map[Stage]*rate.Limiter),
		suppressed: make(map[Stage]int),
	}
	for _, o := range opts {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	return p
}

// Skip records err as a skipped frame. It never blocks.
func (p *Policy) Skip(ctx context.Context, err *Error) {
	if err == nil {
		return
	}
	p.metrics.RecordClassifierError(ctx, string(err.Stage))

	p.mu.Lock()
	lim, ok := p.limiters[err.Stage]
	if !ok {
		lim = rate.NewLimiter(rate.Every(p.every), 1)
		p.limiters[err.Stage] = lim
	}
	if !lim.Allow() {
		p.suppressed[err.Stage]++
		p.mu.Unlock()
		return
	}
	suppressed := p.suppressed[err.Stage]
	p.suppressed[err.Stage] = 0
	p.mu.Unlock()

	observe.Logger(ctx).LogAttrs(ctx, slog.LevelWarn, "classifier failed, frame skipped",
		slog.String("stage", string(err.Stage)),
		slog.String("err", err.Err.Error()),
		slog.Int("suppressed", suppressed),
	)
}

// Apply returns r.Value and true on success. On failure it skips the frame
// through p and returns the zero value and false.
func Apply[T any](ctx context.Context, p *Policy, r Result[T]) (T, bool) {
	if r.OK() {
		return r.Value, true
	}
	p.Skip(ctx, r.Err)
	var zero T
	return zero, false
}
