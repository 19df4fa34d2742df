package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/vocalis/internal/observe"
)

// ErrAllFailed wraps the last error once every backend of a group failed or
// was skipped.
var ErrAllFailed = errors.New("resilience: all providers failed")

// FallbackConfig is applied to the breaker of every group member.
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig

	// Kind labels provider request metrics ("llm", "stt", "tts").
	Kind string

	// Metrics, if set, counts every attempt per member and status.
	Metrics *observe.Metrics
}

// Member reports the health of one group member.
type Member struct {
	Name  string
	State State
}

type member[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup tries backends of type T in registration order, skipping
// those whose breaker is open. Members must be added before the group is used
// concurrently.
type FallbackGroup[T any] struct {
	cfg     FallbackConfig
	members []member[T]
}

// NewFallbackGroup creates a group whose first member is primary.
func NewFallbackGroup[T any](primary T, name string, cfg FallbackConfig) *FallbackGroup[T] {
	g := &FallbackGroup[T]{cfg: cfg}
	g.Add(name, primary)
	return g
}

// Add appends a fallback member.
func (g *FallbackGroup[T]) Add(name string, value T) {
	bc := g.cfg.CircuitBreaker
	bc.Name = name
	g.members = append(g.members, member[T]{name: name, value: value, breaker: NewCircuitBreaker(bc)})
}

// Primary returns the first member.
func (g *FallbackGroup[T]) Primary() T { return g.members[0].value }

// Members returns the breaker state of every member in order.
func (g *FallbackGroup[T]) Members() []Member {
	out := make([]Member, len(g.members))
	for i, m := range g.members {
		out[i] = Member{Name: m.name, State: m.breaker.State()}
	}
	return out
}

// Available reports whether at least one member's breaker is not open.
func (g *FallbackGroup[T]) Available() bool {
	for _, m := range g.members {
		if m.breaker.State() != StateOpen {
			return true
		}
	}
	return false
}

// Execute is [Do] without a result.
func (g *FallbackGroup[T]) Execute(ctx context.Context, fn func(T) error) error {
	_, err := Do(ctx, g, func(v T) (struct{}, error) { return struct{}{}, fn(v) })
	return err
}

// Do calls fn with each member until one succeeds. Neutral errors and ctx
// cancellation are returned as they are without trying further members.
func Do[T, R any](ctx context.Context, g *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var (
		zero R
		last error
	)
	neutral := g.cfg.CircuitBreaker.Neutral
	for i := range g.members {
		m := &g.members[i]
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		var res R
		err := m.breaker.Execute(func() error {
			var err error
			res, err = fn(m.value)
			return err
		})
		g.record(ctx, m.name, err, neutral)
		switch {
		case err == nil:
			return res, nil
		case ctx.Err() != nil, neutral != nil && neutral(err):
			return zero, err
		case errors.Is(err, ErrCircuitOpen):
			slog.Debug("provider skipped, circuit open", "provider", m.name)
		default:
			slog.Warn("provider failed", "provider", m.name, "err", err, "remaining", len(g.members)-i-1)
		}
		last = err
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, last)
}

func (g *FallbackGroup[T]) record(ctx context.Context, name string, err error, neutral func(error) bool) {
	if g.cfg.Metrics == nil {
		return
	}
	status := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrCircuitOpen):
		status = "circuit_open"
	case ctx.Err() != nil:
		status = "cancelled"
	case neutral != nil && neutral(err):
		status = "neutral"
	default:
		status = "error"
	}
	g.cfg.Metrics.RecordProviderRequest(context.WithoutCancel(ctx), name, g.cfg.Kind, status)
}
