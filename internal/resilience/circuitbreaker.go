// Package resilience protects the assistant from flaky remote providers.
//
// [CircuitBreaker] stops calling a backend after repeated failures and probes
// it again after a cool-down. [FallbackGroup] chains several backends of the
// same kind, each behind its own breaker, and the typed wrappers
// ([LLMFallback], [STTFallback], [TTSFallback]) expose a group as a single
// provider.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned without calling the backend while the breaker is
// open.
var ErrCircuitOpen = errors.New("resilience: circuit open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota
	// StateOpen rejects calls until the reset timeout has elapsed.
	StateOpen
	// StateHalfOpen lets a limited number of probe calls through.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Default breaker settings.
const (
	DefaultMaxFailures  = 3
	DefaultResetTimeout = 30 * time.Second
	DefaultHalfOpenMax  = 1
)

// CircuitBreakerConfig tunes a [CircuitBreaker]. Zero fields take the
// package defaults.
type CircuitBreakerConfig struct {
	// Name labels log records.
	Name string

	// MaxFailures is the number of consecutive failures that opens the
	// breaker.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before probing.
	ResetTimeout time.Duration

	// HalfOpenMax is the number of successful probes needed to close again.
	HalfOpenMax int

	// Neutral reports errors that say nothing about backend health, such as
	// a cancelled request or an empty transcript. They are returned to the
	// caller but never counted as failures.
	Neutral func(error) bool
}

// CircuitBreaker is a three-state breaker. Safe for concurrent use.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig
	now func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probes   int
	passed   int
}

// NewCircuitBreaker returns a closed breaker.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = DefaultMaxFailures
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = DefaultResetTimeout
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = DefaultHalfOpenMax
	}
	return &CircuitBreaker{cfg: cfg, now: time.Now}
}

// Name returns the configured label.
func (cb *CircuitBreaker) Name() string { return cb.cfg.Name }

// Execute calls fn unless the breaker is open.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probe, err := cb.admit()
	if err != nil {
		return err
	}
	err = fn()
	cb.settle(probe, err)
	return err
}

// admit decides whether a call may proceed and whether it is a probe.
func (cb *CircuitBreaker) admit() (probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if cb.now().Sub(cb.openedAt) < cb.cfg.ResetTimeout {
			return false, ErrCircuitOpen
		}
		cb.state, cb.probes, cb.passed = StateHalfOpen, 0, 0
		slog.Info("circuit half-open, probing", "name", cb.cfg.Name)
	}
	if cb.state == StateHalfOpen {
		if cb.probes >= cb.cfg.HalfOpenMax {
			return false, ErrCircuitOpen
		}
		cb.probes++
		return true, nil
	}
	return false, nil
}

func (cb *CircuitBreaker) settle(probe bool, err error) {
	if err != nil && cb.cfg.Neutral != nil && cb.cfg.Neutral(err) {
		if probe {
			cb.mu.Lock()
			cb.probes--
			cb.mu.Unlock()
		}
		return
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch {
	case err != nil && probe:
		cb.trip()
		slog.Warn("circuit re-opened, probe failed", "name", cb.cfg.Name, "err", err)
	case err != nil:
		cb.failures++
		if cb.state == StateClosed && cb.failures >= cb.cfg.MaxFailures {
			cb.trip()
			slog.Warn("circuit opened", "name", cb.cfg.Name, "failures", cb.failures, "err", err)
		}
	case probe:
		cb.passed++
		if cb.passed >= cb.cfg.HalfOpenMax {
			cb.state, cb.failures = StateClosed, 0
			slog.Info("circuit closed", "name", cb.cfg.Name)
		}
	default:
		cb.failures = 0
	}
}

// trip opens the breaker. cb.mu must be held.
func (cb *CircuitBreaker) trip() {
	cb.state = StateOpen
	cb.openedAt = cb.now()
}

// State returns the current state. An open breaker whose timeout elapsed
// reports [StateHalfOpen]; the switch itself happens on the next call.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.cfg.ResetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset closes the breaker and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state, cb.failures, cb.probes, cb.passed = StateClosed, 0, 0, 0
}
