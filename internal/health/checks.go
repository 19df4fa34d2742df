package health

import (
	"context"
	"errors"
)

// Readiness failures reported by the built-in checkers.
var (
	ErrCaptureStopped = errors.New("capture loop is not running")
	ErrDialogueEnded  = errors.New("dialogue has ended")
	ErrNoProvider     = errors.New("no provider available")
)

// CaptureRunning fails while running reports false.
func CaptureRunning(running func() bool) Checker {
	return Checker{Name: "capture", Check: func(context.Context) error {
		if !running() {
			return ErrCaptureStopped
		}
		return nil
	}}
}

// DialogueActive fails once ended reports true.
func DialogueActive(ended func() bool) Checker {
	return Checker{Name: "dialogue", Check: func(context.Context) error {
		if ended() {
			return ErrDialogueEnded
		}
		return nil
	}}
}

// ProviderAvailable fails when available reports false, typically because
// every circuit breaker of a provider group is open.
func ProviderAvailable(kind string, available func() bool) Checker {
	return Checker{Name: "provider." + kind, Check: func(context.Context) error {
		if !available() {
			return ErrNoProvider
		}
		return nil
	}}
}
