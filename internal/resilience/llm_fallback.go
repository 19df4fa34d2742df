package resilience

import (
	"context"
	"errors"

	"github.com/MrWong99/vocalis/pkg/provider/llm"
)

// LLMFallback is an [llm.Provider] over a [FallbackGroup].
type LLMFallback struct {
	*FallbackGroup[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an LLMFallback with primary as the preferred backend.
// Cancellation is neutral.
func NewLLMFallback(primary llm.Provider, name string, cfg FallbackConfig) *LLMFallback {
	cfg.CircuitBreaker.Neutral = either(cfg.CircuitBreaker.Neutral, isCancellation)
	return &LLMFallback{NewFallbackGroup(primary, name, cfg)}
}

// Complete returns the first successful completion.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return Do(ctx, f.FallbackGroup, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// either combines two neutral-error predicates.
func either(a, b func(error) bool) func(error) bool {
	if a == nil {
		return b
	}
	return func(err error) bool { return a(err) || b(err) }
}
