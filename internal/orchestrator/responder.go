package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/MrWong99/vocalis/pkg/provider/llm"
)

// DefaultSystemPrompt keeps answers short enough to be spoken.
const DefaultSystemPrompt = "You are a concise voice assistant. Answer in one or two short sentences."

// DefaultHistoryTurns is the number of past exchanges sent with each request.
const DefaultHistoryTurns = 6

// ErrEmptyResponse is returned when the model produced no speakable text.
var ErrEmptyResponse = errors.New("orchestrator: empty response")

// Responder turns a transcript into the text to speak.
type Responder interface {
	Respond(ctx context.Context, transcript string) (string, error)
}

// ResponderFunc adapts a plain function to [Responder].
type ResponderFunc func(ctx context.Context, transcript string) (string, error)

// Respond implements [Responder].
func (f ResponderFunc) Respond(ctx context.Context, transcript string) (string, error) {
	return f(ctx, transcript)
}

// ResponderOption configures an [LLMResponder].
type ResponderOption func(*LLMResponder)

// WithSystemPrompt sets the system prompt.
func WithSystemPrompt(p string) ResponderOption {
	return func(r *LLMResponder) { r.systemPrompt = p }
}

// WithHistoryTurns sets how many past user/assistant exchanges are kept.
// Zero disables history.
func WithHistoryTurns(n int) ResponderOption {
	return func(r *LLMResponder) {
		if n >= 0 {
			r.maxTurns = n
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) ResponderOption {
	return func(r *LLMResponder) { r.temperature = t }
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) ResponderOption {
	return func(r *LLMResponder) { r.maxTokens = n }
}

// LLMResponder answers with an LLM and keeps a short in-memory history of
// recent exchanges. The history is lost on restart.
type LLMResponder struct {
	provider    llm.Provider
	temperature float64
	maxTokens   int
	maxTurns    int

	mu           sync.Mutex
	systemPrompt string
	history      []llm.Message
}

// NewResponder creates an LLMResponder backed by p.
func NewResponder(p llm.Provider, opts ...ResponderOption) *LLMResponder {
	r := &LLMResponder{
		provider:     p,
		systemPrompt: DefaultSystemPrompt,
		maxTurns:     DefaultHistoryTurns,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// SetSystemPrompt replaces the system prompt for subsequent requests.
func (r *LLMResponder) SetSystemPrompt(p string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.systemPrompt = p
}

// History returns a copy of the kept messages, oldest first.
func (r *LLMResponder) History() []llm.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]llm.Message(nil), r.history...)
}

// Reset forgets the conversation history.
func (r *LLMResponder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = nil
}

// Respond sends transcript with the recent history and returns the reply with
// reasoning blocks removed. Failed exchanges are not added to the history.
func (r *LLMResponder) Respond(ctx context.Context, transcript string) (string, error) {
	r.mu.Lock()
	msgs := make([]llm.Message, 0, len(r.history)+1)
	msgs = append(msgs, r.history...)
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: transcript})
	req := llm.CompletionRequest{
		Messages:     msgs,
		SystemPrompt: r.systemPrompt,
		Temperature:  r.temperature,
		MaxTokens:    r.maxTokens,
	}
	r.mu.Unlock()

	resp, err := r.provider.Complete(ctx, req)
	if err != nil {
		return "", fmt.Errorf("orchestrator: generate: %w", err)
	}
	reply := StripThinking(resp.Content)
	if reply == "" {
		return "", ErrEmptyResponse
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.maxTurns > 0 {
		r.history = append(r.history,
			llm.Message{Role: llm.RoleUser, Content: transcript},
			llm.Message{Role: llm.RoleAssistant, Content: reply},
		)
		if n := 2 * r.maxTurns; len(r.history) > n {
			r.history = append([]llm.Message(nil), r.history[len(r.history)-n:]...)
		}
	}
	return reply, nil
}

var (
	thinkBlock = regexp.MustCompile(`(?is)<think>.*?</think>`)
	thinkOpen  = regexp.MustCompile(`(?is)<think>.*$`)
)

// StripThinking removes <think>...</think> blocks emitted by reasoning
// models. An unterminated block hides everything after its opening tag.
func StripThinking(s string) string {
	s = thinkBlock.ReplaceAllString(s, "")
	s = thinkOpen.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}
