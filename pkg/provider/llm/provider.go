// Package llm defines the Provider interface for text-generation backends.
//
// An LLM provider wraps a remote or local model API (a local Ollama instance,
// OpenAI, Anthropic, ...) and exposes one blocking completion call so the
// dialogue can turn a transcript into a spoken answer without coupling to any
// specific SDK.
//
// Implementations must be safe for concurrent use and must return promptly
// when ctx is cancelled.
package llm

import "context"

// Conversation roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single message in a conversation history.
type Message struct {
	// Role is one of RoleSystem, RoleUser or RoleAssistant.
	Role string

	// Content is the text content of the message.
	Content string
}

// Usage holds token accounting information returned by the backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the model needs to produce a response.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation history. The last message is
	// typically from the user and drives the response.
	Messages []Message

	// SystemPrompt is an optional instruction injected before the history as a
	// system-role message.
	SystemPrompt string

	// Temperature controls output randomness in [0.0, 2.0]. Zero keeps the
	// provider default.
	Temperature float64

	// MaxTokens caps the number of completion tokens. Zero keeps the provider
	// default.
	MaxTokens int
}

// CompletionResponse is the model's full reply.
type CompletionResponse struct {
	// Content is the text of the assistant's reply.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// LastUserMessage returns the content of the most recent user message in req,
// or "" when there is none.
func LastUserMessage(req CompletionRequest) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == RoleUser {
			return req.Messages[i].Content
		}
	}
	return ""
}
