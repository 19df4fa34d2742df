// Package echo provides an llm.Provider that repeats the user's last message.
// It needs no model and is useful for exercising the audio path end to end.
package echo

import (
	"context"

	"github.com/MrWong99/vocalis/pkg/provider/llm"
)

// DefaultPrefix is prepended to the echoed text.
const DefaultPrefix = "You said: "

var _ llm.Provider = (*Provider)(nil)

// Provider echoes the most recent user message.
type Provider struct {
	prefix string
}

// New returns a Provider that prepends prefix. An empty prefix selects
// DefaultPrefix.
func New(prefix string) *Provider {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Provider{prefix: prefix}
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &llm.CompletionResponse{Content: p.prefix + llm.LastUserMessage(req)}, nil
}
