// Package anyllm answers through github.com/mozilla-ai/any-llm-go, which
// fronts Ollama, OpenAI, Anthropic, Gemini, DeepSeek, Mistral, Groq and local
// llama.cpp servers with one API.
//
// The default backend is a local Ollama instance running a small reasoning
// model, so the assistant works offline:
//
//	p, err := anyllm.NewOllama(anyllm.DefaultModel)
//	p, err := anyllm.New("anthropic", "claude-3-5-haiku-latest", anyllmlib.WithAPIKey(key))
package anyllm

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/MrWong99/vocalis/pkg/provider/llm"
)

const (
	DefaultBackend = "ollama"
	DefaultModel   = "deepseek-r1:1.5b"
)

var _ llm.Provider = (*Provider)(nil)

type backendFunc func(...anyllmlib.Option) (anyllmlib.Provider, error)

// erase drops the concrete backend type, keeping a nil interface on error.
func erase[P anyllmlib.Provider](p P, err error) (anyllmlib.Provider, error) {
	if err != nil {
		return nil, err
	}
	return p, nil
}

var backends = map[string]backendFunc{
	"ollama":    func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return erase(ollama.New(o...)) },
	"openai":    func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return erase(anyllmoai.New(o...)) },
	"anthropic": func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return erase(anthropic.New(o...)) },
	"gemini":    func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return erase(gemini.New(o...)) },
	"deepseek":  func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return erase(deepseek.New(o...)) },
	"mistral":   func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return erase(mistral.New(o...)) },
	"groq":      func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return erase(groq.New(o...)) },
	"llamacpp":  func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return erase(llamacpp.New(o...)) },
	"llamafile": func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return erase(llamafile.New(o...)) },
}

// Backends lists the supported backend names in sorted order.
func Backends() []string {
	return slices.Sorted(maps.Keys(backends))
}

// Provider implements [llm.Provider] on top of one any-llm-go backend.
type Provider struct {
	backend anyllmlib.Provider
	name    string
	model   string
}

// New creates a Provider for backendName (see [Backends]; empty selects
// [DefaultBackend]). opts are passed to the backend, typically
// anyllmlib.WithAPIKey and anyllmlib.WithBaseURL. Without a key the backend
// reads its usual environment variable, such as OPENAI_API_KEY.
func New(backendName, model string, opts ...anyllmlib.Option) (*Provider, error) {
	if model == "" {
		return nil, errors.New("anyllm: model must not be empty")
	}
	name := strings.ToLower(backendName)
	if name == "" {
		name = DefaultBackend
	}
	create, ok := backends[name]
	if !ok {
		return nil, fmt.Errorf("anyllm: unsupported backend %q (supported: %s)", backendName, strings.Join(Backends(), ", "))
	}
	b, err := create(opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %q backend: %w", name, err)
	}
	return &Provider{backend: b, name: name, model: model}, nil
}

// NewOllama creates a Provider for a local Ollama server, by default
// http://localhost:11434.
func NewOllama(model string, opts ...anyllmlib.Option) (*Provider, error) {
	return New("ollama", model, opts...)
}

// Backend returns the lower-cased backend name.
func (p *Provider) Backend() string { return p.name }

// Model returns the configured model.
func (p *Provider) Model() string { return p.model }

// Complete implements [llm.Provider].
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (_ *llm.CompletionResponse, err error) {
	ctx, span := otel.Tracer("github.com/MrWong99/vocalis/pkg/provider/llm/anyllm").Start(ctx, "llm.complete")
	span.SetAttributes(attribute.String("llm.backend", p.name), attribute.String("llm.model", p.model))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "completion failed")
		}
		span.End()
	}()

	resp, err := p.backend.Completion(ctx, p.buildParams(req))
	if err != nil {
		return nil, fmt.Errorf("anyllm: %s completion: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("anyllm: %s returned no choices", p.name)
	}
	out := &llm.CompletionResponse{Content: resp.Choices[0].Message.ContentString()}
	if u := resp.Usage; u != nil {
		out.Usage = llm.Usage{
			PromptTokens:     u.PromptTokens,
			CompletionTokens: u.CompletionTokens,
			TotalTokens:      u.TotalTokens,
		}
		span.SetAttributes(attribute.Int("llm.tokens", u.TotalTokens))
	}
	return out, nil
}

func (p *Provider) buildParams(req llm.CompletionRequest) anyllmlib.CompletionParams {
	params := anyllmlib.CompletionParams{
		Model:    p.model,
		Messages: make([]anyllmlib.Message, 0, len(req.Messages)+1),
	}
	if req.SystemPrompt != "" {
		params.Messages = append(params.Messages, anyllmlib.Message{Role: anyllmlib.RoleSystem, Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		params.Messages = append(params.Messages, anyllmlib.Message{Role: m.Role, Content: m.Content})
	}
	if t := req.Temperature; t != 0 {
		params.Temperature = &t
	}
	if n := req.MaxTokens; n > 0 {
		params.MaxTokens = &n
	}
	return params
}
