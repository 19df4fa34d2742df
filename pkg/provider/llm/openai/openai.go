// Package openai answers through the OpenAI chat completions API or any
// server speaking the same protocol (vLLM, LM Studio, Ollama's /v1) when
// pointed at it with WithBaseURL.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/MrWong99/vocalis/pkg/provider/llm"
)

// ErrNoChoices is returned when the server answers without any choice.
var ErrNoChoices = errors.New("openai: response has no choices")

var _ llm.Provider = (*Provider)(nil)

// Provider implements [llm.Provider].
type Provider struct {
	client oai.Client
	model  string
}

// Option adds a client option to a [Provider].
type Option func(*[]option.RequestOption)

// WithBaseURL points the client at an OpenAI-compatible server.
func WithBaseURL(url string) Option {
	return func(o *[]option.RequestOption) { *o = append(*o, option.WithBaseURL(url)) }
}

// WithOrganization sends the organization header on every request.
func WithOrganization(org string) Option {
	return func(o *[]option.RequestOption) { *o = append(*o, option.WithOrganization(org)) }
}

// WithTimeout bounds each HTTP request.
func WithTimeout(d time.Duration) Option {
	return func(o *[]option.RequestOption) {
		*o = append(*o, option.WithHTTPClient(&http.Client{Timeout: d}))
	}
}

// WithMaxRetries sets how often transient failures are retried. Negative
// values keep the SDK default.
func WithMaxRetries(n int) Option {
	return func(o *[]option.RequestOption) {
		if n >= 0 {
			*o = append(*o, option.WithMaxRetries(n))
		}
	}
}

// New returns a Provider for model. apiKey may not be empty; local servers
// that ignore it accept any placeholder.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	switch {
	case apiKey == "":
		return nil, errors.New("openai: apiKey must not be empty")
	case model == "":
		return nil, errors.New("openai: model must not be empty")
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	for _, o := range opts {
		o(&reqOpts)
	}
	return &Provider{client: oai.NewClient(reqOpts...), model: model}, nil
}

// Complete implements [llm.Provider].
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (_ *llm.CompletionResponse, err error) {
	ctx, span := otel.Tracer("github.com/MrWong99/vocalis/pkg/provider/llm/openai").Start(ctx, "llm.complete")
	span.SetAttributes(attribute.String("llm.model", p.model), attribute.Int("llm.messages", len(req.Messages)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "completion failed")
		}
		span.End()
	}()

	params, err := p.buildParams(req)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrNoChoices
	}
	span.SetAttributes(attribute.Int64("llm.tokens", resp.Usage.TotalTokens))
	return &llm.CompletionResponse{
		Content: resp.Choices[0].Message.Content,
		Usage: llm.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}, nil
}

func (p *Provider) buildParams(req llm.CompletionRequest) (oai.ChatCompletionNewParams, error) {
	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(p.model),
		Messages: make([]oai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1),
	}
	if req.SystemPrompt != "" {
		params.Messages = append(params.Messages, oai.SystemMessage(req.SystemPrompt))
	}
	for _, m := range req.Messages {
		msg, err := convertMessage(m)
		if err != nil {
			return oai.ChatCompletionNewParams{}, err
		}
		params.Messages = append(params.Messages, msg)
	}
	if req.Temperature != 0 {
		params.Temperature = param.NewOpt(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
	}
	return params, nil
}

var roles = map[string]func(string) oai.ChatCompletionMessageParamUnion{
	llm.RoleSystem:    func(s string) oai.ChatCompletionMessageParamUnion { return oai.SystemMessage(s) },
	llm.RoleUser:      func(s string) oai.ChatCompletionMessageParamUnion { return oai.UserMessage(s) },
	llm.RoleAssistant: func(s string) oai.ChatCompletionMessageParamUnion { return oai.AssistantMessage(s) },
}

func convertMessage(m llm.Message) (oai.ChatCompletionMessageParamUnion, error) {
	build, ok := roles[m.Role]
	if !ok {
		return oai.ChatCompletionMessageParamUnion{}, fmt.Errorf("openai: unknown message role %q", m.Role)
	}
	return build(m.Content), nil
}
