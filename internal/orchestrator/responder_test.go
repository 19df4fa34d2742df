package orchestrator_test

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/vocalis/internal/orchestrator"
	"github.com/MrWong99/vocalis/pkg/provider/llm"
	llmmock "github.com/MrWong99/vocalis/pkg/provider/llm/mock"
)

func TestStripThinking(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "It is sunny.", want: "It is sunny."},
		{name: "leading block", in: "<think>weather?</think>\nIt is sunny.", want: "It is sunny."},
		{name: "multiline block", in: "<think>\nfirst\nsecond\n</think>Yes.", want: "Yes."},
		{name: "upper case tags", in: "<THINK>x</THINK> Done", want: "Done"},
		{name: "two blocks", in: "<think>a</think>One <think>b</think>two", want: "One two"},
		{name: "unterminated", in: "Sure. <think>still reasoning", want: "Sure."},
		{name: "only thinking", in: "<think>nothing to say</think>", want: ""},
		{name: "surrounding space", in: "  hi  ", want: "hi"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := orchestrator.StripThinking(tt.in); got != tt.want {
				t.Errorf("StripThinking(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestResponder_SendsSystemPromptAndHistory(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{Responses: []string{"first answer", "second answer"}}
	r := orchestrator.NewResponder(p, orchestrator.WithSystemPrompt("be brief"), orchestrator.WithTemperature(0.2), orchestrator.WithMaxTokens(64))
	ctx := context.Background()

	if got, err := r.Respond(ctx, "question one"); err != nil || got != "first answer" {
		t.Fatalf("Respond = %q, %v", got, err)
	}
	if _, err := r.Respond(ctx, "question two"); err != nil {
		t.Fatalf("Respond: %v", err)
	}

	calls := p.Calls()
	if len(calls) != 2 {
		t.Fatalf("calls = %d, want 2", len(calls))
	}
	req := calls[1].Req
	if req.SystemPrompt != "be brief" || req.Temperature != 0.2 || req.MaxTokens != 64 {
		t.Errorf("request settings = %q/%v/%d", req.SystemPrompt, req.Temperature, req.MaxTokens)
	}
	want := []llm.Message{
		{Role: llm.RoleUser, Content: "question one"},
		{Role: llm.RoleAssistant, Content: "first answer"},
		{Role: llm.RoleUser, Content: "question two"},
	}
	if len(req.Messages) != len(want) {
		t.Fatalf("messages = %d, want %d", len(req.Messages), len(want))
	}
	for i, m := range want {
		if req.Messages[i].Role != m.Role || req.Messages[i].Content != m.Content {
			t.Errorf("message %d = %+v, want %+v", i, req.Messages[i], m)
		}
	}
}

func TestResponder_HistoryIsBounded(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{Responses: []string{"a1", "a2", "a3"}}
	r := orchestrator.NewResponder(p, orchestrator.WithHistoryTurns(2))
	for _, q := range []string{"q1", "q2", "q3"} {
		if _, err := r.Respond(context.Background(), q); err != nil {
			t.Fatalf("Respond(%q): %v", q, err)
		}
	}

	h := r.History()
	if len(h) != 4 {
		t.Fatalf("history = %d messages, want 4", len(h))
	}
	if h[0].Content != "q2" || h[3].Content != "a3" {
		t.Errorf("history = %+v, want q2..a3", h)
	}

	r.Reset()
	if len(r.History()) != 0 {
		t.Error("Reset did not clear history")
	}
}

func TestResponder_NoHistory(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{Responses: []string{"a1", "a2"}}
	r := orchestrator.NewResponder(p, orchestrator.WithHistoryTurns(0))
	for _, q := range []string{"q1", "q2"} {
		if _, err := r.Respond(context.Background(), q); err != nil {
			t.Fatalf("Respond: %v", err)
		}
	}
	if got := len(p.Calls()[1].Req.Messages); got != 1 {
		t.Errorf("messages = %d, want 1", got)
	}
}

func TestResponder_Failures(t *testing.T) {
	t.Parallel()

	t.Run("provider error", func(t *testing.T) {
		t.Parallel()
		boom := errors.New("connection refused")
		r := orchestrator.NewResponder(&llmmock.Provider{CompleteErr: boom})
		if _, err := r.Respond(context.Background(), "hi"); !errors.Is(err, boom) {
			t.Errorf("err = %v, want %v", err, boom)
		}
		if len(r.History()) != 0 {
			t.Error("failed exchange was added to history")
		}
	})

	t.Run("only reasoning", func(t *testing.T) {
		t.Parallel()
		r := orchestrator.NewResponder(&llmmock.Provider{Responses: []string{"<think>hmm</think>"}})
		if _, err := r.Respond(context.Background(), "hi"); !errors.Is(err, orchestrator.ErrEmptyResponse) {
			t.Errorf("err = %v, want ErrEmptyResponse", err)
		}
		if len(r.History()) != 0 {
			t.Error("empty exchange was added to history")
		}
	})
}

func TestResponderFunc(t *testing.T) {
	t.Parallel()

	var r orchestrator.Responder = orchestrator.ResponderFunc(func(_ context.Context, s string) (string, error) {
		return "You said: " + s, nil
	})
	if got, _ := r.Respond(context.Background(), "hello"); got != "You said: hello" {
		t.Errorf("Respond = %q", got)
	}
}
