package echo_test

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/vocalis/pkg/provider/llm"
	"github.com/MrWong99/vocalis/pkg/provider/llm/echo"
)

func TestComplete_EchoesLastUserMessage(t *testing.T) {
	t.Parallel()

	p := echo.New("")
	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: "first"},
			{Role: llm.RoleAssistant, Content: "You said: first"},
			{Role: llm.RoleUser, Content: "second"},
		},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "You said: second" {
		t.Errorf("content = %q", resp.Content)
	}
}

func TestComplete_CustomPrefix(t *testing.T) {
	t.Parallel()

	resp, err := echo.New("> ").Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "> hi" {
		t.Errorf("content = %q", resp.Content)
	}
}

func TestComplete_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := echo.New("").Complete(ctx, llm.CompletionRequest{}); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
