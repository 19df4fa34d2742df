package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/vocalis/pkg/audio"
	"github.com/MrWong99/vocalis/pkg/provider/llm"
	llmmock "github.com/MrWong99/vocalis/pkg/provider/llm/mock"
	"github.com/MrWong99/vocalis/pkg/provider/stt"
	sttmock "github.com/MrWong99/vocalis/pkg/provider/stt/mock"
	"github.com/MrWong99/vocalis/pkg/provider/tts"
	ttsmock "github.com/MrWong99/vocalis/pkg/provider/tts/mock"
)

var strict = FallbackConfig{CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour}}

func TestLLMFallback_Complete(t *testing.T) {
	t.Parallel()

	primary := &llmmock.Provider{CompleteErr: errBackend}
	secondary := &llmmock.Provider{Responses: []string{"from secondary"}}
	f := NewLLMFallback(primary, "primary", strict)
	f.Add("secondary", secondary)

	resp, err := f.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	if err != nil || resp.Content != "from secondary" {
		t.Fatalf("Complete = %+v, %v", resp, err)
	}
	if got := llm.LastUserMessage(secondary.Calls()[0].Req); got != "hi" {
		t.Errorf("secondary got %q", got)
	}
}

func TestLLMFallback_TimeoutDoesNotFailOver(t *testing.T) {
	t.Parallel()

	primary := &llmmock.Provider{Block: true}
	secondary := &llmmock.Provider{Responses: []string{"unused"}}
	f := NewLLMFallback(primary, "primary", strict)
	f.Add("secondary", secondary)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := f.Complete(ctx, llm.CompletionRequest{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
	if secondary.CallCount() != 0 {
		t.Error("secondary called after the deadline")
	}
	if f.Members()[0].State != StateClosed {
		t.Error("timeout opened the primary breaker")
	}
}

func TestSTTFallback_Transcribe(t *testing.T) {
	t.Parallel()

	utt := audio.Utterance{Frames: []audio.Frame{{Samples: make([]int16, 480)}}, SampleRate: 16000}

	t.Run("fails over on error", func(t *testing.T) {
		t.Parallel()
		primary := &sttmock.Provider{Results: []sttmock.Result{{Err: errBackend}}}
		secondary := &sttmock.Provider{Results: []sttmock.Result{{Text: "turn on the light"}}}
		f := NewSTTFallback(primary, "primary", strict)
		f.Add("secondary", secondary)

		got, err := f.Transcribe(context.Background(), utt)
		if err != nil || got != "turn on the light" {
			t.Fatalf("Transcribe = %q, %v", got, err)
		}
	})

	t.Run("empty transcript is final", func(t *testing.T) {
		t.Parallel()
		primary := &sttmock.Provider{Results: []sttmock.Result{{Text: ""}}}
		secondary := &sttmock.Provider{Results: []sttmock.Result{{Text: "unused"}}}
		f := NewSTTFallback(primary, "primary", strict)
		f.Add("secondary", secondary)

		if _, err := f.Transcribe(context.Background(), utt); !errors.Is(err, stt.ErrEmptyTranscript) {
			t.Fatalf("err = %v, want ErrEmptyTranscript", err)
		}
		if secondary.CallCount() != 0 {
			t.Error("secondary called for an empty transcript")
		}
		if f.Members()[0].State != StateClosed {
			t.Error("empty transcript opened the breaker")
		}
	})
}

func TestTTSFallback_SynthesizeStream(t *testing.T) {
	t.Parallel()

	primary := &ttsmock.Provider{OpenErr: errBackend}
	secondary := &ttsmock.Provider{Chunks: [][]byte{{1, 0}, {2, 0}}}
	f := NewTTSFallback(primary, "primary", strict)
	f.Add("secondary", secondary)

	voice := tts.VoiceProfile{ID: "narrator"}
	s, err := f.SynthesizeStream(context.Background(), "Hello there.", voice)
	if err != nil {
		t.Fatalf("SynthesizeStream: %v", err)
	}
	var n int
	for range s.Audio() {
		n++
	}
	if n != 2 || s.Err() != nil {
		t.Errorf("chunks = %d, stream err = %v", n, s.Err())
	}
	if calls := secondary.Calls(); len(calls) != 1 || calls[0].Voice != voice || calls[0].Text != "Hello there." {
		t.Errorf("secondary calls = %+v", calls)
	}

	// The primary breaker is open now and is skipped.
	if _, err := f.SynthesizeStream(context.Background(), "Again.", voice); err != nil {
		t.Fatalf("second SynthesizeStream: %v", err)
	}
	if primary.CallCount() != 1 {
		t.Errorf("primary called %d times, want 1", primary.CallCount())
	}
}
