package orchestrator_test

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/MrWong99/vocalis/internal/observe"
	"github.com/MrWong99/vocalis/internal/orchestrator"
	"github.com/MrWong99/vocalis/internal/playback"
	"github.com/MrWong99/vocalis/internal/recorder"
	"github.com/MrWong99/vocalis/pkg/audio"
	"github.com/MrWong99/vocalis/pkg/audio/bus"
	llmmock "github.com/MrWong99/vocalis/pkg/provider/llm/mock"
	sttmock "github.com/MrWong99/vocalis/pkg/provider/stt/mock"
	wakemock "github.com/MrWong99/vocalis/pkg/provider/wakeword/mock"
)

// ─── Fakes ───────────────────────────────────────────────────────────────────

type fakeRecorder struct {
	mu     sync.Mutex
	script []audio.Utterance
	calls  int
}

func (r *fakeRecorder) Record(ctx context.Context, _ recorder.FrameSource) (audio.Utterance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if len(r.script) > 0 {
		u := r.script[0]
		r.script = r.script[1:]
		return u, nil
	}
	return speech(), nil
}

type fakeSpeaker struct {
	mu     sync.Mutex
	script []playback.Outcome
	texts  []string
}

func (s *fakeSpeaker) Speak(_ context.Context, text string, _ playback.Capture) playback.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, text)
	if len(s.script) > 0 {
		o := s.script[0]
		s.script = s.script[1:]
		return o
	}
	return playback.Outcome{Result: playback.Completed, FramesWritten: 1}
}

func (s *fakeSpeaker) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts...)
}

func speech() audio.Utterance {
	return audio.Utterance{
		Frames:     []audio.Frame{{Samples: make([]int16, 480), Seq: 1}},
		SampleRate: 16000,
	}
}

var completed = playback.Outcome{Result: playback.Completed, FramesWritten: 10}

// ─── Harness ─────────────────────────────────────────────────────────────────

type harness struct {
	bus     *bus.Bus
	rec     *fakeRecorder
	speaker *fakeSpeaker
	stt     *sttmock.Provider
	wake    *wakemock.Detector
	o       *orchestrator.Orchestrator

	mu          sync.Mutex
	transitions []orchestrator.Transition
}

func newHarness(t *testing.T, gen orchestrator.Responder, opts ...orchestrator.Option) *harness {
	t.Helper()
	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	if gen == nil {
		gen = orchestrator.ResponderFunc(func(context.Context, string) (string, error) {
			return "answer", nil
		})
	}
	h := &harness{
		bus:     bus.New(16),
		rec:     &fakeRecorder{},
		speaker: &fakeSpeaker{},
		stt:     &sttmock.Provider{},
		wake:    &wakemock.Detector{Match: func(audio.Frame) bool { return true }},
	}
	h.o = orchestrator.New(h.bus, h.wake, h.rec, h.speaker, h.stt, gen,
		append([]orchestrator.Option{orchestrator.WithMetrics(m)}, opts...)...)
	h.o.OnTransition(func(tr orchestrator.Transition) {
		h.mu.Lock()
		h.transitions = append(h.transitions, tr)
		h.mu.Unlock()
	})
	return h
}

// run feeds wake frames onto the bus while the dialogue runs.
func (h *harness) run(t *testing.T) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stop := make(chan struct{})
	go func() {
		tick := time.NewTicker(2 * time.Millisecond)
		defer tick.Stop()
		var seq uint64
		for {
			select {
			case <-stop:
				return
			case <-tick.C:
				seq++
				h.bus.Push(audio.Frame{Samples: make([]int16, 480), Seq: seq})
			}
		}
	}()
	err := h.o.Run(ctx)
	close(stop)
	if ctx.Err() != nil {
		t.Fatal("dialogue did not finish in time")
	}
	return err
}

func (h *harness) path() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.transitions))
	for i, tr := range h.transitions {
		out[i] = tr.From.String() + ">" + tr.To.String()
	}
	return out
}

func assertTexts(t *testing.T, got, want []string) {
	t.Helper()
	if !slices.Equal(got, want) {
		t.Errorf("spoken = %q, want %q", got, want)
	}
}

// ─── Tests ───────────────────────────────────────────────────────────────────

func TestRun_AnswerThenExit(t *testing.T) {
	t.Parallel()

	llm := &llmmock.Provider{Responses: []string{"<think>the user wants the time</think>It is noon."}}
	h := newHarness(t, orchestrator.NewResponder(llm))
	h.stt.Results = []sttmock.Result{{Text: "what time is it"}, {Text: "Okay, bye!"}}

	if err := h.run(t); err != nil {
		t.Fatalf("Run = %v, want nil", err)
	}
	assertTexts(t, h.speaker.Texts(), []string{"Yes?", "It is noon.", "Yes?", "Goodbye"})
	if h.o.State() != orchestrator.Terminal {
		t.Errorf("State = %v, want terminal", h.o.State())
	}
	want := []string{
		"awaiting_wake>speaking", "speaking>recording", "recording>speaking", "speaking>awaiting_wake",
		"awaiting_wake>speaking", "speaking>recording", "recording>speaking", "speaking>terminal",
	}
	if got := h.path(); !slices.Equal(got, want) {
		t.Errorf("transitions = %v\nwant %v", got, want)
	}
	if llm.CallCount() != 1 {
		t.Errorf("llm calls = %d, want 1", llm.CallCount())
	}
}

func TestRun_EmptyUtteranceSkipsTranscription(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.rec.script = []audio.Utterance{{SampleRate: 16000}, speech()}
	h.stt.Results = []sttmock.Result{{Text: "bye"}}

	if err := h.run(t); err != nil {
		t.Fatalf("Run = %v", err)
	}
	if got := h.stt.CallCount(); got != 1 {
		t.Errorf("transcriptions = %d, want 1", got)
	}
	assertTexts(t, h.speaker.Texts(), []string{"Yes?", "Yes?", "Goodbye"})
}

func TestRun_BargeInReprompts(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.speaker.script = []playback.Outcome{
		completed,
		{Result: playback.Interrupted, BargeIn: true, FramesWritten: 20},
	}
	h.stt.Results = []sttmock.Result{{Text: "tell me a story"}, {Text: "quit"}}

	if err := h.run(t); err != nil {
		t.Fatalf("Run = %v", err)
	}
	assertTexts(t, h.speaker.Texts(), []string{
		"Yes?", "answer", "Could you please repeat your question?", "Goodbye",
	})
	if h.rec.calls != 2 {
		t.Errorf("recordings = %d, want 2", h.rec.calls)
	}
}

func TestRun_GenerationErrorUsesFallback(t *testing.T) {
	t.Parallel()

	gen := orchestrator.ResponderFunc(func(context.Context, string) (string, error) {
		return "", errors.New("model unavailable")
	})
	h := newHarness(t, gen)
	h.stt.Results = []sttmock.Result{{Text: "how are you"}, {Text: "exit"}}

	if err := h.run(t); err != nil {
		t.Fatalf("Run = %v", err)
	}
	assertTexts(t, h.speaker.Texts(), []string{
		"Yes?", "Sorry, I could not come up with an answer.", "Yes?", "Goodbye",
	})
}

func TestRun_EmptyTranscriptRetryPrompt(t *testing.T) {
	t.Parallel()

	d := orchestrator.DefaultDialogue()
	d.RetryPrompt = "Please try again"
	h := newHarness(t, nil, orchestrator.WithDialogue(d))
	h.stt.Results = []sttmock.Result{{Text: ""}, {Text: "exit now"}}

	if err := h.run(t); err != nil {
		t.Fatalf("Run = %v", err)
	}
	assertTexts(t, h.speaker.Texts(), []string{"Yes?", "Please try again", "Yes?", "Goodbye"})
}

func TestRun_EmptyTranscriptSilentByDefault(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.stt.Results = []sttmock.Result{{Text: ""}, {Text: "bye"}}

	if err := h.run(t); err != nil {
		t.Fatalf("Run = %v", err)
	}
	assertTexts(t, h.speaker.Texts(), []string{"Yes?", "Yes?", "Goodbye"})
}

func TestRun_TranscriptionErrorRelistens(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.stt.Results = []sttmock.Result{{Err: errors.New("server down")}, {Text: "bye"}}

	if err := h.run(t); err != nil {
		t.Fatalf("Run = %v", err)
	}
	assertTexts(t, h.speaker.Texts(), []string{"Yes?", "Yes?", "Goodbye"})
}

func TestRun_SynthesisFailureReturnsToWake(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.speaker.script = []playback.Outcome{
		{Result: playback.Failed, Err: playback.ErrSynthesis},
	}
	h.stt.Results = []sttmock.Result{{Text: "bye"}}

	if err := h.run(t); err != nil {
		t.Fatalf("Run = %v", err)
	}
	assertTexts(t, h.speaker.Texts(), []string{"Yes?", "Yes?", "Goodbye"})
	if h.stt.CallCount() != 1 {
		t.Errorf("transcriptions = %d, want 1", h.stt.CallCount())
	}
}

func TestRun_FarewellAlwaysEnds(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.speaker.script = []playback.Outcome{
		completed,
		{Result: playback.Interrupted, BargeIn: true},
	}
	h.stt.Results = []sttmock.Result{{Text: "stop"}}

	if err := h.run(t); err != nil {
		t.Fatalf("Run = %v", err)
	}
	assertTexts(t, h.speaker.Texts(), []string{"Yes?", "Goodbye"})
	if h.o.State() != orchestrator.Terminal {
		t.Errorf("State = %v, want terminal", h.o.State())
	}
}

func TestRun_OutputDeviceFailureIsFatal(t *testing.T) {
	t.Parallel()

	devErr := &audio.DeviceError{Op: "write", Device: "output", Err: errors.New("unplugged")}
	h := newHarness(t, nil)
	h.speaker.script = []playback.Outcome{{Result: playback.Failed, Err: devErr}}

	err := h.run(t)
	if !errors.Is(err, devErr) {
		t.Fatalf("Run = %v, want the device error", err)
	}
	if h.o.State() != orchestrator.Terminal {
		t.Errorf("State = %v, want terminal", h.o.State())
	}
	assertTexts(t, h.speaker.Texts(), []string{"Yes?"})
}

func TestRun_CaptureFailureSpeaksApology(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	ctx, cancel := context.WithCancelCause(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel(&audio.DeviceError{Op: "read", Device: "input", Err: errors.New("unplugged")})
	}()

	if err := h.o.Run(ctx); err != nil {
		t.Fatalf("Run = %v, want nil", err)
	}
	assertTexts(t, h.speaker.Texts(), []string{orchestrator.DefaultDialogue().DeviceApology})
	if h.o.State() != orchestrator.Terminal {
		t.Errorf("State = %v, want terminal", h.o.State())
	}
}

func TestRun_CancellationIsSilent(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	if err := h.o.Run(ctx); err != nil {
		t.Fatalf("Run = %v, want nil", err)
	}
	if texts := h.speaker.Texts(); len(texts) != 0 {
		t.Errorf("spoke %q on plain cancellation", texts)
	}
}

func TestUpdateDialogue_AppliesNewPhrases(t *testing.T) {
	t.Parallel()

	llm := &llmmock.Provider{Responses: []string{"ok"}}
	resp := orchestrator.NewResponder(llm)
	h := newHarness(t, resp)

	d := orchestrator.DefaultDialogue()
	d.Greeting = "Si?"
	d.Farewell = "Arrivederci"
	d.ExitPhrases = []string{"ciao"}
	d.SystemPrompt = "Answer in Italian."
	h.o.UpdateDialogue(d)
	h.stt.Results = []sttmock.Result{{Text: "ciao bella"}}

	if err := h.run(t); err != nil {
		t.Fatalf("Run = %v", err)
	}
	assertTexts(t, h.speaker.Texts(), []string{"Si?", "Arrivederci"})
	if got := h.o.Dialogue().ExitPhrases; !slices.Equal(got, []string{"ciao"}) {
		t.Errorf("ExitPhrases = %v", got)
	}

	if _, err := resp.Respond(context.Background(), "hello"); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if got := llm.Calls()[0].Req.SystemPrompt; got != "Answer in Italian." {
		t.Errorf("SystemPrompt = %q, want the updated prompt", got)
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()

	tests := map[orchestrator.State]string{
		orchestrator.AwaitingWake: "awaiting_wake",
		orchestrator.Recording:    "recording",
		orchestrator.Speaking:     "speaking",
		orchestrator.Terminal:     "terminal",
		orchestrator.State(7):     "State(7)",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("String() = %q, want %q", got, want)
		}
	}
}
