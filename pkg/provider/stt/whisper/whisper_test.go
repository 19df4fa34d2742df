package whisper_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/vocalis/pkg/audio"
	"github.com/MrWong99/vocalis/pkg/provider/stt"
	"github.com/MrWong99/vocalis/pkg/provider/stt/whisper"
)

// request captures the parts of an /inference request the tests assert on.
type request struct {
	fields map[string]string
	wav    []byte
}

// newServer starts a test server that answers POST /inference with text and
// records every request.
func newServer(t *testing.T, status int, text string) (*httptest.Server, func() []request) {
	t.Helper()
	var (
		mu   sync.Mutex
		reqs []request
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/inference" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		rec := request{fields: map[string]string{}}
		for k, v := range r.MultipartForm.Value {
			rec.fields[k] = v[0]
		}
		if f, _, err := r.FormFile("file"); err == nil {
			rec.wav, _ = io.ReadAll(f)
			f.Close()
		}
		mu.Lock()
		reqs = append(reqs, rec)
		mu.Unlock()

		if status != http.StatusOK {
			http.Error(w, "model exploded", status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": text})
	}))
	t.Cleanup(srv.Close)
	return srv, func() []request {
		mu.Lock()
		defer mu.Unlock()
		return append([]request(nil), reqs...)
	}
}

func utterance(frames int) audio.Utterance {
	u := audio.Utterance{SampleRate: 16000}
	for i := range frames {
		s := make([]int16, 480)
		for j := range s {
			s[j] = int16(1000 * (j%2*2 - 1))
		}
		u.Frames = append(u.Frames, audio.Frame{Samples: s, Seq: uint64(i)})
	}
	return u
}

func TestNew_EmptyServerURL_ReturnsError(t *testing.T) {
	t.Parallel()
	if _, err := whisper.New(""); err == nil {
		t.Fatal("expected error for empty serverURL, got nil")
	}
}

func TestTranscribe_ReturnsCleanedText(t *testing.T) {
	t.Parallel()

	srv, reqs := newServer(t, http.StatusOK, " What is the weather like?\n")
	p, err := whisper.New(srv.URL+"/", whisper.WithLanguage("de"), whisper.WithModel("small"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got, err := p.Transcribe(context.Background(), utterance(3))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got != "What is the weather like?" {
		t.Errorf("text = %q", got)
	}

	rs := reqs()
	if len(rs) != 1 {
		t.Fatalf("requests = %d, want 1", len(rs))
	}
	if rs[0].fields["language"] != "de" || rs[0].fields["model"] != "small" {
		t.Errorf("fields = %v", rs[0].fields)
	}
	if want := 44 + 3*480*2; len(rs[0].wav) != want {
		t.Errorf("wav size = %d, want %d", len(rs[0].wav), want)
	}
	if !strings.HasPrefix(string(rs[0].wav), "RIFF") {
		t.Error("upload is not a WAV file")
	}
}

func TestTranscribe_BlankAudio_ReturnsEmptyTranscript(t *testing.T) {
	t.Parallel()

	srv, _ := newServer(t, http.StatusOK, "[BLANK_AUDIO]")
	p, _ := whisper.New(srv.URL)

	_, err := p.Transcribe(context.Background(), utterance(2))
	if !errors.Is(err, stt.ErrEmptyTranscript) {
		t.Fatalf("err = %v, want ErrEmptyTranscript", err)
	}
}

func TestTranscribe_EmptyUtterance_SkipsRequest(t *testing.T) {
	t.Parallel()

	srv, reqs := newServer(t, http.StatusOK, "never")
	p, _ := whisper.New(srv.URL)

	_, err := p.Transcribe(context.Background(), audio.Utterance{SampleRate: 16000})
	if !errors.Is(err, stt.ErrEmptyTranscript) {
		t.Fatalf("err = %v, want ErrEmptyTranscript", err)
	}
	if n := len(reqs()); n != 0 {
		t.Errorf("requests = %d, want 0", n)
	}
}

func TestTranscribe_ServerError(t *testing.T) {
	t.Parallel()

	srv, _ := newServer(t, http.StatusInternalServerError, "")
	p, _ := whisper.New(srv.URL)

	_, err := p.Transcribe(context.Background(), utterance(1))
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, stt.ErrEmptyTranscript) {
		t.Fatal("server error must not be reported as empty transcript")
	}
	if !strings.Contains(err.Error(), "500") {
		t.Errorf("error %q does not mention status", err)
	}
}

func TestTranscribe_ContextCancelled(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(block) })

	p, _ := whisper.New(srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := p.Transcribe(ctx, utterance(1))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
}
