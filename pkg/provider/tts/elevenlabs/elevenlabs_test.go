package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/vocalis/pkg/provider/tts"
)

// newWSServer runs handler for every WebSocket connection and returns the ws://
// endpoint plus a channel of received request paths.
func newWSServer(t *testing.T, handler func(ctx context.Context, c *websocket.Conn, msgs []textMessage)) (string, <-chan string) {
	t.Helper()
	paths := make(chan string, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths <- r.URL.RequestURI()
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.CloseNow()
		ctx := r.Context()
		var msgs []textMessage
		for len(msgs) < 3 {
			_, data, err := c.Read(ctx)
			if err != nil {
				return
			}
			var m textMessage
			if err := json.Unmarshal(data, &m); err != nil {
				return
			}
			msgs = append(msgs, m)
		}
		handler(ctx, c, msgs)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http"), paths
}

func writeJSON(ctx context.Context, c *websocket.Conn, v any) {
	data, _ := json.Marshal(v)
	_ = c.Write(ctx, websocket.MessageText, data)
}

func collect(t *testing.T, s *tts.Stream) []byte {
	t.Helper()
	var out []byte
	timeout := time.After(5 * time.Second)
	for {
		select {
		case c, ok := <-s.Audio():
			if !ok {
				return out
			}
			out = append(out, c...)
		case <-timeout:
			t.Fatal("stream did not close")
		}
	}
}

func TestSynthesizeStream_ReceivesAudio(t *testing.T) {
	t.Parallel()

	got := make(chan []textMessage, 1)
	endpoint, paths := newWSServer(t, func(ctx context.Context, c *websocket.Conn, msgs []textMessage) {
		got <- msgs
		writeJSON(ctx, c, audioResponse{Audio: base64.StdEncoding.EncodeToString([]byte{1, 0, 2, 0})})
		writeJSON(ctx, c, audioResponse{Audio: base64.StdEncoding.EncodeToString([]byte{3, 0})})
		writeJSON(ctx, c, audioResponse{IsFinal: true})
	})

	p, err := New("key-1", WithEndpoint(endpoint))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s, err := p.SynthesizeStream(context.Background(), "Hello there.", tts.VoiceProfile{ID: "v 1", Speed: 1.1})
	if err != nil {
		t.Fatalf("SynthesizeStream: %v", err)
	}
	pcm := collect(t, s)
	if err := s.Err(); err != nil {
		t.Fatalf("stream error: %v", err)
	}
	if string(pcm) != string([]byte{1, 0, 2, 0, 3, 0}) {
		t.Errorf("pcm = %v", pcm)
	}
	if s.SampleRate() != 16000 {
		t.Errorf("SampleRate = %d, want 16000", s.SampleRate())
	}

	path := <-paths
	if !strings.HasPrefix(path, "/v1/text-to-speech/v%201/stream-input?") ||
		!strings.Contains(path, "output_format=pcm_16000") ||
		!strings.Contains(path, "model_id=eleven_flash_v2_5") {
		t.Errorf("path = %q", path)
	}

	msgs := <-got
	if msgs[0].Text != " " || msgs[0].XiAPIKey != "key-1" || msgs[0].VoiceSettings == nil || msgs[0].VoiceSettings.Speed != 1.1 {
		t.Errorf("BOI = %+v", msgs[0])
	}
	if msgs[1].Text != "Hello there. " || !msgs[1].TryTriggerGeneration {
		t.Errorf("text message = %+v", msgs[1])
	}
	if msgs[2].Text != "" {
		t.Errorf("flush = %+v", msgs[2])
	}
}

func TestSynthesizeStream_ServerErrorSurfaces(t *testing.T) {
	t.Parallel()

	endpoint, _ := newWSServer(t, func(ctx context.Context, c *websocket.Conn, _ []textMessage) {
		writeJSON(ctx, c, audioResponse{Error: "quota_exceeded", Message: "out of credits"})
	})

	p, _ := New("key", WithEndpoint(endpoint))
	s, err := p.SynthesizeStream(context.Background(), "Hi", tts.VoiceProfile{ID: "v"})
	if err != nil {
		t.Fatalf("SynthesizeStream: %v", err)
	}
	collect(t, s)
	if s.Err() == nil || !strings.Contains(s.Err().Error(), "quota_exceeded") {
		t.Errorf("Err = %v, want quota error", s.Err())
	}
}

func TestSynthesizeStream_Cancel(t *testing.T) {
	t.Parallel()

	endpoint, _ := newWSServer(t, func(ctx context.Context, c *websocket.Conn, _ []textMessage) {
		_, _, _ = c.Read(ctx)
	})

	p, _ := New("key", WithEndpoint(endpoint))
	ctx, cancel := context.WithCancel(context.Background())
	s, err := p.SynthesizeStream(ctx, "Hi", tts.VoiceProfile{ID: "v"})
	if err != nil {
		t.Fatalf("SynthesizeStream: %v", err)
	}
	cancel()
	collect(t, s)
	if !errors.Is(s.Err(), context.Canceled) {
		t.Errorf("Err = %v, want context.Canceled", s.Err())
	}
}

func TestSynthesizeStream_Validation(t *testing.T) {
	t.Parallel()

	p, _ := New("key")
	if _, err := p.SynthesizeStream(context.Background(), "Hi", tts.VoiceProfile{}); err == nil {
		t.Error("expected error for empty voice ID")
	}
	if _, err := p.SynthesizeStream(context.Background(), " ", tts.VoiceProfile{ID: "v"}); err == nil {
		t.Error("expected error for empty text")
	}
}

func TestNew_OutputFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		format  string
		rate    int
		wantErr bool
	}{
		{"pcm_16000", 16000, false},
		{"pcm_24000", 24000, false},
		{"mp3_44100_128", 0, true},
		{"pcm_", 0, true},
	}
	for _, tt := range tests {
		p, err := New("key", WithOutputFormat(tt.format))
		if tt.wantErr {
			if err == nil {
				t.Errorf("%s: expected error", tt.format)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: unexpected error: %v", tt.format, err)
			continue
		}
		if p.sampleRate != tt.rate {
			t.Errorf("%s: rate = %d, want %d", tt.format, p.sampleRate, tt.rate)
		}
	}
	if _, err := New(""); err == nil {
		t.Error("expected error for empty API key")
	}
}
