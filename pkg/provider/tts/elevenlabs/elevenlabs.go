// Package elevenlabs provides an ElevenLabs-backed TTS provider using the
// ElevenLabs streaming WebSocket API. It implements the tts.Provider interface.
package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/coder/websocket"

	"github.com/MrWong99/vocalis/pkg/provider/tts"
)

const (
	defaultEndpoint  = "wss://api.elevenlabs.io"
	defaultModel     = "eleven_flash_v2_5"
	defaultOutputFmt = "pcm_16000"
	audioChanBuf     = 64
)

var _ tts.Provider = (*Provider)(nil)

// Option is a functional option for configuring the ElevenLabs Provider.
type Option func(*Provider)

// WithModel sets the ElevenLabs model ID (e.g., "eleven_flash_v2_5").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithOutputFormat sets the raw PCM output format ("pcm_16000", "pcm_24000",
// ...). Only pcm_* formats are accepted.
func WithOutputFormat(format string) Option {
	return func(p *Provider) {
		p.outputFormat = format
	}
}

// WithEndpoint overrides the WebSocket base URL.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = strings.TrimRight(endpoint, "/")
	}
}

// Provider implements tts.Provider backed by the ElevenLabs streaming API.
type Provider struct {
	apiKey       string
	model        string
	outputFormat string
	endpoint     string
	sampleRate   int
}

// New creates a new ElevenLabs Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:       apiKey,
		model:        defaultModel,
		outputFormat: defaultOutputFmt,
		endpoint:     defaultEndpoint,
	}
	for _, o := range opts {
		o(p)
	}
	rate, err := pcmRate(p.outputFormat)
	if err != nil {
		return nil, err
	}
	p.sampleRate = rate
	return p, nil
}

// pcmRate extracts the sample rate from a "pcm_<rate>" format name.
func pcmRate(format string) (int, error) {
	rest, ok := strings.CutPrefix(format, "pcm_")
	if !ok {
		return 0, fmt.Errorf("elevenlabs: output format %q is not raw PCM", format)
	}
	rate, err := strconv.Atoi(rest)
	if err != nil || rate <= 0 {
		return 0, fmt.Errorf("elevenlabs: invalid output format %q", format)
	}
	return rate, nil
}

// textMessage is the JSON payload sent for each text fragment.
type textMessage struct {
	Text                 string         `json:"text"`
	VoiceSettings        *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey             string         `json:"xi_api_key,omitempty"`
	TryTriggerGeneration bool           `json:"try_trigger_generation,omitempty"`
}

// voiceSettings mirrors the ElevenLabs voice_settings object.
type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Speed           float64 `json:"speed,omitempty"`
}

// audioResponse is a message received from ElevenLabs over the WebSocket.
type audioResponse struct {
	Audio   string `json:"audio"` // base64-encoded PCM
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// streamURL builds the WebSocket URL for a voice.
func (p *Provider) streamURL(voiceID string) string {
	q := url.Values{}
	q.Set("model_id", p.model)
	q.Set("output_format", p.outputFormat)
	return fmt.Sprintf("%s/v1/text-to-speech/%s/stream-input?%s", p.endpoint, url.PathEscape(voiceID), q.Encode())
}

// SynthesizeStream opens a WebSocket to ElevenLabs, sends text and returns a
// Stream of raw PCM audio.
func (p *Provider) SynthesizeStream(ctx context.Context, text string, voice tts.VoiceProfile) (*tts.Stream, error) {
	if voice.ID == "" {
		return nil, errors.New("elevenlabs: voice.ID must not be empty")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("elevenlabs: nothing to synthesise")
	}

	conn, _, err := websocket.Dial(ctx, p.streamURL(voice.ID), nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: dial: %w", err)
	}

	// ElevenLabs requires a single space as the first text value; it carries
	// authentication and voice settings.
	msgs := []textMessage{
		{
			Text:     " ",
			XiAPIKey: p.apiKey,
			VoiceSettings: &voiceSettings{
				Stability:       0.5,
				SimilarityBoost: 0.75,
				Speed:           voice.Speed,
			},
		},
		{Text: text + " ", TryTriggerGeneration: true},
		{Text: ""}, // flush
	}
	for _, m := range msgs {
		data, err := json.Marshal(m)
		if err != nil {
			conn.Close(websocket.StatusInternalError, "marshal")
			return nil, fmt.Errorf("elevenlabs: marshal message: %w", err)
		}
		if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
			conn.Close(websocket.StatusInternalError, "write failed")
			return nil, fmt.Errorf("elevenlabs: send text: %w", err)
		}
	}

	stream := tts.NewStream(p.sampleRate, audioChanBuf)
	go func() {
		stream.Close(p.receive(ctx, conn, stream))
	}()
	return stream, nil
}

// receive forwards audio until the server signals the final message.
func (p *Provider) receive(ctx context.Context, conn *websocket.Conn, stream *tts.Stream) error {
	defer conn.Close(websocket.StatusNormalClosure, "done")
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}
			return fmt.Errorf("elevenlabs: read: %w", err)
		}
		var resp audioResponse
		if err := json.Unmarshal(msg, &resp); err != nil {
			return fmt.Errorf("elevenlabs: decode message: %w", err)
		}
		if resp.Error != "" {
			return fmt.Errorf("elevenlabs: server error: %s %s", resp.Error, resp.Message)
		}
		if resp.Audio != "" {
			pcm, err := base64.StdEncoding.DecodeString(resp.Audio)
			if err != nil {
				return fmt.Errorf("elevenlabs: decode audio: %w", err)
			}
			if !stream.Send(ctx, pcm) {
				return ctx.Err()
			}
		}
		if resp.IsFinal {
			return nil
		}
	}
}
