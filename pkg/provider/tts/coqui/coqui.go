// Package coqui provides a TTS provider backed by a locally-running Coqui TTS
// server. It implements the tts.Provider interface.
//
// Two API modes are supported:
//
//   - APIModeStandard (default): targets the standard Coqui TTS server
//     (ghcr.io/coqui-ai/tts-cpu). Synthesis is performed via GET /api/tts with
//     URL query parameters.
//
//   - APIModeXTTS: targets the Coqui XTTS v2 API server. Synthesis is performed
//     via POST /tts_to_audio/ with a JSON body.
//
// Both servers work in batch mode (one HTTP call per sentence), so
// SynthesizeStream splits the text into sentences and keeps a small number of
// requests in flight while emitting audio strictly in sentence order. WAV
// responses are decoded, down-mixed to mono and resampled to the output rate.
//
// Typical usage:
//
//	p, err := coqui.New("http://localhost:5002", coqui.WithLanguage("en"))
//	stream, err := p.SynthesizeStream(ctx, "Hello there. How can I help?", voice)
package coqui

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/vocalis/pkg/audio"
	"github.com/MrWong99/vocalis/pkg/provider/tts"
)

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

const (
	defaultLanguage = "en"
	defaultTimeout  = 30 * time.Second
	ttsEndpoint     = "/tts_to_audio/"
	apiTTSEndpoint  = "/api/tts"

	// sentenceLookahead is how many synthesis requests may be in flight.
	sentenceLookahead = 3

	audioChanBuf = 64

	// pcmChunkSize is the size of each PCM chunk emitted on the stream.
	pcmChunkSize = 4096
)

// APIMode selects which Coqui server API the provider will target.
type APIMode string

const (
	// APIModeXTTS targets the Coqui XTTS v2 API server (/tts_to_audio/).
	APIModeXTTS APIMode = "xtts"

	// APIModeStandard targets the standard Coqui TTS server (/api/tts).
	APIModeStandard APIMode = "standard"
)

// Option is a functional option for configuring a Coqui Provider.
type Option func(*Provider)

// WithLanguage sets the language code sent to the server (e.g., "en", "de").
// Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithTimeout sets the per-request HTTP timeout. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// WithAPIMode sets the server API mode. Defaults to APIModeStandard.
func WithAPIMode(mode APIMode) Option {
	return func(p *Provider) {
		p.apiMode = mode
	}
}

// WithOutputSampleRate sets the rate all synthesised audio is resampled to.
// Defaults to audio.DefaultSampleRate.
func WithOutputSampleRate(rate int) Option {
	return func(p *Provider) {
		p.outputRate = rate
	}
}

// Provider implements tts.Provider backed by a Coqui TTS server.
// It is safe for concurrent use.
type Provider struct {
	serverURL  string
	language   string
	httpClient *http.Client
	apiMode    APIMode
	outputRate int
}

// New creates a Provider that targets the server at serverURL
// (e.g., "http://localhost:5002"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("coqui: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		apiMode:    APIModeStandard,
		outputRate: audio.DefaultSampleRate,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	switch p.apiMode {
	case APIModeStandard, APIModeXTTS:
	default:
		return nil, fmt.Errorf("coqui: unknown API mode %q", p.apiMode)
	}
	if p.outputRate <= 0 {
		return nil, fmt.Errorf("coqui: output sample rate must be positive, got %d", p.outputRate)
	}
	return p, nil
}

// ttsRequest is the JSON body sent to POST /tts_to_audio/ (XTTS mode).
type ttsRequest struct {
	Text       string  `json:"text"`
	SpeakerWav string  `json:"speaker_wav"`
	Language   string  `json:"language"`
	Speed      float64 `json:"speed,omitempty"`
}

// audioResult carries a synthesised PCM slice or an error from a worker.
type audioResult struct {
	pcm []byte
	err error
}

// SynthesizeStream implements tts.Provider.
func (p *Provider) SynthesizeStream(ctx context.Context, text string, voice tts.VoiceProfile) (*tts.Stream, error) {
	if voice.ID == "" && p.apiMode == APIModeXTTS {
		return nil, errors.New("coqui: voice.ID must not be empty (required for XTTS mode)")
	}
	sentences := tts.SplitSentences(text)
	if len(sentences) == 0 {
		return nil, errors.New("coqui: nothing to synthesise")
	}

	stream := tts.NewStream(p.outputRate, audioChanBuf)

	go func() {
		// futures hands ordered result channels from the dispatcher to the
		// collector; its buffer bounds the lookahead.
		futures := make(chan chan audioResult, sentenceLookahead)
		go func() {
			defer close(futures)
			for _, s := range sentences {
				out := make(chan audioResult, 1)
				select {
				case futures <- out:
				case <-ctx.Done():
					return
				}
				go func() {
					pcm, err := p.synthesize(ctx, s, voice)
					out <- audioResult{pcm: pcm, err: err}
				}()
			}
		}()

		for fut := range futures {
			var res audioResult
			select {
			case res = <-fut:
			case <-ctx.Done():
				stream.Close(ctx.Err())
				drainFutures(futures)
				return
			}
			if res.err != nil {
				stream.Close(res.err)
				drainFutures(futures)
				return
			}
			for pcm := res.pcm; len(pcm) > 0; {
				end := min(pcmChunkSize, len(pcm))
				if !stream.Send(ctx, pcm[:end]) {
					stream.Close(ctx.Err())
					drainFutures(futures)
					return
				}
				pcm = pcm[end:]
			}
		}
		stream.Close(ctx.Err())
	}()

	return stream, nil
}

// drainFutures lets the dispatcher exit after the collector stopped early.
// Outstanding workers write into buffered channels and never block.
func drainFutures(futures <-chan chan audioResult) {
	go func() {
		for range futures {
		}
	}()
}

func (p *Provider) synthesize(ctx context.Context, sentence string, voice tts.VoiceProfile) ([]byte, error) {
	var (
		req *http.Request
		err error
	)
	if p.apiMode == APIModeXTTS {
		req, err = p.xttsRequest(ctx, sentence, voice)
	} else {
		req, err = p.standardRequest(ctx, sentence, voice)
	}
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "audio/wav")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coqui: %s %s returned status %d", req.Method, req.URL.Path, resp.StatusCode)
	}

	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("coqui: read WAV response: %w", err)
	}
	info, err := parseWAV(wav)
	if err != nil {
		return nil, err
	}
	if info.BitsPerSample != 16 {
		return nil, fmt.Errorf("coqui: unsupported WAV bit depth %d", info.BitsPerSample)
	}

	pcm := downmix(wav[info.DataOffset:info.DataEnd], info.Channels)
	return audio.ResampleMono16(pcm, info.SampleRate, p.outputRate), nil
}

func (p *Provider) xttsRequest(ctx context.Context, sentence string, voice tts.VoiceProfile) (*http.Request, error) {
	data, err := json.Marshal(ttsRequest{
		Text:       sentence,
		SpeakerWav: voice.ID,
		Language:   p.language,
		Speed:      voice.Speed,
	})
	if err != nil {
		return nil, fmt.Errorf("coqui: marshal tts request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+ttsEndpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("coqui: create tts request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (p *Provider) standardRequest(ctx context.Context, sentence string, voice tts.VoiceProfile) (*http.Request, error) {
	params := url.Values{}
	params.Set("text", sentence)
	if voice.ID != "" {
		params.Set("speaker_id", voice.ID)
	}
	if p.language != "" {
		params.Set("language_id", p.language)
	}
	if voice.Speed > 0 {
		params.Set("speed", strconv.FormatFloat(voice.Speed, 'f', -1, 64))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+apiTTSEndpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("coqui: create tts request: %w", err)
	}
	return req, nil
}

// downmix averages interleaved 16-bit channels into mono.
func downmix(pcm []byte, channels int) []byte {
	if channels <= 1 {
		return pcm
	}
	frames := len(pcm) / (2 * channels)
	out := make([]byte, frames*2)
	for i := range frames {
		var sum int
		for c := range channels {
			off := (i*channels + c) * 2
			sum += int(int16(binary.LittleEndian.Uint16(pcm[off:])))
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(sum/channels)))
	}
	return out
}

// wavInfo holds the format metadata extracted from a RIFF/WAVE header.
type wavInfo struct {
	DataOffset    int // byte offset of the first PCM sample
	DataEnd       int // byte offset after the last PCM sample
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// parseWAV walks the RIFF chunks in wav and returns the data range and the
// format from the "fmt " sub-chunk.
func parseWAV(wav []byte) (wavInfo, error) {
	if len(wav) < 12 {
		return wavInfo{}, errors.New("coqui: WAV response too short to be a valid RIFF file")
	}
	if string(wav[0:4]) != "RIFF" {
		return wavInfo{}, errors.New("coqui: WAV response missing RIFF header")
	}
	if string(wav[8:12]) != "WAVE" {
		return wavInfo{}, errors.New("coqui: WAV response missing WAVE identifier")
	}

	info := wavInfo{SampleRate: 22050, Channels: 1, BitsPerSample: 16}
	offset := 12
	for offset+8 <= len(wav) {
		chunkID := string(wav[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(wav[offset+4 : offset+8]))

		switch chunkID {
		case "fmt ":
			if chunkSize >= 16 && offset+8+16 <= len(wav) {
				f := wav[offset+8:]
				info.Channels = int(binary.LittleEndian.Uint16(f[2:4]))
				info.SampleRate = int(binary.LittleEndian.Uint32(f[4:8]))
				info.BitsPerSample = int(binary.LittleEndian.Uint16(f[14:16]))
			}
		case "data":
			info.DataOffset = offset + 8
			// Streaming servers write 0 or 0xFFFFFFFF when the size is unknown.
			info.DataEnd = min(info.DataOffset+chunkSize, len(wav))
			if chunkSize == 0 {
				info.DataEnd = len(wav)
			}
			return info, nil
		}

		offset += 8 + chunkSize
		if chunkSize%2 != 0 {
			offset++
		}
	}
	return wavInfo{}, errors.New("coqui: WAV response missing data chunk")
}
