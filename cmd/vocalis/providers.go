package main

import (
	"log/slog"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/vocalis/internal/config"
	"github.com/MrWong99/vocalis/pkg/audio"
	"github.com/MrWong99/vocalis/pkg/audio/portaudio"
	"github.com/MrWong99/vocalis/pkg/provider/aec"
	"github.com/MrWong99/vocalis/pkg/provider/aec/nlms"
	"github.com/MrWong99/vocalis/pkg/provider/llm"
	"github.com/MrWong99/vocalis/pkg/provider/llm/anyllm"
	"github.com/MrWong99/vocalis/pkg/provider/llm/echo"
	"github.com/MrWong99/vocalis/pkg/provider/llm/openai"
	"github.com/MrWong99/vocalis/pkg/provider/stt"
	"github.com/MrWong99/vocalis/pkg/provider/stt/whisper"
	"github.com/MrWong99/vocalis/pkg/provider/stt/whisper/native"
	"github.com/MrWong99/vocalis/pkg/provider/tts"
	"github.com/MrWong99/vocalis/pkg/provider/tts/coqui"
	"github.com/MrWong99/vocalis/pkg/provider/tts/elevenlabs"
	"github.com/MrWong99/vocalis/pkg/provider/vad"
	"github.com/MrWong99/vocalis/pkg/provider/vad/energy"
	"github.com/MrWong99/vocalis/pkg/provider/vad/webrtc"
	"github.com/MrWong99/vocalis/pkg/provider/wakeword"
	"github.com/MrWong99/vocalis/pkg/provider/wakeword/microwake"
)

// registerBuiltinProviders wires every provider that ships with vocalis into
// reg under the names listed in [config.KnownProviders].
func registerBuiltinProviders(reg *config.Registry) {
	// ── Audio ─────────────────────────────────────────────────────────────────

	reg.RegisterAudio("portaudio", func(config.ProviderEntry) (audio.Platform, error) {
		return portaudio.New()
	})

	// ── VAD ───────────────────────────────────────────────────────────────────

	reg.RegisterVAD("webrtc", func(e config.ProviderEntry) (vad.Detector, error) {
		return webrtc.New(e.Int("sample_rate", audio.DefaultSampleRate), webrtc.WithMode(e.Int("mode", webrtc.DefaultMode)))
	})
	reg.RegisterVAD("energy", func(e config.ProviderEntry) (vad.Detector, error) {
		return energy.New(energy.WithThreshold(e.Float("threshold", energy.DefaultThreshold))), nil
	})

	// ── Wake word ─────────────────────────────────────────────────────────────

	reg.RegisterWakeWord("microwakeword", func(e config.ProviderEntry) (wakeword.Detector, error) {
		model := e.Model
		if model == "" {
			model = microwake.DefaultModel
		}
		var opts []microwake.Option
		if d := e.Duration("refractory", 0); d > 0 {
			opts = append(opts, microwake.WithRefractory(d))
		}
		if d := e.Duration("cooldown", 0); d > 0 {
			opts = append(opts, microwake.WithCooldown(d))
		}
		return microwake.New(model, opts...)
	})

	// ── Echo cancellation ─────────────────────────────────────────────────────

	reg.RegisterAEC("nlms", func(e config.ProviderEntry) (aec.Canceller, error) {
		return nlms.New(
			nlms.WithTaps(e.Int("taps", nlms.DefaultTaps)),
			nlms.WithStep(e.Float("step", nlms.DefaultStep)),
		)
	})
	reg.RegisterAEC("passthrough", func(config.ProviderEntry) (aec.Canceller, error) {
		return aec.Passthrough{}, nil
	})

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("whisper", func(e config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if e.Model != "" {
			opts = append(opts, whisper.WithModel(e.Model))
		}
		if lang := e.String("language", ""); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(e.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(e config.ProviderEntry) (stt.Provider, error) {
		modelPath := e.Model
		if modelPath == "" {
			modelPath = e.String("model_path", "")
		}
		var opts []native.Option
		if lang := e.String("language", ""); lang != "" {
			opts = append(opts, native.WithLanguage(lang))
		}
		if n := e.Int("threads", 0); n > 0 {
			opts = append(opts, native.WithThreads(uint(n)))
		}
		return native.New(modelPath, opts...)
	})

	// ── LLM ───────────────────────────────────────────────────────────────────

	// anyllm selects its backend through the "backend" option: ollama,
	// openai, anthropic, gemini, deepseek, mistral, groq, llamacpp or
	// llamafile.
	reg.RegisterLLM("anyllm", func(e config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if e.APIKey != "" {
			opts = append(opts, anyllmlib.WithAPIKey(e.APIKey))
		}
		if e.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(e.BaseURL))
		}
		return anyllm.New(e.String("backend", anyllm.DefaultBackend), e.Model, opts...)
	})

	reg.RegisterLLM("openai", func(e config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if e.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(e.BaseURL))
		}
		if org := e.String("organization", ""); org != "" {
			opts = append(opts, openai.WithOrganization(org))
		}
		if d := e.Duration("timeout", 0); d > 0 {
			opts = append(opts, openai.WithTimeout(d))
		}
		if n := e.Int("max_retries", -1); n >= 0 {
			opts = append(opts, openai.WithMaxRetries(n))
		}
		return openai.New(e.APIKey, e.Model, opts...)
	})

	reg.RegisterLLM("echo", func(e config.ProviderEntry) (llm.Provider, error) {
		return echo.New(e.String("prefix", echo.DefaultPrefix)), nil
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("coqui", func(e config.ProviderEntry) (tts.Provider, error) {
		var opts []coqui.Option
		if lang := e.String("language", ""); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if mode := e.String("api_mode", ""); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		if d := e.Duration("timeout", 0); d > 0 {
			opts = append(opts, coqui.WithTimeout(d))
		}
		if rate := e.Int("output_sample_rate", 0); rate > 0 {
			opts = append(opts, coqui.WithOutputSampleRate(rate))
		}
		return coqui.New(e.BaseURL, opts...)
	})

	reg.RegisterTTS("elevenlabs", func(e config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if e.Model != "" {
			opts = append(opts, elevenlabs.WithModel(e.Model))
		}
		if f := e.String("output_format", ""); f != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(f))
		}
		if e.BaseURL != "" {
			opts = append(opts, elevenlabs.WithEndpoint(e.BaseURL))
		}
		return elevenlabs.New(e.APIKey, opts...)
	})

	for kind, names := range config.KnownProviders {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}
