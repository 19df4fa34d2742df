package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// KnownProviders lists the built-in provider names per kind. Unknown names
// only produce a warning since a binary may register its own.
var KnownProviders = map[string][]string{
	"audio":    {"portaudio"},
	"vad":      {"webrtc", "energy"},
	"wakeword": {"microwakeword"},
	"aec":      {"nlms", "passthrough"},
	"stt":      {"whisper", "whisper-native"},
	"llm":      {"anyllm", "openai", "echo"},
	"tts":      {"coqui", "elevenlabs"},
}

// Load reads, defaults and validates the file at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r, applies defaults and validates.
// Unknown keys are rejected. An empty document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every problem in cfg at once.
func Validate(cfg *Config) error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if !cfg.Server.LogLevel.IsValid() {
		add("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel)
	}

	a := cfg.Audio
	if a.SampleRate <= 0 {
		add("audio.sample_rate must be positive, got %d", a.SampleRate)
	}
	if !slices.Contains([]int{10, 20, 30}, a.FrameMs) {
		add("audio.frame_ms must be 10, 20 or 30, got %d", a.FrameMs)
	}
	if a.BusCapacity <= 0 {
		add("audio.bus_capacity must be positive, got %d", a.BusCapacity)
	}
	if a.MaxReadFailures <= 0 {
		add("audio.max_read_failures must be positive, got %d", a.MaxReadFailures)
	}
	if a.RetryDelay < 0 {
		add("audio.retry_delay must not be negative")
	}

	for kind, e := range map[string]ProviderEntry{
		"audio": cfg.Providers.Audio, "vad": cfg.Providers.VAD, "wakeword": cfg.Providers.WakeWord,
		"aec": cfg.Providers.AEC, "stt": cfg.Providers.STT, "llm": cfg.Providers.LLM, "tts": cfg.Providers.TTS,
	} {
		warnUnknown(kind, e.Name)
	}
	for kind, list := range map[string][]ProviderEntry{
		"llm": cfg.Fallbacks.LLM, "stt": cfg.Fallbacks.STT, "tts": cfg.Fallbacks.TTS,
	} {
		for i, e := range list {
			if e.Name == "" {
				add("fallbacks.%s[%d].name is required", kind, i)
				continue
			}
			warnUnknown(kind, e.Name)
		}
	}
	if cfg.Fallbacks.MaxFailures < 0 || cfg.Fallbacks.ResetTimeout < 0 {
		add("fallbacks.max_failures and fallbacks.reset_timeout must not be negative")
	}

	frame := a.frameDuration()
	r := cfg.Recorder
	if frame > 0 && r.Window < frame {
		add("recorder.window %v is shorter than one frame (%v)", r.Window, frame)
	}
	if frame > 0 && r.Silence < frame {
		add("recorder.silence %v is shorter than one frame (%v)", r.Silence, frame)
	}
	if r.Timeout <= 0 {
		add("recorder.timeout must be positive")
	}
	if r.VoicedRatio <= 0 || r.VoicedRatio > 1 {
		add("recorder.voiced_ratio %.2f is out of range (0, 1]", r.VoicedRatio)
	}
	if r.UnvoicedRatio <= 0 || r.UnvoicedRatio > 1 {
		add("recorder.unvoiced_ratio %.2f is out of range (0, 1]", r.UnvoicedRatio)
	}

	if cfg.Playback.WarmUp < 0 {
		add("playback.warm_up must not be negative")
	}
	if cfg.Playback.QueueDepth <= 0 {
		add("playback.queue_depth must be positive, got %d", cfg.Playback.QueueDepth)
	}

	errs = append(errs, validateDialogue(cfg.Dialogue)...)
	return errors.Join(errs...)
}

func validateDialogue(d DialogueConfig) []error {
	var errs []error
	usable := 0
	for i, p := range d.ExitPhrases {
		if strings.TrimSpace(p) == "" {
			errs = append(errs, fmt.Errorf("dialogue.exit_phrases[%d] is blank", i))
			continue
		}
		usable++
	}
	if usable == 0 {
		errs = append(errs, errors.New("dialogue.exit_phrases needs at least one phrase"))
	}
	if d.Voice.Speed != 0 && (d.Voice.Speed < 0.5 || d.Voice.Speed > 2.0) {
		errs = append(errs, fmt.Errorf("dialogue.voice.speed %.2f is out of range [0.5, 2.0]", d.Voice.Speed))
	}
	return errs
}

func warnUnknown(kind, name string) {
	if name == "" || slices.Contains(KnownProviders[kind], name) {
		return
	}
	slog.Warn("unknown provider name, it must be registered by the binary",
		"kind", kind, "name", name, "known", KnownProviders[kind])
}
