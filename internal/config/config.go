// Package config loads, validates and hot-reloads the assistant's YAML
// configuration, and maps provider names to constructors through [Registry].
package config

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"
)

// LogLevel is the minimum level of emitted log records.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a known level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Slog converts l to a [slog.Level]. Unknown levels map to info.
func (l LogLevel) Slog() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config is the root of the configuration file.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Audio     AudioConfig     `yaml:"audio"`
	Providers ProvidersConfig `yaml:"providers"`
	Fallbacks FallbacksConfig `yaml:"fallbacks"`
	Recorder  RecorderConfig  `yaml:"recorder"`
	Playback  PlaybackConfig  `yaml:"playback"`
	Dialogue  DialogueConfig  `yaml:"dialogue"`
}

// ServerConfig controls the observability endpoint and logging.
type ServerConfig struct {
	// ListenAddr serves /healthz, /readyz and /metrics. Empty disables the
	// HTTP server.
	ListenAddr string `yaml:"listen_addr"`

	LogLevel LogLevel `yaml:"log_level"`
}

// AudioConfig describes the pipeline frame format and the capture loop.
type AudioConfig struct {
	SampleRate int `yaml:"sample_rate"`

	// FrameMs is the frame length in milliseconds: 10, 20 or 30.
	FrameMs int `yaml:"frame_ms"`

	// BusCapacity is the frame bus size in frames.
	BusCapacity int `yaml:"bus_capacity"`

	// MaxReadFailures is the number of consecutive capture failures after
	// which the input device is considered lost.
	MaxReadFailures int `yaml:"max_read_failures"`

	RetryDelay time.Duration `yaml:"retry_delay"`
}

// ProvidersConfig selects one implementation per provider kind.
type ProvidersConfig struct {
	Audio    ProviderEntry `yaml:"audio"`
	VAD      ProviderEntry `yaml:"vad"`
	WakeWord ProviderEntry `yaml:"wakeword"`
	AEC      ProviderEntry `yaml:"aec"`
	STT      ProviderEntry `yaml:"stt"`
	LLM      ProviderEntry `yaml:"llm"`
	TTS      ProviderEntry `yaml:"tts"`
}

// FallbacksConfig lists providers tried in order when the primary fails.
type FallbacksConfig struct {
	LLM []ProviderEntry `yaml:"llm"`
	STT []ProviderEntry `yaml:"stt"`
	TTS []ProviderEntry `yaml:"tts"`

	// MaxFailures and ResetTimeout tune the per-provider circuit breaker.
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// ProviderEntry names a registered provider and its settings.
type ProviderEntry struct {
	Name    string         `yaml:"name"`
	APIKey  string         `yaml:"api_key"`
	BaseURL string         `yaml:"base_url"`
	Model   string         `yaml:"model"`
	Options map[string]any `yaml:"options"`
}

// String returns option key as a string, or def when unset.
func (e ProviderEntry) String(key, def string) string {
	v, ok := e.Options[key]
	if !ok || v == nil {
		return def
	}
	return fmt.Sprint(v)
}

// Int returns option key as an int, or def when unset or not a number.
func (e ProviderEntry) Int(key string, def int) int {
	switch v := e.Options[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// Float returns option key as a float64, or def when unset or not a number.
func (e ProviderEntry) Float(key string, def float64) float64 {
	switch v := e.Options[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

// Duration returns option key parsed with [time.ParseDuration], or def.
func (e ProviderEntry) Duration(key string, def time.Duration) time.Duration {
	s, ok := e.Options[key].(string)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// RecorderConfig tunes utterance end-pointing.
type RecorderConfig struct {
	Window        time.Duration `yaml:"window"`
	Silence       time.Duration `yaml:"silence"`
	Timeout       time.Duration `yaml:"timeout"`
	VoicedRatio   float64       `yaml:"voiced_ratio"`
	UnvoicedRatio float64       `yaml:"unvoiced_ratio"`
}

// PlaybackConfig tunes speech output.
type PlaybackConfig struct {
	// WarmUp is the amount of written audio before barge-in detection
	// starts.
	WarmUp time.Duration `yaml:"warm_up"`

	QueueDepth int `yaml:"queue_depth"`
}

// DialogueConfig holds the prompts, exit phrases and voice. It is the only
// section applied without a restart.
type DialogueConfig struct {
	Greeting           string      `yaml:"greeting"`
	Reprompt           string      `yaml:"reprompt"`
	Farewell           string      `yaml:"farewell"`
	RetryPrompt        string      `yaml:"retry_prompt"`
	GenerationFallback string      `yaml:"generation_fallback"`
	DeviceApology      string      `yaml:"device_apology"`
	ExitPhrases        []string    `yaml:"exit_phrases"`
	PhoneticExit       bool        `yaml:"phonetic_exit"`
	SystemPrompt       string      `yaml:"system_prompt"`
	Voice              VoiceConfig `yaml:"voice"`
}

// VoiceConfig selects the synthesis voice.
type VoiceConfig struct {
	ID    string  `yaml:"id"`
	Name  string  `yaml:"name"`
	Speed float64 `yaml:"speed"`
}

func (a AudioConfig) frameDuration() time.Duration {
	return time.Duration(a.FrameMs) * time.Millisecond
}
