package app

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/vocalis/internal/config"
	"github.com/MrWong99/vocalis/internal/observe"
	"github.com/MrWong99/vocalis/internal/resilience"
	"github.com/MrWong99/vocalis/pkg/audio"
	"github.com/MrWong99/vocalis/pkg/provider/aec"
	"github.com/MrWong99/vocalis/pkg/provider/llm"
	"github.com/MrWong99/vocalis/pkg/provider/stt"
	"github.com/MrWong99/vocalis/pkg/provider/tts"
	"github.com/MrWong99/vocalis/pkg/provider/vad"
	"github.com/MrWong99/vocalis/pkg/provider/wakeword"
)

// Providers holds every capability the pipeline needs. AEC may be nil, in
// which case frames pass through unchanged.
type Providers struct {
	Audio    audio.Platform
	VAD      vad.Detector
	WakeWord wakeword.Detector
	AEC      aec.Canceller
	STT      stt.Provider
	LLM      llm.Provider
	TTS      tts.Provider

	// closers are extra resources owned by the set, such as fallback
	// providers hidden behind a group.
	closers []any
}

func (p *Providers) validate() error {
	if p == nil {
		return errors.New("app: nil providers")
	}
	var missing []error
	for name, v := range map[string]any{
		"audio": p.Audio, "vad": p.VAD, "wakeword": p.WakeWord,
		"stt": p.STT, "llm": p.LLM, "tts": p.TTS,
	} {
		if v == nil {
			missing = append(missing, fmt.Errorf("app: %s provider is required", name))
		}
	}
	if p.AEC == nil {
		p.AEC = aec.Passthrough{}
	}
	return errors.Join(missing...)
}

func (p *Providers) close() []error {
	var errs []error
	if p.Audio != nil {
		if err := p.Audio.Close(); err != nil {
			errs = append(errs, fmt.Errorf("app: close audio platform: %w", err))
		}
	}
	vs := append([]any{p.VAD, p.WakeWord, p.AEC, p.STT, p.LLM, p.TTS}, p.closers...)
	return append(errs, closeAll(vs...)...)
}

// BuildProviders creates the configured providers from reg. LLM, STT and TTS
// are wrapped in a fallback group when cfg.Fallbacks lists alternatives. On
// error every provider created so far is closed.
func BuildProviders(cfg *config.Config, reg *config.Registry, m *observe.Metrics) (_ *Providers, err error) {
	p := &Providers{}
	defer func() {
		if err != nil {
			p.close()
		}
	}()

	pc := cfg.Providers
	if p.Audio, err = reg.CreateAudio(pc.Audio); err != nil {
		return nil, err
	}
	if p.VAD, err = reg.CreateVAD(pc.VAD); err != nil {
		return nil, err
	}
	if p.WakeWord, err = reg.CreateWakeWord(pc.WakeWord); err != nil {
		return nil, err
	}
	if pc.AEC.Name != "" {
		if p.AEC, err = reg.CreateAEC(pc.AEC); err != nil {
			return nil, err
		}
	}

	breaker := func(kind string) resilience.FallbackConfig {
		return resilience.FallbackConfig{
			CircuitBreaker: resilience.CircuitBreakerConfig{
				MaxFailures:  cfg.Fallbacks.MaxFailures,
				ResetTimeout: cfg.Fallbacks.ResetTimeout,
			},
			Kind:    kind,
			Metrics: m,
		}
	}

	if p.STT, err = reg.CreateSTT(pc.STT); err != nil {
		return nil, err
	}
	if len(cfg.Fallbacks.STT) > 0 {
		group := resilience.NewSTTFallback(p.STT, pc.STT.Name, breaker("stt"))
		for _, e := range cfg.Fallbacks.STT {
			alt, err := reg.CreateSTT(e)
			if err != nil {
				return nil, err
			}
			group.Add(e.Name, alt)
			p.closers = append(p.closers, alt)
		}
		p.closers = append(p.closers, p.STT)
		p.STT = group
	}

	if p.LLM, err = reg.CreateLLM(pc.LLM); err != nil {
		return nil, err
	}
	if len(cfg.Fallbacks.LLM) > 0 {
		group := resilience.NewLLMFallback(p.LLM, pc.LLM.Name, breaker("llm"))
		for _, e := range cfg.Fallbacks.LLM {
			alt, err := reg.CreateLLM(e)
			if err != nil {
				return nil, err
			}
			group.Add(e.Name, alt)
			p.closers = append(p.closers, alt)
		}
		p.closers = append(p.closers, p.LLM)
		p.LLM = group
	}

	if p.TTS, err = reg.CreateTTS(pc.TTS); err != nil {
		return nil, err
	}
	if len(cfg.Fallbacks.TTS) > 0 {
		group := resilience.NewTTSFallback(p.TTS, pc.TTS.Name, breaker("tts"))
		for _, e := range cfg.Fallbacks.TTS {
			alt, err := reg.CreateTTS(e)
			if err != nil {
				return nil, err
			}
			group.Add(e.Name, alt)
			p.closers = append(p.closers, alt)
		}
		p.closers = append(p.closers, p.TTS)
		p.TTS = group
	}

	slog.Info("providers ready",
		"audio", pc.Audio.Name,
		"vad", pc.VAD.Name,
		"wakeword", pc.WakeWord.Name,
		"aec", pc.AEC.Name,
		"stt", pc.STT.Name,
		"llm", pc.LLM.Name,
		"tts", pc.TTS.Name,
	)
	return p, nil
}
