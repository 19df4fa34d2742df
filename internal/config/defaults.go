package config

import "time"

// Default returns the configuration used for every unset field.
func Default() *Config {
	return &Config{
		Server: ServerConfig{LogLevel: LogInfo},
		Audio: AudioConfig{
			SampleRate:      16000,
			FrameMs:         30,
			BusCapacity:     64,
			MaxReadFailures: 5,
			RetryDelay:      100 * time.Millisecond,
		},
		Providers: ProvidersConfig{
			Audio:    ProviderEntry{Name: "portaudio"},
			VAD:      ProviderEntry{Name: "webrtc", Options: map[string]any{"mode": 2}},
			WakeWord: ProviderEntry{Name: "microwakeword", Model: "okay_nabu"},
			AEC:      ProviderEntry{Name: "nlms"},
			STT:      ProviderEntry{Name: "whisper", BaseURL: "http://localhost:8081"},
			LLM:      ProviderEntry{Name: "anyllm", Model: "deepseek-r1:1.5b", Options: map[string]any{"backend": "ollama"}},
			TTS:      ProviderEntry{Name: "coqui", BaseURL: "http://localhost:5002"},
		},
		Fallbacks: FallbacksConfig{
			MaxFailures:  3,
			ResetTimeout: 30 * time.Second,
		},
		Recorder: RecorderConfig{
			Window:        300 * time.Millisecond,
			Silence:       300 * time.Millisecond,
			Timeout:       10 * time.Second,
			VoicedRatio:   0.9,
			UnvoicedRatio: 0.9,
		},
		Playback: PlaybackConfig{
			WarmUp:     500 * time.Millisecond,
			QueueDepth: 32,
		},
		Dialogue: DialogueConfig{
			Greeting:           "Yes?",
			Reprompt:           "Could you please repeat your question?",
			Farewell:           "Goodbye",
			GenerationFallback: "Sorry, I could not come up with an answer.",
			DeviceApology:      "Sorry, I lost access to the microphone. Goodbye.",
			ExitPhrases:        []string{"bye", "exit", "stop", "quit"},
			SystemPrompt:       "You are a concise voice assistant. Answer in one or two short sentences.",
		},
	}
}

// ApplyDefaults fills every zero field of cfg from [Default]. A provider entry
// is taken over as a whole when its name is unset.
func ApplyDefaults(cfg *Config) {
	d := Default()

	fill(&cfg.Server.LogLevel, d.Server.LogLevel)

	fill(&cfg.Audio.SampleRate, d.Audio.SampleRate)
	fill(&cfg.Audio.FrameMs, d.Audio.FrameMs)
	fill(&cfg.Audio.BusCapacity, d.Audio.BusCapacity)
	fill(&cfg.Audio.MaxReadFailures, d.Audio.MaxReadFailures)
	fill(&cfg.Audio.RetryDelay, d.Audio.RetryDelay)

	for _, p := range []struct{ dst, def *ProviderEntry }{
		{&cfg.Providers.Audio, &d.Providers.Audio},
		{&cfg.Providers.VAD, &d.Providers.VAD},
		{&cfg.Providers.WakeWord, &d.Providers.WakeWord},
		{&cfg.Providers.AEC, &d.Providers.AEC},
		{&cfg.Providers.STT, &d.Providers.STT},
		{&cfg.Providers.LLM, &d.Providers.LLM},
		{&cfg.Providers.TTS, &d.Providers.TTS},
	} {
		if p.dst.Name == "" {
			*p.dst = *p.def
		}
	}

	fill(&cfg.Fallbacks.MaxFailures, d.Fallbacks.MaxFailures)
	fill(&cfg.Fallbacks.ResetTimeout, d.Fallbacks.ResetTimeout)

	fill(&cfg.Recorder.Window, d.Recorder.Window)
	fill(&cfg.Recorder.Silence, d.Recorder.Silence)
	fill(&cfg.Recorder.Timeout, d.Recorder.Timeout)
	fill(&cfg.Recorder.VoicedRatio, d.Recorder.VoicedRatio)
	fill(&cfg.Recorder.UnvoicedRatio, d.Recorder.UnvoicedRatio)

	fill(&cfg.Playback.WarmUp, d.Playback.WarmUp)
	fill(&cfg.Playback.QueueDepth, d.Playback.QueueDepth)

	fill(&cfg.Dialogue.Greeting, d.Dialogue.Greeting)
	fill(&cfg.Dialogue.Reprompt, d.Dialogue.Reprompt)
	fill(&cfg.Dialogue.Farewell, d.Dialogue.Farewell)
	fill(&cfg.Dialogue.GenerationFallback, d.Dialogue.GenerationFallback)
	fill(&cfg.Dialogue.DeviceApology, d.Dialogue.DeviceApology)
	fill(&cfg.Dialogue.SystemPrompt, d.Dialogue.SystemPrompt)
	if cfg.Dialogue.ExitPhrases == nil {
		cfg.Dialogue.ExitPhrases = d.Dialogue.ExitPhrases
	}
}

func fill[T comparable](dst *T, def T) {
	var zero T
	if *dst == zero {
		*dst = def
	}
}
