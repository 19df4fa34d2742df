package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/vocalis/pkg/audio"
	"github.com/MrWong99/vocalis/pkg/provider/aec"
	"github.com/MrWong99/vocalis/pkg/provider/llm"
	"github.com/MrWong99/vocalis/pkg/provider/stt"
	"github.com/MrWong99/vocalis/pkg/provider/tts"
	"github.com/MrWong99/vocalis/pkg/provider/vad"
	"github.com/MrWong99/vocalis/pkg/provider/wakeword"
)

// ErrProviderNotRegistered is returned when no factory exists for a name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory builds a provider from its config entry.
type Factory[T any] func(ProviderEntry) (T, error)

type factories[T any] struct {
	kind string
	mu   sync.RWMutex
	m    map[string]Factory[T]
}

func newFactories[T any](kind string) *factories[T] {
	return &factories[T]{kind: kind, m: make(map[string]Factory[T])}
}

func (f *factories[T]) register(name string, fn Factory[T]) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.m[name] = fn
}

func (f *factories[T]) create(e ProviderEntry) (T, error) {
	f.mu.RLock()
	fn, ok := f.m[e.Name]
	f.mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, f.kind, e.Name)
	}
	v, err := fn(e)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("config: create %s/%q: %w", f.kind, e.Name, err)
	}
	return v, nil
}

// Registry maps provider names to factories per kind. Registering a name
// twice replaces the earlier factory. Safe for concurrent use.
type Registry struct {
	audio    *factories[audio.Platform]
	vad      *factories[vad.Detector]
	wakeword *factories[wakeword.Detector]
	aec      *factories[aec.Canceller]
	stt      *factories[stt.Provider]
	llm      *factories[llm.Provider]
	tts      *factories[tts.Provider]
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		audio:    newFactories[audio.Platform]("audio"),
		vad:      newFactories[vad.Detector]("vad"),
		wakeword: newFactories[wakeword.Detector]("wakeword"),
		aec:      newFactories[aec.Canceller]("aec"),
		stt:      newFactories[stt.Provider]("stt"),
		llm:      newFactories[llm.Provider]("llm"),
		tts:      newFactories[tts.Provider]("tts"),
	}
}

func (r *Registry) RegisterAudio(name string, f Factory[audio.Platform])       { r.audio.register(name, f) }
func (r *Registry) RegisterVAD(name string, f Factory[vad.Detector])           { r.vad.register(name, f) }
func (r *Registry) RegisterWakeWord(name string, f Factory[wakeword.Detector]) { r.wakeword.register(name, f) }
func (r *Registry) RegisterAEC(name string, f Factory[aec.Canceller])          { r.aec.register(name, f) }
func (r *Registry) RegisterSTT(name string, f Factory[stt.Provider])           { r.stt.register(name, f) }
func (r *Registry) RegisterLLM(name string, f Factory[llm.Provider])           { r.llm.register(name, f) }
func (r *Registry) RegisterTTS(name string, f Factory[tts.Provider])           { r.tts.register(name, f) }

func (r *Registry) CreateAudio(e ProviderEntry) (audio.Platform, error)       { return r.audio.create(e) }
func (r *Registry) CreateVAD(e ProviderEntry) (vad.Detector, error)           { return r.vad.create(e) }
func (r *Registry) CreateWakeWord(e ProviderEntry) (wakeword.Detector, error) { return r.wakeword.create(e) }
func (r *Registry) CreateAEC(e ProviderEntry) (aec.Canceller, error)          { return r.aec.create(e) }
func (r *Registry) CreateSTT(e ProviderEntry) (stt.Provider, error)           { return r.stt.create(e) }
func (r *Registry) CreateLLM(e ProviderEntry) (llm.Provider, error)           { return r.llm.create(e) }
func (r *Registry) CreateTTS(e ProviderEntry) (tts.Provider, error)           { return r.tts.create(e) }
