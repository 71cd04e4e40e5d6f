package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/hmori/gamecoach/pkg/provider/embeddings"
	"github.com/hmori/gamecoach/pkg/provider/llm"
	"github.com/hmori/gamecoach/pkg/provider/stt"
	"github.com/hmori/gamecoach/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned by the Create methods when no factory
// exists under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// factoryTable holds the named constructors for one provider kind.
type factoryTable[T any] struct {
	mu        sync.RWMutex
	kind      string
	factories map[string]func(ProviderEntry) (T, error)
}

func newFactoryTable[T any](kind string) factoryTable[T] {
	return factoryTable[T]{
		kind:      kind,
		factories: make(map[string]func(ProviderEntry) (T, error)),
	}
}

// register adds or replaces the factory under name.
func (t *factoryTable[T]) register(name string, factory func(ProviderEntry) (T, error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.factories[name] = factory
}

// create runs the factory registered under entry.Name.
func (t *factoryTable[T]) create(entry ProviderEntry) (T, error) {
	t.mu.RLock()
	factory, ok := t.factories[entry.Name]
	t.mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, t.kind, entry.Name)
	}
	return factory(entry)
}

// Registry turns provider entries from the config file into live providers.
// main registers one factory per supported backend; the app layer then asks
// for whatever the config names, without linking the two directly. Safe for
// concurrent use.
type Registry struct {
	stt        factoryTable[stt.Provider]
	llm        factoryTable[llm.Provider]
	tts        factoryTable[tts.Provider]
	embeddings factoryTable[embeddings.Provider]
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		stt:        newFactoryTable[stt.Provider]("stt"),
		llm:        newFactoryTable[llm.Provider]("llm"),
		tts:        newFactoryTable[tts.Provider]("tts"),
		embeddings: newFactoryTable[embeddings.Provider]("embeddings"),
	}
}

// RegisterSTT registers a transcription factory under name. Registering the
// same name again replaces the factory.
func (r *Registry) RegisterSTT(name string, factory func(ProviderEntry) (stt.Provider, error)) {
	r.stt.register(name, factory)
}

// RegisterLLM registers a coaching-model factory under name.
func (r *Registry) RegisterLLM(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	r.llm.register(name, factory)
}

// RegisterTTS registers a speech-synthesis factory under name.
func (r *Registry) RegisterTTS(name string, factory func(ProviderEntry) (tts.Provider, error)) {
	r.tts.register(name, factory)
}

// RegisterEmbeddings registers an embeddings factory under name.
func (r *Registry) RegisterEmbeddings(name string, factory func(ProviderEntry) (embeddings.Provider, error)) {
	r.embeddings.register(name, factory)
}

// CreateSTT builds the transcription provider entry names. Returns
// [ErrProviderNotRegistered] when nothing is registered under entry.Name.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	return r.stt.create(entry)
}

// CreateLLM builds the coaching-model provider entry names.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	return r.llm.create(entry)
}

// CreateTTS builds the speech-synthesis provider entry names.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	return r.tts.create(entry)
}

// CreateEmbeddings builds the embeddings provider entry names.
func (r *Registry) CreateEmbeddings(entry ProviderEntry) (embeddings.Provider, error) {
	return r.embeddings.create(entry)
}
