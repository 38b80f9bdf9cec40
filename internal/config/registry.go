package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/polyvox/polyvox/pkg/provider/generate"
	"github.com/polyvox/polyvox/pkg/provider/reorg"
	"github.com/polyvox/polyvox/pkg/provider/translate"
	"github.com/polyvox/polyvox/pkg/recognize"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	translate  map[string]func(ProviderEntry) (translate.Provider, error)
	reorganize map[string]func(ProviderEntry) (reorg.Provider, error)
	generate   map[string]func(ProviderEntry) (generate.Provider, error)
	recognize  map[string]func(RecognitionConfig) (recognize.Recognizer, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		translate:  make(map[string]func(ProviderEntry) (translate.Provider, error)),
		reorganize: make(map[string]func(ProviderEntry) (reorg.Provider, error)),
		generate:   make(map[string]func(ProviderEntry) (generate.Provider, error)),
		recognize:  make(map[string]func(RecognitionConfig) (recognize.Recognizer, error)),
	}
}

// RegisterTranslate registers a translation provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterTranslate(name string, factory func(ProviderEntry) (translate.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.translate[name] = factory
}

// RegisterReorganize registers a reorganization provider factory under name.
func (r *Registry) RegisterReorganize(name string, factory func(ProviderEntry) (reorg.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reorganize[name] = factory
}

// RegisterGenerate registers a document-generation provider factory under name.
func (r *Registry) RegisterGenerate(name string, factory func(ProviderEntry) (generate.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generate[name] = factory
}

// RegisterRecognize registers a speech-recognizer factory under name.
func (r *Registry) RegisterRecognize(name string, factory func(RecognitionConfig) (recognize.Recognizer, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recognize[name] = factory
}

// CreateTranslate builds the translation provider configured in entry.
func (r *Registry) CreateTranslate(entry ProviderEntry) (translate.Provider, error) {
	r.mu.RLock()
	factory, ok := r.translate[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: translate provider %q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateReorganize builds the reorganization provider configured in entry.
func (r *Registry) CreateReorganize(entry ProviderEntry) (reorg.Provider, error) {
	r.mu.RLock()
	factory, ok := r.reorganize[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: reorganize provider %q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateGenerate builds the document-generation provider configured in entry.
func (r *Registry) CreateGenerate(entry ProviderEntry) (generate.Provider, error) {
	r.mu.RLock()
	factory, ok := r.generate[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: generate provider %q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateRecognize builds the speech recognizer registered under name using
// the given recognition settings.
func (r *Registry) CreateRecognize(name string, rc RecognitionConfig) (recognize.Recognizer, error) {
	r.mu.RLock()
	factory, ok := r.recognize[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: recognizer %q", ErrProviderNotRegistered, name)
	}
	return factory(rc)
}
