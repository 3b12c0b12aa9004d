package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/deirlabs/mentord/pkg/provider/live"
	"github.com/deirlabs/mentord/pkg/provider/media"
	"github.com/deirlabs/mentord/pkg/provider/text"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// MediaProviders bundles the three media capabilities a single backend
// typically serves together.
type MediaProviders struct {
	Transcriber media.Transcriber
	Images      media.ImageGenerator
	Videos      media.VideoGenerator
}

// Registry maps provider names to their constructor functions for each
// capability. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	text  map[string]func(ProviderEntry) (text.Provider, error)
	live  map[string]func(ProviderEntry) (live.Provider, error)
	media map[string]func(ProviderEntry) (MediaProviders, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		text:  make(map[string]func(ProviderEntry) (text.Provider, error)),
		live:  make(map[string]func(ProviderEntry) (live.Provider, error)),
		media: make(map[string]func(ProviderEntry) (MediaProviders, error)),
	}
}

// RegisterText registers a text provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterText(name string, factory func(ProviderEntry) (text.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.text[name] = factory
}

// RegisterLive registers a live audio provider factory under name.
func (r *Registry) RegisterLive(name string, factory func(ProviderEntry) (live.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.live[name] = factory
}

// RegisterMedia registers a media provider factory under name.
func (r *Registry) RegisterMedia(name string, factory func(ProviderEntry) (MediaProviders, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.media[name] = factory
}

// CreateText instantiates a text provider using the factory registered under
// entry.Name. Returns [ErrProviderNotRegistered] if no factory has been
// registered for that name.
func (r *Registry) CreateText(entry ProviderEntry) (text.Provider, error) {
	r.mu.RLock()
	factory, ok := r.text[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: text/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateLive instantiates a live audio provider using the factory registered
// under entry.Name.
func (r *Registry) CreateLive(entry ProviderEntry) (live.Provider, error) {
	r.mu.RLock()
	factory, ok := r.live[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: live/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateMedia instantiates the media providers using the factory registered
// under entry.Name.
func (r *Registry) CreateMedia(entry ProviderEntry) (MediaProviders, error) {
	r.mu.RLock()
	factory, ok := r.media[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return MediaProviders{}, fmt.Errorf("%w: media/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}
