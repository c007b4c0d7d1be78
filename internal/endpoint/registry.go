package endpoint

import (
	"fmt"
	"sync"
)

// Factory builds a connector from its configuration map.
type Factory func(config map[string]any) (Endpoint, error)

// Registry maps template IDs ("graph.sharepoint", "itsm.sdp") to the
// factories that build them. Connector packages register themselves in
// init(); pkg/connector pulls them all in with blank imports.
type Registry struct {
	factories map[string]Factory
	mu        sync.RWMutex
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a factory under a template ID. A duplicate ID is a
// programming error and panics.
func (r *Registry) Register(templateID string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[templateID]; exists {
		panic(fmt.Sprintf("endpoint factory already registered: %s", templateID))
	}
	r.factories[templateID] = factory
}

// Get looks up a factory by template ID.
func (r *Registry) Get(templateID string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[templateID]
	return factory, ok
}

// List returns every registered template ID, in map order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	return ids
}

// Create builds a connector from a template ID and its config.
func (r *Registry) Create(templateID string, config map[string]any) (Endpoint, error) {
	factory, ok := r.Get(templateID)
	if !ok {
		return nil, fmt.Errorf("unknown endpoint template: %s", templateID)
	}
	return factory(config)
}

// MustCreate is Create for wiring code that cannot recover anyway.
func (r *Registry) MustCreate(templateID string, config map[string]any) Endpoint {
	ep, err := r.Create(templateID, config)
	if err != nil {
		panic(err)
	}
	return ep
}

// --- Default Global Registry ---

var defaultRegistry = NewRegistry()

// DefaultRegistry returns the process-wide registry the connector
// packages register into.
func DefaultRegistry() *Registry {
	return defaultRegistry
}

// Register adds a factory to the default registry. Called from
// connector init() functions.
func Register(templateID string, factory Factory) {
	defaultRegistry.Register(templateID, factory)
}
