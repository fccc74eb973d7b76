package cqrs

import "sync"

// PayloadFactory creates an empty payload instance for an event type so
// serialized payloads can be decoded back into their concrete type.
type PayloadFactory func() any

// Registry maps event types to payload factories. Domains register their
// payload types at composition time; unregistered types decode into a
// generic map.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]PayloadFactory
}

// NewRegistry creates an empty payload registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]PayloadFactory),
	}
}

// Register binds a payload factory to an event type, replacing any
// previous binding.
func (r *Registry) Register(eventType string, factory PayloadFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.factories[eventType] = factory
}

// New returns a fresh payload instance for an event type.
func (r *Registry) New(eventType string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, exists := r.factories[eventType]
	if !exists {
		return nil, false
	}
	return factory(), true
}
