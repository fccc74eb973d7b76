package cqrs

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
)

// ProjectionReducer folds one stored event into the projection state and
// returns the new state.
type ProjectionReducer func(state any, evt StoredEvent) any

// projection is one named fold over the global stream.
type projection struct {
	name         string
	initial      []byte
	stateType    reflect.Type
	handlers     map[string]ProjectionReducer
	state        any
	lastPosition int
}

// ProjectionManager derives read-model state by folding the global event
// stream. Catch-up is monotonic and idempotent: lastPosition advances once
// per examined event whether or not a reducer existed for its type.
type ProjectionManager struct {
	mu          sync.RWMutex
	store       EventStore
	projections map[string]*projection
	logger      *slog.Logger
}

// ProjectionManagerOption configures a ProjectionManager.
type ProjectionManagerOption func(*ProjectionManager)

// WithProjectionLogger sets the logger for the projection manager.
func WithProjectionLogger(logger *slog.Logger) ProjectionManagerOption {
	return func(m *ProjectionManager) {
		m.logger = logger
	}
}

// NewProjectionManager creates a projection manager over an event store.
func NewProjectionManager(store EventStore, opts ...ProjectionManagerOption) *ProjectionManager {
	m := &ProjectionManager{
		store:       store,
		projections: make(map[string]*projection),
		logger:      slog.Default(),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Register stores a named fold. The initial state is deep-cloned through a
// JSON round-trip so later resets cannot observe caller mutations.
// Returns ErrHandlerAlreadyRegistered for a duplicate name.
func (m *ProjectionManager) Register(name string, initialState any, handlers map[string]ProjectionReducer) error {
	if name == "" {
		return fmt.Errorf("projection name cannot be empty")
	}

	initial, err := stateJSON.Marshal(initialState)
	if err != nil {
		return fmt.Errorf("failed to serialize initial state for projection %q: %w", name, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.projections[name]; exists {
		return fmt.Errorf("projection %q: %w", name, ErrHandlerAlreadyRegistered)
	}

	p := &projection{
		name:      name,
		initial:   initial,
		stateType: reflect.TypeOf(initialState),
		handlers:  handlers,
	}

	state, err := p.freshState()
	if err != nil {
		return fmt.Errorf("failed to clone initial state for projection %q: %w", name, err)
	}
	p.state = state

	m.projections[name] = p

	return nil
}

// Update folds all global-stream events past the projection's checkpoint
// through its reducers.
func (m *ProjectionManager) Update(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, exists := m.projections[name]
	if !exists {
		return fmt.Errorf("projection %q: %w", name, ErrHandlerNotFound)
	}

	return m.updateLocked(ctx, p)
}

// UpdateAll updates every registered projection. A failing projection does
// not stop the others; the first error is returned after all ran.
func (m *ProjectionManager) UpdateAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for _, p := range m.projections {
		if err := m.updateLocked(ctx, p); err != nil {
			m.logger.ErrorContext(ctx, "projection update failed",
				slog.String("projection", p.name),
				slog.String("error", err.Error()),
			)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}

// State returns a deep copy of the projection's current folded state, or
// nil for an unknown name. Callers may mutate the returned value freely;
// the projection keeps folding on its own copy.
func (m *ProjectionManager) State(name string) any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, exists := m.projections[name]
	if !exists {
		return nil
	}

	state, err := p.cloneState()
	if err != nil {
		m.logger.Error("failed to clone projection state",
			slog.String("projection", p.name),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return state
}

// LastPosition returns the projection's checkpoint, or -1 for an unknown
// name.
func (m *ProjectionManager) LastPosition(name string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, exists := m.projections[name]
	if !exists {
		return -1
	}
	return p.lastPosition
}

// Reset restores the deep-cloned initial state and zeroes the checkpoint.
func (m *ProjectionManager) Reset(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, exists := m.projections[name]
	if !exists {
		return fmt.Errorf("projection %q: %w", name, ErrHandlerNotFound)
	}

	return m.resetLocked(p)
}

// ResetAll resets every registered projection.
func (m *ProjectionManager) ResetAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.projections {
		if err := m.resetLocked(p); err != nil {
			return err
		}
	}

	return nil
}

func (m *ProjectionManager) updateLocked(ctx context.Context, p *projection) error {
	events, err := m.store.AllEvents(ctx, p.lastPosition, 0)
	if err != nil {
		return fmt.Errorf("failed to read global stream for projection %q: %w", p.name, err)
	}

	for _, evt := range events {
		if reducer, handled := p.handlers[evt.EventType]; handled {
			p.state = reducer(p.state, evt)
		}
		p.lastPosition++
	}

	return nil
}

func (m *ProjectionManager) resetLocked(p *projection) error {
	state, err := p.freshState()
	if err != nil {
		return fmt.Errorf("failed to reset projection %q: %w", p.name, err)
	}

	p.state = state
	p.lastPosition = 0

	return nil
}

// freshState materializes a new copy of the initial state from its JSON
// form, preserving the registered concrete type.
func (p *projection) freshState() (any, error) {
	return p.materialize(p.initial)
}

// cloneState deep-copies the current state through a JSON round-trip.
func (p *projection) cloneState() (any, error) {
	if p.stateType == nil {
		return nil, nil
	}

	data, err := stateJSON.Marshal(p.state)
	if err != nil {
		return nil, err
	}
	return p.materialize(data)
}

func (p *projection) materialize(data []byte) (any, error) {
	if p.stateType == nil {
		return nil, nil
	}

	if p.stateType.Kind() == reflect.Pointer {
		value := reflect.New(p.stateType.Elem())
		if err := stateJSON.Unmarshal(data, value.Interface()); err != nil {
			return nil, err
		}
		return value.Interface(), nil
	}

	value := reflect.New(p.stateType)
	if err := stateJSON.Unmarshal(data, value.Interface()); err != nil {
		return nil, err
	}
	return value.Elem().Interface(), nil
}
