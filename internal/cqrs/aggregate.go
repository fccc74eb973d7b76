package cqrs

import (
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/lllypuk/eventra/internal/domain/event"
)

var stateJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// Reducer folds one event into the aggregate state. It must be a pure
// function of the current state and the event; all state mutation of an
// event-sourced aggregate goes through it.
type Reducer[S any] func(state S, evt event.DomainEvent) S

// Aggregate is the contract the repository works against. Root implements
// it; concrete aggregates embed Root and add their command methods.
type Aggregate interface {
	AggregateID() string
	AggregateType() string
	Version() int
	UncommittedEvents() []event.DomainEvent
	MarkEventsAsCommitted()
	LoadFromHistory(events []event.DomainEvent)
	LoadFromSnapshot(snapshot Snapshot, events []event.DomainEvent) error
	Snapshot() (Snapshot, error)
}

// Root is the event-sourced aggregate base. It owns the identity, the
// version counter, the uncommitted event list and the state, which only
// the reducer may change. Version starts at 0 and equals the version of
// the last applied event.
type Root[S any] struct {
	id            string
	aggregateType string
	version       int
	state         S
	reduce        Reducer[S]
	uncommitted   []event.DomainEvent
}

// NewRoot creates an empty aggregate root at version 0.
func NewRoot[S any](id, aggregateType string, initial S, reduce Reducer[S]) *Root[S] {
	return &Root[S]{
		id:            id,
		aggregateType: aggregateType,
		state:         initial,
		reduce:        reduce,
	}
}

// AggregateID returns the aggregate identifier.
func (r *Root[S]) AggregateID() string {
	return r.id
}

// AggregateType returns the aggregate type name.
func (r *Root[S]) AggregateType() string {
	return r.aggregateType
}

// Version returns the version of the last applied event, 0 for a fresh
// aggregate.
func (r *Root[S]) Version() int {
	return r.version
}

// State returns the current folded state.
func (r *Root[S]) State() S {
	return r.state
}

// Raise constructs a domain event at version+1, appends it to the
// uncommitted list and folds it into the state before returning, so the
// in-memory state already reflects the event.
func (r *Root[S]) Raise(eventType string, payload any, metadata event.Metadata) event.DomainEvent {
	evt := event.NewEvent(eventType, r.id, r.aggregateType, r.version+1, payload, metadata)

	r.uncommitted = append(r.uncommitted, evt)
	r.version = evt.Version()
	r.state = r.reduce(r.state, evt)

	return evt
}

// LoadFromHistory rebuilds the state by folding events in slice order,
// taking the version from each event. The slice is assumed ordered and
// gapless; the event store is responsible for that. Clears the
// uncommitted list.
func (r *Root[S]) LoadFromHistory(events []event.DomainEvent) {
	for _, evt := range events {
		r.state = r.reduce(r.state, evt)
		r.version = evt.Version()
	}
	r.uncommitted = nil
}

// LoadFromSnapshot restores state and version from a snapshot, then folds
// only events newer than the snapshot version. Clears the uncommitted
// list.
func (r *Root[S]) LoadFromSnapshot(snapshot Snapshot, events []event.DomainEvent) error {
	var state S
	if err := stateJSON.Unmarshal(snapshot.State, &state); err != nil {
		return fmt.Errorf("failed to restore aggregate %s state from snapshot: %w", r.id, err)
	}

	r.state = state
	r.version = snapshot.Version

	for _, evt := range events {
		if evt.Version() <= snapshot.Version {
			continue
		}
		r.state = r.reduce(r.state, evt)
		r.version = evt.Version()
	}

	r.uncommitted = nil

	return nil
}

// Snapshot materializes the current state at the current version.
func (r *Root[S]) Snapshot() (Snapshot, error) {
	state, err := stateJSON.Marshal(r.state)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to serialize aggregate %s state: %w", r.id, err)
	}

	return Snapshot{
		AggregateID: r.id,
		Version:     r.version,
		State:       state,
		TakenAt:     time.Now(),
	}, nil
}

// UncommittedEvents returns the events raised since the last successful
// save.
func (r *Root[S]) UncommittedEvents() []event.DomainEvent {
	return r.uncommitted
}

// MarkEventsAsCommitted clears the uncommitted list without touching
// version or state.
func (r *Root[S]) MarkEventsAsCommitted() {
	r.uncommitted = nil
}
