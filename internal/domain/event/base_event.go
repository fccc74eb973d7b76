package event

import "time"

// BaseEvent is the value implementation of the DomainEvent identity fields.
// Concrete events embed it and add their payload.
type BaseEvent struct {
	eventType     string
	aggregateID   string
	aggregateType string
	occurredAt    time.Time
	version       int
	metadata      Metadata
}

// NewBaseEvent creates a new base event stamped with the current time
func NewBaseEvent(eventType, aggregateID, aggregateType string, version int, metadata Metadata) BaseEvent {
	return BaseEvent{
		eventType:     eventType,
		aggregateID:   aggregateID,
		aggregateType: aggregateType,
		occurredAt:    time.Now(),
		version:       version,
		metadata:      metadata,
	}
}

// EventType returns the event type
func (e BaseEvent) EventType() string {
	return e.eventType
}

// AggregateID returns the aggregate ID
func (e BaseEvent) AggregateID() string {
	return e.aggregateID
}

// AggregateType returns the aggregate type
func (e BaseEvent) AggregateType() string {
	return e.aggregateType
}

// OccurredAt returns the time when the event occurred
func (e BaseEvent) OccurredAt() time.Time {
	return e.occurredAt
}

// Version returns the aggregate version after this event
func (e BaseEvent) Version() int {
	return e.version
}

// Metadata returns the event metadata
func (e BaseEvent) Metadata() Metadata {
	return e.metadata
}

// Payload returns nil; events carrying data override it
func (e BaseEvent) Payload() any {
	return nil
}

// Event is a generic domain event with an opaque payload. It is what the
// aggregate root raises; domains define typed payload structs.
type Event struct {
	BaseEvent

	payload any
}

// NewEvent creates a generic event around a typed payload
func NewEvent(eventType, aggregateID, aggregateType string, version int, payload any, metadata Metadata) *Event {
	return &Event{
		BaseEvent: NewBaseEvent(eventType, aggregateID, aggregateType, version, metadata),
		payload:   payload,
	}
}

// Payload returns the typed payload
func (e *Event) Payload() any {
	return e.payload
}

// Hydrate rebuilds an event from its stored form, preserving the original
// occurrence time instead of stamping a new one.
func Hydrate(eventType, aggregateID, aggregateType string, version int, occurredAt time.Time, payload any, metadata Metadata) *Event {
	return &Event{
		BaseEvent: BaseEvent{
			eventType:     eventType,
			aggregateID:   aggregateID,
			aggregateType: aggregateType,
			occurredAt:    occurredAt,
			version:       version,
			metadata:      metadata,
		},
		payload: payload,
	}
}
