// Package event defines the domain event contract shared by the CQRS core,
// the event store implementations and the application layer.
package event

import (
	"time"
)

// DomainEvent represents a domain event
type DomainEvent interface {
	// EventType returns the event type
	EventType() string

	// AggregateID returns the aggregate ID
	AggregateID() string

	// AggregateType returns the aggregate type
	AggregateType() string

	// OccurredAt returns the time when the event occurred
	OccurredAt() time.Time

	// Version returns the aggregate version after this event was applied
	Version() int

	// Metadata returns the event metadata
	Metadata() Metadata

	// Payload returns the event-specific payload
	Payload() any
}
