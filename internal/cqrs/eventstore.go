package cqrs

import (
	"context"
	"fmt"
	"time"

	"github.com/lllypuk/eventra/internal/domain/event"
)

// AnyVersion skips the optimistic concurrency check on append.
const AnyVersion = -1

// DefaultSnapshotThreshold is the advisory event count between snapshots.
const DefaultSnapshotThreshold = 100

// Snapshot is a point-in-time materialization of aggregate state at a
// given version. State is the JSON-serialized aggregate state.
type Snapshot struct {
	AggregateID string    `json:"aggregate_id" bson:"aggregate_id"`
	Version     int       `json:"version"      bson:"version"`
	State       []byte    `json:"state"        bson:"state"`
	TakenAt     time.Time `json:"taken_at"     bson:"taken_at"`
}

// StoredEvent is the durable record an event store keeps: the domain event
// plus its storage identity and global stream position.
type StoredEvent struct {
	// ID is derived from aggregate ID and version, unique per store.
	ID string

	AggregateID   string
	AggregateType string
	EventType     string
	Version       int

	// Position is the zero-based index in the global stream.
	Position int

	// Event is the hydrated domain event.
	Event event.DomainEvent
}

// StoredEventID builds the storage identity for an aggregate event.
func StoredEventID(aggregateID string, version int) string {
	return fmt.Sprintf("%s-%d", aggregateID, version)
}

// EventStore is the append-only event log contract: per-aggregate streams
// with optimistic concurrency, single-slot snapshots and a global stream
// for projection catch-up. Declared here on the consumer side; the
// infrastructure package provides the in-memory and MongoDB
// implementations.
type EventStore interface {
	// AppendEvents appends events to an aggregate's log and the global
	// stream. With expectedVersion != AnyVersion, a mismatch against the
	// aggregate's current head version fails with a ConcurrencyError and
	// appends nothing.
	AppendEvents(ctx context.Context, aggregateID, aggregateType string, events []event.DomainEvent, expectedVersion int) error

	// Events returns the aggregate's events with version in the inclusive
	// range [fromVersion, toVersion]; 0 leaves the corresponding bound open.
	Events(ctx context.Context, aggregateID string, fromVersion, toVersion int) ([]StoredEvent, error)

	// EventsSinceVersion returns the aggregate's events with version
	// strictly greater than version.
	EventsSinceVersion(ctx context.Context, aggregateID string, version int) ([]StoredEvent, error)

	// AllEvents returns a slice of the global stream starting at
	// fromPosition; limit 0 means no limit.
	AllEvents(ctx context.Context, fromPosition, limit int) ([]StoredEvent, error)

	// EventsByType scans the global stream for events of one type.
	EventsByType(ctx context.Context, eventType string) ([]StoredEvent, error)

	// SaveSnapshot stores the aggregate's snapshot, replacing any previous
	// one (single slot per aggregate).
	SaveSnapshot(ctx context.Context, snapshot Snapshot) error

	// Snapshot returns the aggregate's snapshot or ErrSnapshotNotFound.
	Snapshot(ctx context.Context, aggregateID string) (Snapshot, error)

	// ShouldSnapshot reports whether the aggregate has accumulated at
	// least the snapshot threshold of events since its last snapshot.
	// Advisory only; the store never snapshots on its own.
	ShouldSnapshot(ctx context.Context, aggregateID string, currentVersion int) (bool, error)

	// StreamPosition returns the current length of the global stream,
	// usable as a projection checkpoint.
	StreamPosition(ctx context.Context) (int, error)

	// Version returns the aggregate's current head version, 0 if the
	// aggregate has no events.
	Version(ctx context.Context, aggregateID string) (int, error)

	// Clear drops all events and snapshots, used in test teardown.
	Clear(ctx context.Context) error
}
