// Package eventstore provides the event store implementations: an
// in-memory reference store and a MongoDB-backed store, both implementing
// the cqrs.EventStore contract.
package eventstore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/lllypuk/eventra/internal/cqrs"
	"github.com/lllypuk/eventra/internal/domain/event"
)

// Default store limits.
const (
	defaultMaxEventsPerAggregate = 10000
)

// MemoryEventStore is the in-process reference implementation of
// cqrs.EventStore: per-aggregate append logs, single-slot snapshots and a
// global append-only stream, guarded by one RWMutex.
type MemoryEventStore struct {
	mu        sync.RWMutex
	events    map[string][]cqrs.StoredEvent
	snapshots map[string]cqrs.Snapshot
	global    []cqrs.StoredEvent

	snapshotThreshold     int
	maxEventsPerAggregate int
	logger                *slog.Logger
}

// MemoryOption configures a MemoryEventStore.
type MemoryOption func(*MemoryEventStore)

// WithMemoryLogger sets the logger for the store.
func WithMemoryLogger(logger *slog.Logger) MemoryOption {
	return func(s *MemoryEventStore) {
		s.logger = logger
	}
}

// WithSnapshotThreshold sets the advisory snapshot threshold.
func WithSnapshotThreshold(threshold int) MemoryOption {
	return func(s *MemoryEventStore) {
		if threshold > 0 {
			s.snapshotThreshold = threshold
		}
	}
}

// WithMaxEventsPerAggregate caps the per-aggregate log length.
func WithMaxEventsPerAggregate(maxEvents int) MemoryOption {
	return func(s *MemoryEventStore) {
		if maxEvents > 0 {
			s.maxEventsPerAggregate = maxEvents
		}
	}
}

// NewMemoryEventStore creates a new in-memory event store.
func NewMemoryEventStore(opts ...MemoryOption) *MemoryEventStore {
	s := &MemoryEventStore{
		events:                make(map[string][]cqrs.StoredEvent),
		snapshots:             make(map[string]cqrs.Snapshot),
		snapshotThreshold:     cqrs.DefaultSnapshotThreshold,
		maxEventsPerAggregate: defaultMaxEventsPerAggregate,
		logger:                slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// AppendEvents appends events to the aggregate's log and the global
// stream under the optimistic concurrency check.
func (s *MemoryEventStore) AppendEvents(
	ctx context.Context,
	aggregateID, aggregateType string,
	events []event.DomainEvent,
	expectedVersion int,
) error {
	if len(events) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	currentVersion := s.headVersionLocked(aggregateID)
	if expectedVersion != cqrs.AnyVersion && currentVersion != expectedVersion {
		s.logger.WarnContext(ctx, "concurrency conflict in event store",
			slog.String("aggregate_id", aggregateID),
			slog.Int("expected_version", expectedVersion),
			slog.Int("current_version", currentVersion),
		)
		return cqrs.NewConcurrencyError(aggregateID, expectedVersion, currentVersion)
	}

	if len(s.events[aggregateID])+len(events) > s.maxEventsPerAggregate {
		return fmt.Errorf("aggregate %s: %w", aggregateID, cqrs.ErrEventLimitExceeded)
	}

	// Versions must continue the log without gaps.
	for i, evt := range events {
		if want := currentVersion + i + 1; evt.Version() != want {
			return fmt.Errorf("aggregate %s: event version %d does not continue log at %d",
				aggregateID, evt.Version(), want)
		}
	}

	for _, evt := range events {
		stored := cqrs.StoredEvent{
			ID:            cqrs.StoredEventID(aggregateID, evt.Version()),
			AggregateID:   aggregateID,
			AggregateType: aggregateType,
			EventType:     evt.EventType(),
			Version:       evt.Version(),
			Position:      len(s.global),
			Event:         evt,
		}
		s.events[aggregateID] = append(s.events[aggregateID], stored)
		s.global = append(s.global, stored)
	}

	return nil
}

// Events returns the aggregate's events in the inclusive version range;
// 0 leaves a bound open.
func (s *MemoryEventStore) Events(
	_ context.Context,
	aggregateID string,
	fromVersion, toVersion int,
) ([]cqrs.StoredEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]cqrs.StoredEvent, 0, len(s.events[aggregateID]))
	for _, stored := range s.events[aggregateID] {
		if fromVersion > 0 && stored.Version < fromVersion {
			continue
		}
		if toVersion > 0 && stored.Version > toVersion {
			continue
		}
		result = append(result, stored)
	}

	return result, nil
}

// EventsSinceVersion returns events with version strictly greater than
// version.
func (s *MemoryEventStore) EventsSinceVersion(
	ctx context.Context,
	aggregateID string,
	version int,
) ([]cqrs.StoredEvent, error) {
	return s.Events(ctx, aggregateID, version+1, 0)
}

// AllEvents returns a slice of the global stream by position.
func (s *MemoryEventStore) AllEvents(_ context.Context, fromPosition, limit int) ([]cqrs.StoredEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if fromPosition < 0 {
		fromPosition = 0
	}
	if fromPosition >= len(s.global) {
		return nil, nil
	}

	end := len(s.global)
	if limit > 0 && fromPosition+limit < end {
		end = fromPosition + limit
	}

	result := make([]cqrs.StoredEvent, end-fromPosition)
	copy(result, s.global[fromPosition:end])

	return result, nil
}

// EventsByType scans the global stream for one event type.
func (s *MemoryEventStore) EventsByType(_ context.Context, eventType string) ([]cqrs.StoredEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []cqrs.StoredEvent
	for _, stored := range s.global {
		if stored.EventType == eventType {
			result = append(result, stored)
		}
	}

	return result, nil
}

// SaveSnapshot stores the aggregate's snapshot, replacing any previous one.
func (s *MemoryEventStore) SaveSnapshot(_ context.Context, snapshot cqrs.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshots[snapshot.AggregateID] = snapshot

	return nil
}

// Snapshot returns the aggregate's snapshot or cqrs.ErrSnapshotNotFound.
func (s *MemoryEventStore) Snapshot(_ context.Context, aggregateID string) (cqrs.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot, exists := s.snapshots[aggregateID]
	if !exists {
		return cqrs.Snapshot{}, fmt.Errorf("aggregate %s: %w", aggregateID, cqrs.ErrSnapshotNotFound)
	}

	return snapshot, nil
}

// ShouldSnapshot reports whether the aggregate accumulated at least the
// snapshot threshold of events past its last snapshot.
func (s *MemoryEventStore) ShouldSnapshot(_ context.Context, aggregateID string, currentVersion int) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lastSnapshotVersion := 0
	if snapshot, exists := s.snapshots[aggregateID]; exists {
		lastSnapshotVersion = snapshot.Version
	}

	return currentVersion-lastSnapshotVersion >= s.snapshotThreshold, nil
}

// StreamPosition returns the current length of the global stream.
func (s *MemoryEventStore) StreamPosition(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.global), nil
}

// Version returns the aggregate's head version, 0 when it has no events.
func (s *MemoryEventStore) Version(_ context.Context, aggregateID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.headVersionLocked(aggregateID), nil
}

// Clear drops all events and snapshots, used in test teardown.
func (s *MemoryEventStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = make(map[string][]cqrs.StoredEvent)
	s.snapshots = make(map[string]cqrs.Snapshot)
	s.global = nil

	return nil
}

func (s *MemoryEventStore) headVersionLocked(aggregateID string) int {
	log := s.events[aggregateID]
	if len(log) == 0 {
		return 0
	}
	return log[len(log)-1].Version
}

// Ensure MemoryEventStore implements cqrs.EventStore.
var _ cqrs.EventStore = (*MemoryEventStore)(nil)
