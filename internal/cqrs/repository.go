package cqrs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lllypuk/eventra/internal/domain/event"
)

// Repository bridges an aggregate type and the event store: it hydrates
// aggregates from snapshot plus delta or full history, and appends
// uncommitted events under optimistic concurrency, snapshotting when the
// store advises it.
type Repository[A Aggregate] struct {
	store   EventStore
	factory func(id string) A
	logger  *slog.Logger
}

// RepositoryOption configures a Repository.
type RepositoryOption[A Aggregate] func(*Repository[A])

// WithRepositoryLogger sets the logger for the repository.
func WithRepositoryLogger[A Aggregate](logger *slog.Logger) RepositoryOption[A] {
	return func(r *Repository[A]) {
		r.logger = logger
	}
}

// NewRepository creates a repository for one aggregate type. The factory
// constructs an empty aggregate for an ID; hydration happens in Load.
func NewRepository[A Aggregate](store EventStore, factory func(id string) A, opts ...RepositoryOption[A]) *Repository[A] {
	r := &Repository[A]{
		store:   store,
		factory: factory,
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Load hydrates an aggregate from its snapshot and subsequent events, or
// from full history when no snapshot exists. Returns ErrAggregateNotFound
// when the store holds neither a snapshot nor events for the ID.
func (r *Repository[A]) Load(ctx context.Context, aggregateID string) (A, error) {
	var zero A

	snapshot, snapErr := r.store.Snapshot(ctx, aggregateID)
	if snapErr != nil && !errors.Is(snapErr, ErrSnapshotNotFound) {
		return zero, fmt.Errorf("failed to load snapshot for aggregate %s: %w", aggregateID, snapErr)
	}
	hasSnapshot := snapErr == nil

	var stored []StoredEvent
	var err error
	if hasSnapshot {
		stored, err = r.store.EventsSinceVersion(ctx, aggregateID, snapshot.Version)
	} else {
		stored, err = r.store.Events(ctx, aggregateID, 0, 0)
	}
	if err != nil {
		return zero, fmt.Errorf("failed to load events for aggregate %s: %w", aggregateID, err)
	}

	if !hasSnapshot && len(stored) == 0 {
		return zero, fmt.Errorf("aggregate %s: %w", aggregateID, ErrAggregateNotFound)
	}

	events := make([]event.DomainEvent, len(stored))
	for i, se := range stored {
		events[i] = se.Event
	}

	aggregate := r.factory(aggregateID)
	if hasSnapshot {
		if loadErr := aggregate.LoadFromSnapshot(snapshot, events); loadErr != nil {
			return zero, fmt.Errorf("failed to hydrate aggregate %s: %w", aggregateID, loadErr)
		}
	} else {
		aggregate.LoadFromHistory(events)
	}

	return aggregate, nil
}

// Save appends the aggregate's uncommitted events with the given expected
// version. No-op when there is nothing uncommitted. On a concurrency error
// the uncommitted events stay intact so the caller can reload and retry.
// On success a snapshot is taken when the store advises it, and the events
// are marked committed.
func (r *Repository[A]) Save(ctx context.Context, aggregate A, expectedVersion int) error {
	uncommitted := aggregate.UncommittedEvents()
	if len(uncommitted) == 0 {
		return nil
	}

	err := r.store.AppendEvents(ctx, aggregate.AggregateID(), aggregate.AggregateType(), uncommitted, expectedVersion)
	if err != nil {
		return fmt.Errorf("failed to append events for aggregate %s: %w", aggregate.AggregateID(), err)
	}

	r.maybeSnapshot(ctx, aggregate)

	aggregate.MarkEventsAsCommitted()

	return nil
}

// Exists reports whether the aggregate has any events in the store.
func (r *Repository[A]) Exists(ctx context.Context, aggregateID string) (bool, error) {
	version, err := r.store.Version(ctx, aggregateID)
	if err != nil {
		return false, fmt.Errorf("failed to check aggregate %s: %w", aggregateID, err)
	}
	return version > 0, nil
}

// maybeSnapshot takes an advisory snapshot. Snapshot failures are logged,
// never fatal: the aggregate's events are already durable.
func (r *Repository[A]) maybeSnapshot(ctx context.Context, aggregate A) {
	should, err := r.store.ShouldSnapshot(ctx, aggregate.AggregateID(), aggregate.Version())
	if err != nil || !should {
		return
	}

	snapshot, err := aggregate.Snapshot()
	if err != nil {
		r.logger.WarnContext(ctx, "failed to create snapshot",
			slog.String("aggregate_id", aggregate.AggregateID()),
			slog.Int("version", aggregate.Version()),
			slog.String("error", err.Error()),
		)
		return
	}

	if err := r.store.SaveSnapshot(ctx, snapshot); err != nil {
		r.logger.WarnContext(ctx, "failed to save snapshot",
			slog.String("aggregate_id", aggregate.AggregateID()),
			slog.Int("version", aggregate.Version()),
			slog.String("error", err.Error()),
		)
	}
}
