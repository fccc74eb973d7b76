package eventstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/lllypuk/eventra/internal/cqrs"
	"github.com/lllypuk/eventra/internal/domain/event"
)

// Collection names used by the Mongo store.
const (
	eventsCollection    = "events"
	snapshotsCollection = "snapshots"
	countersCollection  = "counters"

	streamCounterID = "global_stream"
)

// MongoEventStore implements cqrs.EventStore on MongoDB. Events live in
// one collection with a unique (aggregate_id, version) index; the global
// stream position comes from a counters document incremented inside the
// append transaction.
type MongoEventStore struct {
	client     *mongo.Client
	events     *mongo.Collection
	snapshots  *mongo.Collection
	counters   *mongo.Collection
	serializer *Serializer

	snapshotThreshold int
	logger            *slog.Logger
}

// MongoOption configures a MongoEventStore.
type MongoOption func(*MongoEventStore)

// WithMongoLogger sets the logger for the store.
func WithMongoLogger(logger *slog.Logger) MongoOption {
	return func(s *MongoEventStore) {
		s.logger = logger
	}
}

// WithMongoSnapshotThreshold sets the advisory snapshot threshold.
func WithMongoSnapshotThreshold(threshold int) MongoOption {
	return func(s *MongoEventStore) {
		if threshold > 0 {
			s.snapshotThreshold = threshold
		}
	}
}

// NewMongoEventStore creates a MongoDB-backed event store.
func NewMongoEventStore(client *mongo.Client, databaseName string, registry *cqrs.Registry, opts ...MongoOption) *MongoEventStore {
	database := client.Database(databaseName)

	s := &MongoEventStore{
		client:            client,
		events:            database.Collection(eventsCollection),
		snapshots:         database.Collection(snapshotsCollection),
		counters:          database.Collection(countersCollection),
		serializer:        NewSerializer(registry),
		snapshotThreshold: cqrs.DefaultSnapshotThreshold,
		logger:            slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// EnsureIndexes creates the unique per-aggregate version index and the
// global position index. Call once at startup.
func (s *MongoEventStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.events.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "aggregate_id", Value: 1}, {Key: "version", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "position", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "event_type", Value: 1}},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create event store indexes: %w", err)
	}

	return nil
}

// AppendEvents appends events transactionally: version check, position
// allocation and insert happen atomically.
func (s *MongoEventStore) AppendEvents(
	ctx context.Context,
	aggregateID, aggregateType string,
	events []event.DomainEvent,
	expectedVersion int,
) error {
	if len(events) == 0 {
		return nil
	}

	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(txCtx context.Context) (any, error) {
		currentVersion, errVersion := s.Version(txCtx, aggregateID)
		if errVersion != nil {
			return nil, errVersion
		}

		if expectedVersion != cqrs.AnyVersion && currentVersion != expectedVersion {
			s.logger.WarnContext(ctx, "concurrency conflict in event store",
				slog.String("aggregate_id", aggregateID),
				slog.Int("expected_version", expectedVersion),
				slog.Int("current_version", currentVersion),
			)
			return nil, cqrs.NewConcurrencyError(aggregateID, expectedVersion, currentVersion)
		}

		basePosition, errPos := s.allocatePositions(txCtx, len(events))
		if errPos != nil {
			return nil, errPos
		}

		stored := make([]cqrs.StoredEvent, len(events))
		for i, evt := range events {
			stored[i] = cqrs.StoredEvent{
				ID:            cqrs.StoredEventID(aggregateID, evt.Version()),
				AggregateID:   aggregateID,
				AggregateType: aggregateType,
				EventType:     evt.EventType(),
				Version:       evt.Version(),
				Position:      basePosition + i,
				Event:         evt,
			}
		}

		documents, errSerialize := s.serializer.SerializeMany(stored)
		if errSerialize != nil {
			return nil, errSerialize
		}

		docs := make([]any, len(documents))
		for i, doc := range documents {
			docs[i] = doc
		}

		if _, errInsert := s.events.InsertMany(txCtx, docs); errInsert != nil {
			// A duplicate key on (aggregate_id, version) is a lost race.
			if mongo.IsDuplicateKeyError(errInsert) {
				return nil, cqrs.NewConcurrencyError(aggregateID, expectedVersion, currentVersion)
			}
			return nil, fmt.Errorf("failed to insert events: %w", errInsert)
		}

		return nil, nil //nolint:nilnil // transaction success returns nil for both values
	})

	if err != nil && !errors.Is(err, cqrs.ErrConcurrencyConflict) {
		s.logger.ErrorContext(ctx, "event store transaction failed",
			slog.String("aggregate_id", aggregateID),
			slog.Int("events_count", len(events)),
			slog.String("error", err.Error()),
		)
	}

	return err
}

// Events returns the aggregate's events in the inclusive version range.
func (s *MongoEventStore) Events(
	ctx context.Context,
	aggregateID string,
	fromVersion, toVersion int,
) ([]cqrs.StoredEvent, error) {
	versionFilter := bson.M{}
	if fromVersion > 0 {
		versionFilter["$gte"] = fromVersion
	}
	if toVersion > 0 {
		versionFilter["$lte"] = toVersion
	}

	filter := bson.M{"aggregate_id": aggregateID}
	if len(versionFilter) > 0 {
		filter["version"] = versionFilter
	}

	return s.find(ctx, filter, bson.D{{Key: "version", Value: 1}}, 0)
}

// EventsSinceVersion returns events with version strictly greater than
// version.
func (s *MongoEventStore) EventsSinceVersion(ctx context.Context, aggregateID string, version int) ([]cqrs.StoredEvent, error) {
	return s.Events(ctx, aggregateID, version+1, 0)
}

// AllEvents returns a slice of the global stream by position.
func (s *MongoEventStore) AllEvents(ctx context.Context, fromPosition, limit int) ([]cqrs.StoredEvent, error) {
	filter := bson.M{"position": bson.M{"$gte": fromPosition}}
	return s.find(ctx, filter, bson.D{{Key: "position", Value: 1}}, limit)
}

// EventsByType returns all events of one type in global stream order.
func (s *MongoEventStore) EventsByType(ctx context.Context, eventType string) ([]cqrs.StoredEvent, error) {
	filter := bson.M{"event_type": eventType}
	return s.find(ctx, filter, bson.D{{Key: "position", Value: 1}}, 0)
}

// SaveSnapshot upserts the aggregate's single snapshot slot.
func (s *MongoEventStore) SaveSnapshot(ctx context.Context, snapshot cqrs.Snapshot) error {
	doc := SnapshotDocument{
		AggregateID: snapshot.AggregateID,
		Version:     snapshot.Version,
		State:       snapshot.State,
		TakenAt:     snapshot.TakenAt,
	}

	filter := bson.M{"_id": snapshot.AggregateID}
	update := bson.M{"$set": doc}

	_, err := s.snapshots.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save snapshot for aggregate %s: %w", snapshot.AggregateID, err)
	}

	return nil
}

// Snapshot returns the aggregate's snapshot or cqrs.ErrSnapshotNotFound.
func (s *MongoEventStore) Snapshot(ctx context.Context, aggregateID string) (cqrs.Snapshot, error) {
	var doc SnapshotDocument
	err := s.snapshots.FindOne(ctx, bson.M{"_id": aggregateID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return cqrs.Snapshot{}, fmt.Errorf("aggregate %s: %w", aggregateID, cqrs.ErrSnapshotNotFound)
		}
		return cqrs.Snapshot{}, fmt.Errorf("failed to load snapshot for aggregate %s: %w", aggregateID, err)
	}

	return cqrs.Snapshot{
		AggregateID: doc.AggregateID,
		Version:     doc.Version,
		State:       doc.State,
		TakenAt:     doc.TakenAt,
	}, nil
}

// ShouldSnapshot reports whether the aggregate accumulated at least the
// snapshot threshold of events past its last snapshot.
func (s *MongoEventStore) ShouldSnapshot(ctx context.Context, aggregateID string, currentVersion int) (bool, error) {
	lastSnapshotVersion := 0

	snapshot, err := s.Snapshot(ctx, aggregateID)
	switch {
	case err == nil:
		lastSnapshotVersion = snapshot.Version
	case errors.Is(err, cqrs.ErrSnapshotNotFound):
		// No snapshot yet; threshold counts from version 0.
	default:
		return false, err
	}

	return currentVersion-lastSnapshotVersion >= s.snapshotThreshold, nil
}

// StreamPosition returns the current length of the global stream.
func (s *MongoEventStore) StreamPosition(ctx context.Context) (int, error) {
	var counter struct {
		Value int `bson:"value"`
	}

	err := s.counters.FindOne(ctx, bson.M{"_id": streamCounterID}).Decode(&counter)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read stream position: %w", err)
	}

	return counter.Value, nil
}

// Version returns the aggregate's head version, 0 when it has no events.
func (s *MongoEventStore) Version(ctx context.Context, aggregateID string) (int, error) {
	filter := bson.M{"aggregate_id": aggregateID}
	opts := options.FindOne().SetSort(bson.D{{Key: "version", Value: -1}})

	var doc EventDocument
	err := s.events.FindOne(ctx, filter, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get current version: %w", err)
	}

	return doc.Version, nil
}

// Clear drops all events, snapshots and counters, used in test teardown.
func (s *MongoEventStore) Clear(ctx context.Context) error {
	for _, coll := range []*mongo.Collection{s.events, s.snapshots, s.counters} {
		if _, err := coll.DeleteMany(ctx, bson.M{}); err != nil {
			return fmt.Errorf("failed to clear %s: %w", coll.Name(), err)
		}
	}
	return nil
}

// allocatePositions reserves count contiguous global stream positions and
// returns the first one.
func (s *MongoEventStore) allocatePositions(ctx context.Context, count int) (int, error) {
	filter := bson.M{"_id": streamCounterID}
	update := bson.M{"$inc": bson.M{"value": count}}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var counter struct {
		Value int `bson:"value"`
	}
	if err := s.counters.FindOneAndUpdate(ctx, filter, update, opts).Decode(&counter); err != nil {
		return 0, fmt.Errorf("failed to allocate stream positions: %w", err)
	}

	return counter.Value - count, nil
}

func (s *MongoEventStore) find(ctx context.Context, filter bson.M, sort bson.D, limit int) ([]cqrs.StoredEvent, error) {
	opts := options.Find().SetSort(sort)
	if limit > 0 {
		opts = opts.SetLimit(int64(limit))
	}

	cursor, err := s.events.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find events: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []*EventDocument
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode events: %w", err)
	}

	result := make([]cqrs.StoredEvent, 0, len(docs))
	for _, doc := range docs {
		stored, errDeserialize := s.serializer.Deserialize(doc)
		if errDeserialize != nil {
			return nil, errDeserialize
		}
		result = append(result, stored)
	}

	return result, nil
}

// Ensure MongoEventStore implements cqrs.EventStore.
var _ cqrs.EventStore = (*MongoEventStore)(nil)
