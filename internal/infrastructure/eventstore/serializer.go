package eventstore

import (
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/lllypuk/eventra/internal/cqrs"
	"github.com/lllypuk/eventra/internal/domain/event"
)

var eventJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// EventDocument is the MongoDB representation of a stored event.
type EventDocument struct {
	ID bson.ObjectID `bson:"_id,omitempty"`

	EventID       string                `bson:"event_id"`
	AggregateID   string                `bson:"aggregate_id"`
	AggregateType string                `bson:"aggregate_type"`
	EventType     string                `bson:"event_type"`
	Version       int                   `bson:"version"`
	Position      int                   `bson:"position"`
	Payload       []byte                `bson:"payload"`
	Metadata      EventMetadataDocument `bson:"metadata"`
	OccurredAt    time.Time             `bson:"occurred_at"`
	CreatedAt     time.Time             `bson:"created_at"`
}

// EventMetadataDocument is the MongoDB representation of event metadata.
type EventMetadataDocument struct {
	Timestamp     time.Time `bson:"timestamp"`
	UserID        string    `bson:"user_id,omitempty"`
	CorrelationID string    `bson:"correlation_id"`
	CausationID   string    `bson:"causation_id,omitempty"`
}

// SnapshotDocument is the MongoDB representation of an aggregate snapshot.
type SnapshotDocument struct {
	AggregateID string    `bson:"_id"`
	Version     int       `bson:"version"`
	State       []byte    `bson:"state"`
	TakenAt     time.Time `bson:"taken_at"`
}

// Serializer converts between stored events and their MongoDB documents.
// Payloads travel as JSON bytes; the registry restores their concrete
// types on the way back.
type Serializer struct {
	registry *cqrs.Registry
}

// NewSerializer creates a serializer over a payload registry.
func NewSerializer(registry *cqrs.Registry) *Serializer {
	return &Serializer{registry: registry}
}

// Serialize converts a stored event into its MongoDB document.
func (s *Serializer) Serialize(stored cqrs.StoredEvent) (*EventDocument, error) {
	payload, err := eventJSON.Marshal(stored.Event.Payload())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload of event %s: %w", stored.ID, err)
	}

	metadata := stored.Event.Metadata()

	return &EventDocument{
		EventID:       stored.ID,
		AggregateID:   stored.AggregateID,
		AggregateType: stored.AggregateType,
		EventType:     stored.EventType,
		Version:       stored.Version,
		Position:      stored.Position,
		Payload:       payload,
		Metadata: EventMetadataDocument{
			Timestamp:     metadata.Timestamp,
			UserID:        metadata.UserID,
			CorrelationID: metadata.CorrelationID,
			CausationID:   metadata.CausationID,
		},
		OccurredAt: stored.Event.OccurredAt(),
		CreatedAt:  time.Now(),
	}, nil
}

// SerializeMany converts a batch of stored events.
func (s *Serializer) SerializeMany(stored []cqrs.StoredEvent) ([]*EventDocument, error) {
	documents := make([]*EventDocument, 0, len(stored))
	for _, se := range stored {
		doc, err := s.Serialize(se)
		if err != nil {
			return nil, err
		}
		documents = append(documents, doc)
	}
	return documents, nil
}

// Deserialize rebuilds a stored event from its MongoDB document, restoring
// the payload's concrete type when the event type is registered.
func (s *Serializer) Deserialize(doc *EventDocument) (cqrs.StoredEvent, error) {
	payload, err := s.deserializePayload(doc.EventType, doc.Payload)
	if err != nil {
		return cqrs.StoredEvent{}, fmt.Errorf("failed to deserialize event %s: %w", doc.EventID, err)
	}

	metadata := event.Metadata{
		Timestamp:     doc.Metadata.Timestamp,
		UserID:        doc.Metadata.UserID,
		CorrelationID: doc.Metadata.CorrelationID,
		CausationID:   doc.Metadata.CausationID,
	}

	evt := event.Hydrate(
		doc.EventType,
		doc.AggregateID,
		doc.AggregateType,
		doc.Version,
		doc.OccurredAt,
		payload,
		metadata,
	)

	return cqrs.StoredEvent{
		ID:            doc.EventID,
		AggregateID:   doc.AggregateID,
		AggregateType: doc.AggregateType,
		EventType:     doc.EventType,
		Version:       doc.Version,
		Position:      doc.Position,
		Event:         evt,
	}, nil
}

func (s *Serializer) deserializePayload(eventType string, raw []byte) (any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	if payload, registered := s.registry.New(eventType); registered {
		if err := eventJSON.Unmarshal(raw, payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payload as %T: %w", payload, err)
		}
		return payload, nil
	}

	var generic map[string]any
	if err := eventJSON.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload as map: %w", err)
	}
	return generic, nil
}
