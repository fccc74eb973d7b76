package eventstore_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lllypuk/eventra/internal/cqrs"
	"github.com/lllypuk/eventra/internal/domain/event"
	"github.com/lllypuk/eventra/internal/infrastructure/eventstore"
)

func TestSerializer_RoundTrip(t *testing.T) {
	t.Run("registered payload keeps its concrete type", func(t *testing.T) {
		registry := cqrs.NewRegistry()
		registry.Register("account.Opened", func() any { return &opened{} })
		serializer := eventstore.NewSerializer(registry)

		occurredAt := time.Now().UTC().Truncate(time.Millisecond)
		evt := event.Hydrate("account.Opened", "a-1", "Account", 1, occurredAt,
			&opened{Owner: "alice"}, event.NewMetadata("tester", "corr-1", "cause-1"))
		stored := cqrs.StoredEvent{
			ID:            cqrs.StoredEventID("a-1", 1),
			AggregateID:   "a-1",
			AggregateType: "Account",
			EventType:     "account.Opened",
			Version:       1,
			Position:      7,
			Event:         evt,
		}

		doc, err := serializer.Serialize(stored)
		require.NoError(t, err)
		restored, err := serializer.Deserialize(doc)
		require.NoError(t, err)

		assert.Equal(t, stored.ID, restored.ID)
		assert.Equal(t, 7, restored.Position)
		assert.Equal(t, 1, restored.Event.Version())
		assert.Equal(t, occurredAt, restored.Event.OccurredAt())
		assert.Equal(t, "corr-1", restored.Event.Metadata().CorrelationID)

		payload, ok := restored.Event.Payload().(*opened)
		require.True(t, ok)
		assert.Equal(t, "alice", payload.Owner)
	})

	t.Run("unregistered payload falls back to a map", func(t *testing.T) {
		serializer := eventstore.NewSerializer(cqrs.NewRegistry())

		evt := event.NewEvent("account.Opened", "a-1", "Account", 1,
			&opened{Owner: "bob"}, event.Metadata{})
		doc, err := serializer.Serialize(cqrs.StoredEvent{
			ID: "a-1-1", AggregateID: "a-1", AggregateType: "Account",
			EventType: "account.Opened", Version: 1, Event: evt,
		})
		require.NoError(t, err)

		restored, err := serializer.Deserialize(doc)
		require.NoError(t, err)

		payload, ok := restored.Event.Payload().(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "bob", payload["owner"])
	})

	t.Run("nil payload stays nil", func(t *testing.T) {
		serializer := eventstore.NewSerializer(cqrs.NewRegistry())

		evt := event.NewEvent("account.Touched", "a-1", "Account", 1, nil, event.Metadata{})
		doc, err := serializer.Serialize(cqrs.StoredEvent{
			ID: "a-1-1", AggregateID: "a-1", AggregateType: "Account",
			EventType: "account.Touched", Version: 1, Event: evt,
		})
		require.NoError(t, err)

		restored, err := serializer.Deserialize(doc)
		require.NoError(t, err)
		assert.Nil(t, restored.Event.Payload())
	})
}

func TestSerializer_SerializeMany(t *testing.T) {
	serializer := eventstore.NewSerializer(cqrs.NewRegistry())

	events := makeEvents("a-1", 1, 3)
	stored := make([]cqrs.StoredEvent, len(events))
	for i, evt := range events {
		stored[i] = cqrs.StoredEvent{
			ID:            cqrs.StoredEventID("a-1", evt.Version()),
			AggregateID:   "a-1",
			AggregateType: "Account",
			EventType:     evt.EventType(),
			Version:       evt.Version(),
			Position:      i,
			Event:         evt,
		}
	}

	docs, err := serializer.SerializeMany(stored)
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, 2, docs[1].Version)
}
