package cqrs_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lllypuk/eventra/internal/cqrs"
	"github.com/lllypuk/eventra/internal/domain/event"
	"github.com/lllypuk/eventra/internal/infrastructure/eventstore"
)

type tallyState struct {
	Total int `json:"total"`
}

func tallyReducers() map[string]cqrs.ProjectionReducer {
	return map[string]cqrs.ProjectionReducer{
		"counter.Incremented": func(state any, evt cqrs.StoredEvent) any {
			s := state.(*tallyState)
			s.Total += evt.Event.Payload().(*incremented).By
			return s
		},
	}
}

func appendIncrements(t *testing.T, store cqrs.EventStore, aggregateID string, amounts ...int) {
	t.Helper()

	counter := newCounter(aggregateID)
	for _, by := range amounts {
		counter.Raise("counter.Incremented", &incremented{By: by}, event.Metadata{})
	}
	require.NoError(t, store.AppendEvents(
		context.Background(), aggregateID, "Counter", counter.UncommittedEvents(), cqrs.AnyVersion))
}

func TestProjectionManager_Register(t *testing.T) {
	t.Run("duplicate name fails", func(t *testing.T) {
		manager := cqrs.NewProjectionManager(eventstore.NewMemoryEventStore())

		require.NoError(t, manager.Register("tally", &tallyState{}, tallyReducers()))
		require.ErrorIs(t, manager.Register("tally", &tallyState{}, tallyReducers()),
			cqrs.ErrHandlerAlreadyRegistered)
	})

	t.Run("empty name fails", func(t *testing.T) {
		manager := cqrs.NewProjectionManager(eventstore.NewMemoryEventStore())

		require.Error(t, manager.Register("", &tallyState{}, nil))
	})

	t.Run("initial state is cloned at registration", func(t *testing.T) {
		manager := cqrs.NewProjectionManager(eventstore.NewMemoryEventStore())

		initial := &tallyState{Total: 7}
		require.NoError(t, manager.Register("tally", initial, tallyReducers()))

		initial.Total = 999

		state := manager.State("tally").(*tallyState)
		assert.Equal(t, 7, state.Total)
	})
}

func TestProjectionManager_Update(t *testing.T) {
	t.Run("folds new events through the reducers", func(t *testing.T) {
		store := eventstore.NewMemoryEventStore()
		manager := cqrs.NewProjectionManager(store)
		require.NoError(t, manager.Register("tally", &tallyState{}, tallyReducers()))

		appendIncrements(t, store, "c-1", 1, 2, 3)

		require.NoError(t, manager.Update(context.Background(), "tally"))

		state := manager.State("tally").(*tallyState)
		assert.Equal(t, 6, state.Total)
		assert.Equal(t, 3, manager.LastPosition("tally"))
	})

	t.Run("repeated update without new events changes nothing", func(t *testing.T) {
		store := eventstore.NewMemoryEventStore()
		manager := cqrs.NewProjectionManager(store)
		require.NoError(t, manager.Register("tally", &tallyState{}, tallyReducers()))

		appendIncrements(t, store, "c-1", 5)

		require.NoError(t, manager.Update(context.Background(), "tally"))
		require.NoError(t, manager.Update(context.Background(), "tally"))

		state := manager.State("tally").(*tallyState)
		assert.Equal(t, 5, state.Total)
		assert.Equal(t, 1, manager.LastPosition("tally"))
	})

	t.Run("checkpoint advances past unhandled event types", func(t *testing.T) {
		store := eventstore.NewMemoryEventStore()
		manager := cqrs.NewProjectionManager(store)
		require.NoError(t, manager.Register("tally", &tallyState{}, tallyReducers()))

		counter := newCounter("c-1")
		counter.Raise("counter.Incremented", &incremented{By: 2}, event.Metadata{})
		counter.Raise("counter.Labelled", &labelled{Label: "skip me"}, event.Metadata{})
		require.NoError(t, store.AppendEvents(
			context.Background(), "c-1", "Counter", counter.UncommittedEvents(), 0))

		require.NoError(t, manager.Update(context.Background(), "tally"))

		state := manager.State("tally").(*tallyState)
		assert.Equal(t, 2, state.Total)
		assert.Equal(t, 2, manager.LastPosition("tally"))
	})

	t.Run("unknown projection fails", func(t *testing.T) {
		manager := cqrs.NewProjectionManager(eventstore.NewMemoryEventStore())

		require.ErrorIs(t, manager.Update(context.Background(), "missing"), cqrs.ErrHandlerNotFound)
	})

	t.Run("update picks up events across aggregates", func(t *testing.T) {
		store := eventstore.NewMemoryEventStore()
		manager := cqrs.NewProjectionManager(store)
		require.NoError(t, manager.Register("tally", &tallyState{}, tallyReducers()))

		appendIncrements(t, store, "c-1", 1)
		appendIncrements(t, store, "c-2", 10)

		require.NoError(t, manager.Update(context.Background(), "tally"))

		state := manager.State("tally").(*tallyState)
		assert.Equal(t, 11, state.Total)
	})
}

func TestProjectionManager_Reset(t *testing.T) {
	t.Run("restores initial state and checkpoint", func(t *testing.T) {
		store := eventstore.NewMemoryEventStore()
		manager := cqrs.NewProjectionManager(store)
		require.NoError(t, manager.Register("tally", &tallyState{}, tallyReducers()))

		appendIncrements(t, store, "c-1", 4)
		require.NoError(t, manager.Update(context.Background(), "tally"))

		require.NoError(t, manager.Reset("tally"))

		state := manager.State("tally").(*tallyState)
		assert.Equal(t, 0, state.Total)
		assert.Equal(t, 0, manager.LastPosition("tally"))

		// A fresh update replays the stream from the start.
		require.NoError(t, manager.Update(context.Background(), "tally"))
		assert.Equal(t, 4, manager.State("tally").(*tallyState).Total)
	})

	t.Run("unknown projection fails", func(t *testing.T) {
		manager := cqrs.NewProjectionManager(eventstore.NewMemoryEventStore())

		require.ErrorIs(t, manager.Reset("missing"), cqrs.ErrHandlerNotFound)
	})
}

func TestProjectionManager_State(t *testing.T) {
	t.Run("returns an independent copy", func(t *testing.T) {
		store := eventstore.NewMemoryEventStore()
		manager := cqrs.NewProjectionManager(store)
		require.NoError(t, manager.Register("tally", &tallyState{}, tallyReducers()))

		appendIncrements(t, store, "c-1", 3)
		require.NoError(t, manager.Update(context.Background(), "tally"))

		first := manager.State("tally").(*tallyState)
		first.Total = 999

		second := manager.State("tally").(*tallyState)
		assert.Equal(t, 3, second.Total)
		assert.NotSame(t, first, second)
	})

	t.Run("later updates do not touch earlier copies", func(t *testing.T) {
		store := eventstore.NewMemoryEventStore()
		manager := cqrs.NewProjectionManager(store)
		require.NoError(t, manager.Register("tally", &tallyState{}, tallyReducers()))

		appendIncrements(t, store, "c-1", 1)
		require.NoError(t, manager.Update(context.Background(), "tally"))
		before := manager.State("tally").(*tallyState)

		appendIncrements(t, store, "c-2", 10)
		require.NoError(t, manager.Update(context.Background(), "tally"))

		assert.Equal(t, 1, before.Total)
		assert.Equal(t, 11, manager.State("tally").(*tallyState).Total)
	})
}

func TestProjectionManager_Lookups(t *testing.T) {
	manager := cqrs.NewProjectionManager(eventstore.NewMemoryEventStore())

	assert.Nil(t, manager.State("missing"))
	assert.Equal(t, -1, manager.LastPosition("missing"))
}
