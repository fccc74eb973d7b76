package metrics_test

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lllypuk/eventra/internal/cqrs"
	"github.com/lllypuk/eventra/internal/domain/event"
	"github.com/lllypuk/eventra/internal/infrastructure/metrics"
)

type pingCommand struct{}

func (pingCommand) CommandName() string { return "test.Ping" }

type pingQuery struct{}

func (pingQuery) QueryName() string { return "test.PingQuery" }

func TestBusMetrics_CommandMiddleware(t *testing.T) {
	m := metrics.NewBusMetrics(prometheus.NewRegistry())

	commands := cqrs.NewCommandBus()
	commands.Use(m.CommandMiddleware())

	fail := false
	require.NoError(t, commands.Register("test.Ping", func(_ context.Context, _ cqrs.Command) (any, error) {
		if fail {
			return nil, errors.New("boom")
		}
		return "pong", nil
	}))

	_, err := commands.Execute(context.Background(), pingCommand{})
	require.NoError(t, err)

	fail = true
	_, err = commands.Execute(context.Background(), pingCommand{})
	require.Error(t, err)

	assert.InDelta(t, 1.0,
		testutil.ToFloat64(m.CommandsTotal.WithLabelValues("test.Ping", "success")), 0)
	assert.InDelta(t, 1.0,
		testutil.ToFloat64(m.CommandsTotal.WithLabelValues("test.Ping", "failed")), 0)
}

func TestBusMetrics_QueryMiddleware(t *testing.T) {
	m := metrics.NewBusMetrics(prometheus.NewRegistry())

	queries := cqrs.NewQueryBus()
	queries.Use(m.QueryMiddleware())

	require.NoError(t, queries.Register("test.PingQuery", func(_ context.Context, _ cqrs.Query) (any, error) {
		return 42, nil
	}))

	_, err := queries.Execute(context.Background(), pingQuery{})
	require.NoError(t, err)
	_, err = queries.Execute(context.Background(), pingQuery{})
	require.NoError(t, err)

	assert.InDelta(t, 2.0,
		testutil.ToFloat64(m.QueriesTotal.WithLabelValues("test.PingQuery", "success")), 0)
}

func TestBusMetrics_EventObserver(t *testing.T) {
	m := metrics.NewBusMetrics(prometheus.NewRegistry())

	bus := cqrs.NewEventBus()
	_, err := bus.Subscribe("test.Happened", m.EventObserver())
	require.NoError(t, err)

	evt := event.NewEvent("test.Happened", "a-1", "Test", 1, nil, event.NewMetadata("", "", ""))
	require.NoError(t, bus.Publish(context.Background(), evt))
	require.NoError(t, bus.Publish(context.Background(), evt))

	assert.InDelta(t, 2.0,
		testutil.ToFloat64(m.EventsPublished.WithLabelValues("test.Happened")), 0)
}

func TestNewBusMetrics_RegistersCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics.NewBusMetrics(registry)

	families, err := registry.Gather()
	require.NoError(t, err)
	// Unused vectors gather empty, so registration is asserted through
	// double registration panicking.
	assert.Empty(t, families)
	assert.Panics(t, func() { metrics.NewBusMetrics(registry) })
}
