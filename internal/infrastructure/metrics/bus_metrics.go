// Package metrics provides Prometheus instrumentation for the CQRS buses.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lllypuk/eventra/internal/cqrs"
	"github.com/lllypuk/eventra/internal/domain/event"
)

// BusMetrics contains Prometheus metrics for command, query and event
// dispatch.
type BusMetrics struct {
	CommandsTotal   *prometheus.CounterVec
	CommandDuration *prometheus.HistogramVec
	QueriesTotal    *prometheus.CounterVec
	QueryDuration   *prometheus.HistogramVec
	EventsPublished *prometheus.CounterVec
}

// NewBusMetrics creates and registers bus metrics with the given
// registerer.
func NewBusMetrics(registerer prometheus.Registerer) *BusMetrics {
	m := &BusMetrics{
		CommandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventra_commands_total",
				Help: "Total number of executed commands",
			},
			[]string{"command", "status"}, // status: success/failed
		),
		CommandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "eventra_command_duration_seconds",
				Help:    "Command execution duration including middleware",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"command"},
		),
		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventra_queries_total",
				Help: "Total number of executed queries",
			},
			[]string{"query", "status"},
		),
		QueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "eventra_query_duration_seconds",
				Help:    "Query execution duration including middleware",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"query"},
		),
		EventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventra_events_published_total",
				Help: "Total number of published domain events",
			},
			[]string{"event_type"},
		),
	}

	registerer.MustRegister(
		m.CommandsTotal,
		m.CommandDuration,
		m.QueriesTotal,
		m.QueryDuration,
		m.EventsPublished,
	)

	return m
}

// CommandMiddleware instruments command execution. Install with
// bus.Use(...).
func (m *BusMetrics) CommandMiddleware() cqrs.CommandMiddleware {
	return func(ctx context.Context, cmd cqrs.Command, next func(ctx context.Context) (any, error)) (any, error) {
		start := time.Now()
		result, err := next(ctx)
		m.CommandDuration.WithLabelValues(cmd.CommandName()).Observe(time.Since(start).Seconds())

		status := "success"
		if err != nil {
			status = "failed"
		}
		m.CommandsTotal.WithLabelValues(cmd.CommandName(), status).Inc()

		return result, err
	}
}

// QueryMiddleware instruments query execution.
func (m *BusMetrics) QueryMiddleware() cqrs.QueryMiddleware {
	return func(ctx context.Context, q cqrs.Query, next func(ctx context.Context) (any, error)) (any, error) {
		start := time.Now()
		result, err := next(ctx)
		m.QueryDuration.WithLabelValues(q.QueryName()).Observe(time.Since(start).Seconds())

		status := "success"
		if err != nil {
			status = "failed"
		}
		m.QueriesTotal.WithLabelValues(q.QueryName(), status).Inc()

		return result, err
	}
}

// EventObserver returns a handler counting published events. Subscribe it
// to the event types of interest.
func (m *BusMetrics) EventObserver() cqrs.EventHandler {
	return func(_ context.Context, evt event.DomainEvent) error {
		m.EventsPublished.WithLabelValues(evt.EventType()).Inc()
		return nil
	}
}
