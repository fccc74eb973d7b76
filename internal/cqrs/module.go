package cqrs

import (
	"log/slog"
)

// Module bundles one application instance's buses, store and projection
// manager. There are no package-level singletons; collaborators receive
// the module explicitly from the composition root.
type Module struct {
	Commands    *CommandBus
	Queries     *QueryBus
	Events      *EventBus
	Store       EventStore
	Projections *ProjectionManager
}

// ModuleOption configures a Module.
type ModuleOption func(*moduleConfig)

type moduleConfig struct {
	logger         *slog.Logger
	maxHistorySize int
}

// WithModuleLogger sets the logger for every component in the module.
func WithModuleLogger(logger *slog.Logger) ModuleOption {
	return func(c *moduleConfig) {
		c.logger = logger
	}
}

// WithModuleMaxHistorySize bounds the event bus history.
func WithModuleMaxHistorySize(size int) ModuleOption {
	return func(c *moduleConfig) {
		c.maxHistorySize = size
	}
}

// NewModule wires a command bus, query bus, event bus and projection
// manager around an event store. Saga-emitted commands re-enter the
// command bus.
func NewModule(store EventStore, opts ...ModuleOption) *Module {
	cfg := &moduleConfig{
		logger:         slog.Default(),
		maxHistorySize: defaultMaxHistorySize,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	commands := NewCommandBus(WithCommandBusLogger(cfg.logger))
	queries := NewQueryBus(WithQueryBusLogger(cfg.logger))
	events := NewEventBus(
		WithEventBusLogger(cfg.logger),
		WithMaxHistorySize(cfg.maxHistorySize),
		WithCommandExecutor(commands),
	)

	return &Module{
		Commands:    commands,
		Queries:     queries,
		Events:      events,
		Store:       store,
		Projections: NewProjectionManager(store, WithProjectionLogger(cfg.logger)),
	}
}
