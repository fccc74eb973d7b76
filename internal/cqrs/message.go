// Package cqrs implements the command/query/event dispatch core and the
// event-sourcing primitives built on top of it: aggregate root, event store
// contract, repository and projection manager.
//
// Interfaces are declared here, on the consumer side; infrastructure
// packages provide the event store implementations.
package cqrs

import "context"

// Command is the marker interface for commands (state-changing requests).
// Each command type is dispatched to exactly one handler.
type Command interface {
	CommandName() string
}

// Query is the marker interface for queries (read-only requests)
type Query interface {
	QueryName() string
}

// CommandHandler executes a command and returns its result
type CommandHandler func(ctx context.Context, cmd Command) (any, error)

// QueryHandler executes a query and returns its result
type QueryHandler func(ctx context.Context, q Query) (any, error)

// CommandMiddleware wraps command execution. Middleware must call next to
// continue the chain; not calling it short-circuits execution.
type CommandMiddleware func(ctx context.Context, cmd Command, next func(ctx context.Context) (any, error)) (any, error)

// QueryMiddleware wraps query execution with the same chaining contract
// as CommandMiddleware.
type QueryMiddleware func(ctx context.Context, q Query, next func(ctx context.Context) (any, error)) (any, error)

// CommandExecutor is the part of the command bus the event bus needs to
// drive saga-emitted commands.
type CommandExecutor interface {
	Execute(ctx context.Context, cmd Command) (any, error)
}
