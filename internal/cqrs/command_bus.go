package cqrs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// CommandBus routes commands to their registered handler through an onion
// middleware chain. One handler per command name; duplicate registration is
// a programmer error and fails immediately.
type CommandBus struct {
	mu         sync.RWMutex
	handlers   map[string]CommandHandler
	middleware []CommandMiddleware
	logger     *slog.Logger
}

// CommandBusOption configures a CommandBus.
type CommandBusOption func(*CommandBus)

// WithCommandBusLogger sets the logger for the command bus.
func WithCommandBusLogger(logger *slog.Logger) CommandBusOption {
	return func(b *CommandBus) {
		b.logger = logger
	}
}

// NewCommandBus creates a new command bus.
func NewCommandBus(opts ...CommandBusOption) *CommandBus {
	b := &CommandBus{
		handlers: make(map[string]CommandHandler),
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Register binds a handler to a command name.
// Returns ErrHandlerAlreadyRegistered if the name is taken.
func (b *CommandBus) Register(commandName string, handler CommandHandler) error {
	if commandName == "" {
		return fmt.Errorf("command name cannot be empty")
	}
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.handlers[commandName]; exists {
		return fmt.Errorf("command %q: %w", commandName, ErrHandlerAlreadyRegistered)
	}

	b.handlers[commandName] = handler

	return nil
}

// Unregister removes the handler for a command name, if any.
func (b *CommandBus) Unregister(commandName string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.handlers, commandName)
}

// Use appends a middleware to the chain. Middleware run in registration
// order, outermost first.
func (b *CommandBus) Use(mw CommandMiddleware) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.middleware = append(b.middleware, mw)
}

// Execute dispatches a command through the middleware chain to its handler
// and returns the handler's result unmodified.
func (b *CommandBus) Execute(ctx context.Context, cmd Command) (any, error) {
	b.mu.RLock()
	handler, exists := b.handlers[cmd.CommandName()]
	middleware := make([]CommandMiddleware, len(b.middleware))
	copy(middleware, b.middleware)
	b.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("command %q: %w", cmd.CommandName(), ErrHandlerNotFound)
	}

	invoke := func(ctx context.Context) (any, error) {
		return handler(ctx, cmd)
	}

	for i := len(middleware) - 1; i >= 0; i-- {
		mw := middleware[i]
		next := invoke
		invoke = func(ctx context.Context) (any, error) {
			return mw(ctx, cmd, next)
		}
	}

	result, err := invoke(ctx)
	if err != nil {
		b.logger.DebugContext(ctx, "command execution failed",
			slog.String("command", cmd.CommandName()),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	return result, nil
}

// Ensure CommandBus satisfies the executor contract used by the event bus.
var _ CommandExecutor = (*CommandBus)(nil)
