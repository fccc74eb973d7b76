package cqrs

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/lllypuk/eventra/internal/domain/event"
)

// Default event bus configuration.
const defaultMaxHistorySize = 1000

// EventHandler is a function that handles domain events.
type EventHandler func(ctx context.Context, evt event.DomainEvent) error

// Subscription identifies one Subscribe call. Pass it back to Unsubscribe
// to remove exactly that handler. The zero value identifies nothing.
type Subscription struct {
	eventType string
	id        uint64
}

// EventType returns the event type this subscription listens for.
func (s Subscription) EventType() string { return s.eventType }

// subscription pairs a handler with its token id; kept in registration
// order so fan-out order is deterministic.
type subscription struct {
	id      uint64
	handler EventHandler
}

// HistoryFilter selects events from the bus history. Zero fields match
// everything.
type HistoryFilter struct {
	EventType   string
	AggregateID string
}

// EventBus fans published events out to subscribed handlers and drives
// registered sagas. Handler and saga failures are logged and swallowed;
// they never surface to the publisher. A bounded FIFO history of published
// events is kept for inspection.
type EventBus struct {
	handlersMu sync.RWMutex
	handlers   map[string][]subscription
	nextSubID  uint64

	sagasMu sync.RWMutex
	sagas   []Saga

	historyMu      sync.Mutex
	history        []event.DomainEvent
	maxHistorySize int

	commandsMu sync.RWMutex
	commands   CommandExecutor

	logger *slog.Logger
}

// EventBusOption configures an EventBus.
type EventBusOption func(*EventBus)

// WithEventBusLogger sets the logger for the event bus.
func WithEventBusLogger(logger *slog.Logger) EventBusOption {
	return func(b *EventBus) {
		b.logger = logger
	}
}

// WithMaxHistorySize bounds the in-memory event history.
func WithMaxHistorySize(size int) EventBusOption {
	return func(b *EventBus) {
		if size > 0 {
			b.maxHistorySize = size
		}
	}
}

// WithCommandExecutor wires the command bus sagas emit commands to.
// Without it, saga-emitted commands are dropped with a warning.
func WithCommandExecutor(executor CommandExecutor) EventBusOption {
	return func(b *EventBus) {
		b.commands = executor
	}
}

// NewEventBus creates a new event bus.
func NewEventBus(opts ...EventBusOption) *EventBus {
	b := &EventBus{
		handlers:       make(map[string][]subscription),
		maxHistorySize: defaultMaxHistorySize,
		logger:         slog.Default(),
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Subscribe registers an event handler for an event type and returns a
// token for Unsubscribe. Every subscription is invoked on publish, even
// when the same function value is subscribed more than once.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) (Subscription, error) {
	if eventType == "" {
		return Subscription{}, errors.New("event type cannot be empty")
	}
	if handler == nil {
		return Subscription{}, errors.New("handler cannot be nil")
	}

	b.handlersMu.Lock()
	defer b.handlersMu.Unlock()

	b.nextSubID++
	sub := Subscription{eventType: eventType, id: b.nextSubID}
	b.handlers[eventType] = append(b.handlers[eventType], subscription{id: sub.id, handler: handler})

	return sub, nil
}

// Unsubscribe removes the handler identified by the token. Unknown or
// zero tokens are ignored.
func (b *EventBus) Unsubscribe(sub Subscription) {
	if sub.id == 0 {
		return
	}

	b.handlersMu.Lock()
	defer b.handlersMu.Unlock()

	subs, exists := b.handlers[sub.eventType]
	if !exists {
		return
	}

	for i, s := range subs {
		if s.id == sub.id {
			subs = append(subs[:i], subs[i+1:]...)
			break
		}
	}

	if len(subs) == 0 {
		delete(b.handlers, sub.eventType)
	} else {
		b.handlers[sub.eventType] = subs
	}
}

// RegisterSaga appends a saga. Sagas run in registration order.
func (b *EventBus) RegisterSaga(saga Saga) {
	if saga == nil {
		return
	}

	b.sagasMu.Lock()
	defer b.sagasMu.Unlock()

	b.sagas = append(b.sagas, saga)
}

// Publish records the event in the history, fans it out to every handler
// subscribed to its type and then runs the sagas sequentially. Each saga's
// reactions are fully drained, including recursive publishes, before the
// next saga starts. Handler and saga failures never fail the publish.
func (b *EventBus) Publish(ctx context.Context, evt event.DomainEvent) error {
	if evt == nil {
		return errors.New("event cannot be nil")
	}

	b.recordHistory(evt)

	b.handlersMu.RLock()
	handlers := make([]EventHandler, 0, len(b.handlers[evt.EventType()]))
	for _, s := range b.handlers[evt.EventType()] {
		handlers = append(handlers, s.handler)
	}
	b.handlersMu.RUnlock()

	for _, handler := range handlers {
		b.invokeHandler(ctx, handler, evt)
	}

	b.sagasMu.RLock()
	sagas := make([]Saga, len(b.sagas))
	copy(sagas, b.sagas)
	b.sagasMu.RUnlock()

	for _, saga := range sagas {
		b.runSaga(ctx, saga, evt)
	}

	return nil
}

// PublishAll publishes events strictly in slice order, each one fully
// processed before the next begins.
func (b *EventBus) PublishAll(ctx context.Context, events []event.DomainEvent) error {
	for _, evt := range events {
		if err := b.Publish(ctx, evt); err != nil {
			return err
		}
	}
	return nil
}

// History returns the bounded event history in publish order, optionally
// filtered. The returned slice is a copy.
func (b *EventBus) History(filter *HistoryFilter) []event.DomainEvent {
	b.historyMu.Lock()
	defer b.historyMu.Unlock()

	result := make([]event.DomainEvent, 0, len(b.history))
	for _, evt := range b.history {
		if filter != nil {
			if filter.EventType != "" && evt.EventType() != filter.EventType {
				continue
			}
			if filter.AggregateID != "" && evt.AggregateID() != filter.AggregateID {
				continue
			}
		}
		result = append(result, evt)
	}

	return result
}

// ClearHistory drops the event history, used in test teardown.
func (b *EventBus) ClearHistory() {
	b.historyMu.Lock()
	defer b.historyMu.Unlock()

	b.history = nil
}

// HandlerCount returns the number of handlers subscribed to an event type.
func (b *EventBus) HandlerCount(eventType string) int {
	b.handlersMu.RLock()
	defer b.handlersMu.RUnlock()

	return len(b.handlers[eventType])
}

func (b *EventBus) recordHistory(evt event.DomainEvent) {
	b.historyMu.Lock()
	defer b.historyMu.Unlock()

	b.history = append(b.history, evt)
	if len(b.history) > b.maxHistorySize {
		b.history = b.history[len(b.history)-b.maxHistorySize:]
	}
}

// invokeHandler isolates one handler call: errors and panics are logged,
// never propagated.
func (b *EventBus) invokeHandler(ctx context.Context, handler EventHandler, evt event.DomainEvent) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.ErrorContext(ctx, "event handler panicked",
				slog.String("event_type", evt.EventType()),
				slog.String("aggregate_id", evt.AggregateID()),
				slog.Any("panic", r),
			)
		}
	}()

	if err := handler(ctx, evt); err != nil {
		b.logger.ErrorContext(ctx, "event handler failed",
			slog.String("event_type", evt.EventType()),
			slog.String("aggregate_id", evt.AggregateID()),
			slog.String("error", err.Error()),
		)
	}
}

// runSaga drains one saga's reactions for one event. Saga failures are
// logged and do not abort other sagas.
func (b *EventBus) runSaga(ctx context.Context, saga Saga, evt event.DomainEvent) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.ErrorContext(ctx, "saga panicked",
				slog.String("saga", saga.SagaName()),
				slog.String("event_type", evt.EventType()),
				slog.Any("panic", r),
			)
		}
	}()

	reactions, err := saga.React(ctx, evt)
	if err != nil {
		b.logger.ErrorContext(ctx, "saga failed",
			slog.String("saga", saga.SagaName()),
			slog.String("event_type", evt.EventType()),
			slog.String("error", err.Error()),
		)
		return
	}

	executor := b.commandExecutor()

	for _, reaction := range reactions {
		switch {
		case reaction.Command != nil:
			if executor == nil {
				b.logger.WarnContext(ctx, "saga emitted a command but no command executor is wired",
					slog.String("saga", saga.SagaName()),
					slog.String("command", reaction.Command.CommandName()),
				)
				continue
			}
			if _, cmdErr := executor.Execute(ctx, reaction.Command); cmdErr != nil {
				b.logger.ErrorContext(ctx, "saga-emitted command failed",
					slog.String("saga", saga.SagaName()),
					slog.String("command", reaction.Command.CommandName()),
					slog.String("error", cmdErr.Error()),
				)
			}
		case reaction.Event != nil:
			if pubErr := b.Publish(ctx, reaction.Event); pubErr != nil {
				b.logger.ErrorContext(ctx, "saga-emitted event publish failed",
					slog.String("saga", saga.SagaName()),
					slog.String("event_type", reaction.Event.EventType()),
					slog.String("error", pubErr.Error()),
				)
			}
		default:
			b.logger.WarnContext(ctx, "saga emitted an empty reaction",
				slog.String("saga", saga.SagaName()),
				slog.String("event_type", evt.EventType()),
			)
		}
	}
}

// SetCommandExecutor wires the command bus after construction, for wiring
// orders where the event bus is built first. Safe to call while sagas run.
func (b *EventBus) SetCommandExecutor(executor CommandExecutor) {
	b.commandsMu.Lock()
	defer b.commandsMu.Unlock()

	b.commands = executor
}

func (b *EventBus) commandExecutor() CommandExecutor {
	b.commandsMu.RLock()
	defer b.commandsMu.RUnlock()

	return b.commands
}
