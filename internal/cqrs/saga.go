package cqrs

import (
	"context"

	"github.com/lllypuk/eventra/internal/domain/event"
)

// Reaction is a single follow-up message emitted by a saga: either a
// command for the command bus or an event to republish. Exactly one of the
// two fields is set.
type Reaction struct {
	Command Command
	Event   event.DomainEvent
}

// ReactCommand wraps a command as a saga reaction.
func ReactCommand(cmd Command) Reaction {
	return Reaction{Command: cmd}
}

// ReactEvent wraps an event as a saga reaction.
func ReactEvent(evt event.DomainEvent) Reaction {
	return Reaction{Event: evt}
}

// Saga is a process manager reacting to published events with a finite,
// materialized list of follow-up commands and events. The event bus drains
// the list sequentially within the originating Publish call: commands go to
// the command bus, events are republished recursively.
type Saga interface {
	// SagaName identifies the saga in logs.
	SagaName() string

	// React returns the follow-up messages for an event, in emission order.
	// Returning an empty slice means the saga ignores the event.
	React(ctx context.Context, evt event.DomainEvent) ([]Reaction, error)
}
