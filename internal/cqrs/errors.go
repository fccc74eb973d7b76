package cqrs

import (
	"errors"
	"fmt"
)

// Core dispatch and event-sourcing errors.
var (
	// ErrHandlerNotFound is returned when no handler is registered for a
	// command or query type
	ErrHandlerNotFound = errors.New("handler not found")

	// ErrHandlerAlreadyRegistered is returned on duplicate registration
	ErrHandlerAlreadyRegistered = errors.New("handler already registered")

	// ErrAggregateNotFound is returned when the aggregate is not found
	ErrAggregateNotFound = errors.New("aggregate not found")

	// ErrSnapshotNotFound is returned when no snapshot exists for an aggregate
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrConcurrencyConflict is returned on version conflict (optimistic locking)
	ErrConcurrencyConflict = errors.New("concurrency conflict detected")

	// ErrEventLimitExceeded is returned when an append would grow an
	// aggregate's log past the configured maximum
	ErrEventLimitExceeded = errors.New("aggregate event limit exceeded")
)

// ConcurrencyError reports a stale expectedVersion on append. It matches
// ErrConcurrencyConflict through errors.Is and carries both versions for
// diagnostics.
type ConcurrencyError struct {
	AggregateID string
	Expected    int
	Actual      int
}

func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf(
		"concurrency conflict on aggregate %s: expected version %d, actual %d",
		e.AggregateID, e.Expected, e.Actual,
	)
}

// Is makes errors.Is(err, ErrConcurrencyConflict) match
func (e *ConcurrencyError) Is(target error) bool {
	return target == ErrConcurrencyConflict
}

// NewConcurrencyError creates a ConcurrencyError
func NewConcurrencyError(aggregateID string, expected, actual int) error {
	return &ConcurrencyError{
		AggregateID: aggregateID,
		Expected:    expected,
		Actual:      actual,
	}
}
