// Package order implements the order aggregate, the reference domain of
// the CQRS core.
package order

import (
	"github.com/lllypuk/eventra/internal/cqrs"
	"github.com/lllypuk/eventra/internal/domain/errs"
	"github.com/lllypuk/eventra/internal/domain/event"
	"github.com/lllypuk/eventra/internal/domain/uuid"
)

// AggregateType names the order aggregate in the event store.
const AggregateType = "Order"

// Status is the order lifecycle status.
type Status string

// Order statuses.
const (
	StatusPlaced    Status = "placed"
	StatusShipped   Status = "shipped"
	StatusCancelled Status = "cancelled"
)

// Item is one order line.
type Item struct {
	SKU       string `json:"sku"`
	Quantity  int    `json:"quantity"`
	UnitCents int64  `json:"unit_cents"`
}

// State is the folded order state.
type State struct {
	CustomerID string `json:"customer_id"`
	Status     Status `json:"status"`
	Items      []Item `json:"items"`
	TotalCents int64  `json:"total_cents"`
	Carrier    string `json:"carrier,omitempty"`
	TrackingID string `json:"tracking_id,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// Aggregate is the event-sourced order.
type Aggregate struct {
	*cqrs.Root[State]
}

// NewAggregate creates an empty order aggregate for an ID.
func NewAggregate(id uuid.UUID) *Aggregate {
	return &Aggregate{
		Root: cqrs.NewRoot(id.String(), AggregateType, State{}, reduce),
	}
}

// Place creates the order. Fails if the order already exists or has no
// items.
func (a *Aggregate) Place(customerID uuid.UUID, items []Item, metadata event.Metadata) error {
	if a.Version() > 0 {
		return errs.ErrAlreadyExists
	}
	if customerID.IsZero() || len(items) == 0 {
		return errs.ErrInvalidInput
	}
	for _, item := range items {
		if item.SKU == "" || item.Quantity <= 0 {
			return errs.ErrInvalidInput
		}
	}

	a.Raise(EventTypePlaced, &Placed{
		CustomerID: customerID.String(),
		Items:      items,
	}, metadata)

	return nil
}

// AddItem appends a line to a placed order.
func (a *Aggregate) AddItem(item Item, metadata event.Metadata) error {
	if a.Version() == 0 {
		return errs.ErrNotFound
	}
	if a.State().Status != StatusPlaced {
		return errs.ErrInvalidTransition
	}
	if item.SKU == "" || item.Quantity <= 0 {
		return errs.ErrInvalidInput
	}

	a.Raise(EventTypeItemAdded, &ItemAdded{Item: item}, metadata)

	return nil
}

// Ship marks a placed order shipped.
func (a *Aggregate) Ship(carrier, trackingID string, metadata event.Metadata) error {
	if a.Version() == 0 {
		return errs.ErrNotFound
	}
	if a.State().Status != StatusPlaced {
		return errs.ErrInvalidTransition
	}
	if carrier == "" {
		return errs.ErrInvalidInput
	}

	a.Raise(EventTypeShipped, &Shipped{
		Carrier:    carrier,
		TrackingID: trackingID,
	}, metadata)

	return nil
}

// Cancel cancels an order that has not shipped. Cancelling a cancelled
// order is idempotent and raises nothing.
func (a *Aggregate) Cancel(reason string, metadata event.Metadata) error {
	if a.Version() == 0 {
		return errs.ErrNotFound
	}
	switch a.State().Status {
	case StatusCancelled:
		return nil
	case StatusShipped:
		return errs.ErrInvalidTransition
	case StatusPlaced:
	}

	a.Raise(EventTypeCancelled, &Cancelled{Reason: reason}, metadata)

	return nil
}

// reduce folds one event into the order state.
func reduce(state State, evt event.DomainEvent) State {
	switch payload := evt.Payload().(type) {
	case *Placed:
		state.CustomerID = payload.CustomerID
		state.Status = StatusPlaced
		state.Items = payload.Items
		state.TotalCents = total(payload.Items)

	case *ItemAdded:
		state.Items = append(state.Items, payload.Item)
		state.TotalCents += int64(payload.Item.Quantity) * payload.Item.UnitCents

	case *Shipped:
		state.Status = StatusShipped
		state.Carrier = payload.Carrier
		state.TrackingID = payload.TrackingID

	case *Cancelled:
		state.Status = StatusCancelled
		state.Reason = payload.Reason
	}

	return state
}

func total(items []Item) int64 {
	var sum int64
	for _, item := range items {
		sum += int64(item.Quantity) * item.UnitCents
	}
	return sum
}
