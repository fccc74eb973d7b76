package order

import (
	"github.com/lllypuk/eventra/internal/cqrs"
)

// Order event types.
const (
	EventTypePlaced    = "order.Placed"
	EventTypeItemAdded = "order.ItemAdded"
	EventTypeShipped   = "order.Shipped"
	EventTypeCancelled = "order.Cancelled"
)

// Placed is the payload of order.Placed.
type Placed struct {
	CustomerID string `json:"customer_id"`
	Items      []Item `json:"items"`
}

// ItemAdded is the payload of order.ItemAdded.
type ItemAdded struct {
	Item Item `json:"item"`
}

// Shipped is the payload of order.Shipped.
type Shipped struct {
	Carrier    string `json:"carrier"`
	TrackingID string `json:"tracking_id"`
}

// Cancelled is the payload of order.Cancelled.
type Cancelled struct {
	Reason string `json:"reason"`
}

// RegisterPayloads binds the order payload types to their event types so
// stores and relays can restore them.
func RegisterPayloads(registry *cqrs.Registry) {
	registry.Register(EventTypePlaced, func() any { return &Placed{} })
	registry.Register(EventTypeItemAdded, func() any { return &ItemAdded{} })
	registry.Register(EventTypeShipped, func() any { return &Shipped{} })
	registry.Register(EventTypeCancelled, func() any { return &Cancelled{} })
}
