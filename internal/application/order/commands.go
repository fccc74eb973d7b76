// Package order wires the order domain to the CQRS buses: command and
// query handlers, the order statistics projection and the fulfillment
// saga.
package order

import (
	"github.com/lllypuk/eventra/internal/domain/order"
)

// Command names.
const (
	CommandPlaceOrder   = "order.Place"
	CommandAddOrderItem = "order.AddItem"
	CommandShipOrder    = "order.Ship"
	CommandCancelOrder  = "order.Cancel"
)

// PlaceOrder creates a new order.
type PlaceOrder struct {
	OrderID    string       `json:"order_id"`
	CustomerID string       `json:"customer_id"`
	Items      []order.Item `json:"items"`
	UserID     string       `json:"user_id,omitempty"`
}

// CommandName identifies the command on the bus.
func (PlaceOrder) CommandName() string { return CommandPlaceOrder }

// AddOrderItem appends a line to an order.
type AddOrderItem struct {
	OrderID string     `json:"order_id"`
	Item    order.Item `json:"item"`
	UserID  string     `json:"user_id,omitempty"`
}

// CommandName identifies the command on the bus.
func (AddOrderItem) CommandName() string { return CommandAddOrderItem }

// ShipOrder marks an order shipped.
type ShipOrder struct {
	OrderID    string `json:"order_id"`
	Carrier    string `json:"carrier"`
	TrackingID string `json:"tracking_id"`
	UserID     string `json:"user_id,omitempty"`
}

// CommandName identifies the command on the bus.
func (ShipOrder) CommandName() string { return CommandShipOrder }

// CancelOrder cancels an order that has not shipped.
type CancelOrder struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
	UserID  string `json:"user_id,omitempty"`
}

// CommandName identifies the command on the bus.
func (CancelOrder) CommandName() string { return CommandCancelOrder }

// Result is the outcome of an order command.
type Result struct {
	OrderID string `json:"order_id"`
	Version int    `json:"version"`
}
