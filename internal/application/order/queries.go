package order

import (
	"github.com/lllypuk/eventra/internal/domain/order"
)

// Query names.
const (
	QueryGetOrder   = "order.Get"
	QueryOrderStats = "order.Stats"
)

// GetOrder fetches one order's current state.
type GetOrder struct {
	OrderID string `json:"order_id"`
}

// QueryName identifies the query on the bus.
func (GetOrder) QueryName() string { return QueryGetOrder }

// OrderStats fetches the aggregated order statistics read model.
type OrderStats struct{}

// QueryName identifies the query on the bus.
func (OrderStats) QueryName() string { return QueryOrderStats }

// View is the read representation of one order.
type View struct {
	OrderID    string       `json:"order_id"`
	CustomerID string       `json:"customer_id"`
	Status     order.Status `json:"status"`
	Items      []order.Item `json:"items"`
	TotalCents int64        `json:"total_cents"`
	Carrier    string       `json:"carrier,omitempty"`
	TrackingID string       `json:"tracking_id,omitempty"`
	Version    int          `json:"version"`
}

// Stats is the order statistics read model state.
type Stats struct {
	Placed       int   `json:"placed"`
	Shipped      int   `json:"shipped"`
	Cancelled    int   `json:"cancelled"`
	RevenueCents int64 `json:"revenue_cents"`
}
