// Package inventory provides the stock reservation side of order
// fulfillment. It is intentionally not event-sourced: it demonstrates a
// plain command handler cooperating with event-sourced aggregates through
// the buses.
package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/lllypuk/eventra/internal/cqrs"
	"github.com/lllypuk/eventra/internal/domain/event"
	"github.com/lllypuk/eventra/internal/domain/order"
)

// Command and event names.
const (
	CommandReserveStock = "inventory.Reserve"

	EventTypeStockReserved = "stock.Reserved"
	EventTypeStockRejected = "stock.Rejected"
)

// ReserveStock asks the inventory to reserve an order's items.
type ReserveStock struct {
	OrderID string       `json:"order_id"`
	Items   []order.Item `json:"items"`
}

// CommandName identifies the command on the bus.
func (ReserveStock) CommandName() string { return CommandReserveStock }

// StockReserved is the payload of stock.Reserved.
type StockReserved struct {
	OrderID string `json:"order_id"`
}

// StockRejected is the payload of stock.Rejected.
type StockRejected struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
}

// RegisterPayloads binds the inventory payload types to their event types.
func RegisterPayloads(registry *cqrs.Registry) {
	registry.Register(EventTypeStockReserved, func() any { return &StockReserved{} })
	registry.Register(EventTypeStockRejected, func() any { return &StockRejected{} })
}

// Service holds in-memory stock levels and handles reservation commands,
// publishing the outcome as events.
type Service struct {
	mu     sync.Mutex
	stock  map[string]int
	events *cqrs.EventBus
	logger *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithServiceLogger sets the logger for the service.
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService creates the inventory service.
func NewService(events *cqrs.EventBus, opts ...ServiceOption) *Service {
	s := &Service{
		stock:  make(map[string]int),
		events: events,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// SetStock sets the available quantity for a SKU.
func (s *Service) SetStock(sku string, quantity int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stock[sku] = quantity
}

// Stock returns the available quantity for a SKU.
func (s *Service) Stock(sku string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.stock[sku]
}

// Register binds the reservation handler to the command bus.
func (s *Service) Register(commands *cqrs.CommandBus) error {
	return commands.Register(CommandReserveStock, s.handleReserve)
}

func (s *Service) handleReserve(ctx context.Context, cmd cqrs.Command) (any, error) {
	reserve, ok := cmd.(ReserveStock)
	if !ok {
		return nil, fmt.Errorf("unexpected command type %T", cmd)
	}

	if reason, reserved := s.tryReserve(reserve.Items); !reserved {
		s.publish(ctx, EventTypeStockRejected, reserve.OrderID, &StockRejected{
			OrderID: reserve.OrderID,
			Reason:  reason,
		})
		return nil, nil
	}

	s.publish(ctx, EventTypeStockReserved, reserve.OrderID, &StockReserved{
		OrderID: reserve.OrderID,
	})

	return nil, nil
}

// tryReserve atomically checks and decrements all items, or none.
func (s *Service) tryReserve(items []order.Item) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, item := range items {
		if s.stock[item.SKU] < item.Quantity {
			return fmt.Sprintf("insufficient stock for %s", item.SKU), false
		}
	}
	for _, item := range items {
		s.stock[item.SKU] -= item.Quantity
	}

	return "", true
}

func (s *Service) publish(ctx context.Context, eventType, orderID string, payload any) {
	evt := event.NewEvent(eventType, orderID, "Inventory", 0, payload, event.NewMetadata("", "", ""))
	if err := s.events.Publish(ctx, evt); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish inventory event",
			slog.String("event_type", eventType),
			slog.String("order_id", orderID),
			slog.String("error", err.Error()),
		)
	}
}
