package order

import (
	"context"

	"github.com/lllypuk/eventra/internal/application/inventory"
	"github.com/lllypuk/eventra/internal/cqrs"
	"github.com/lllypuk/eventra/internal/domain/event"
	"github.com/lllypuk/eventra/internal/domain/order"
)

// FulfillmentSaga coordinates orders with the inventory: a placed order
// triggers a stock reservation, and a rejected reservation cancels the
// order. Reactions run synchronously inside the originating publish.
type FulfillmentSaga struct{}

// NewFulfillmentSaga creates the saga.
func NewFulfillmentSaga() *FulfillmentSaga {
	return &FulfillmentSaga{}
}

// SagaName identifies the saga in logs.
func (s *FulfillmentSaga) SagaName() string {
	return "order_fulfillment"
}

// React emits the follow-up commands for order and stock events.
func (s *FulfillmentSaga) React(_ context.Context, evt event.DomainEvent) ([]cqrs.Reaction, error) {
	switch evt.EventType() {
	case order.EventTypePlaced:
		placed, ok := evt.Payload().(*order.Placed)
		if !ok {
			return nil, nil
		}
		return []cqrs.Reaction{
			cqrs.ReactCommand(inventory.ReserveStock{
				OrderID: evt.AggregateID(),
				Items:   placed.Items,
			}),
		}, nil

	case inventory.EventTypeStockRejected:
		rejected, ok := evt.Payload().(*inventory.StockRejected)
		if !ok {
			return nil, nil
		}
		return []cqrs.Reaction{
			cqrs.ReactCommand(CancelOrder{
				OrderID: rejected.OrderID,
				Reason:  rejected.Reason,
			}),
		}, nil
	}

	return nil, nil
}

// Ensure FulfillmentSaga implements cqrs.Saga.
var _ cqrs.Saga = (*FulfillmentSaga)(nil)
