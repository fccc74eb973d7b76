package order

import (
	"github.com/lllypuk/eventra/internal/cqrs"
	"github.com/lllypuk/eventra/internal/domain/order"
)

// StatsProjectionName identifies the order statistics projection.
const StatsProjectionName = "order_stats"

// RegisterStatsProjection registers the order statistics fold: counts per
// lifecycle status plus shipped revenue.
func RegisterStatsProjection(projections *cqrs.ProjectionManager) error {
	return projections.Register(StatsProjectionName, &Stats{}, map[string]cqrs.ProjectionReducer{
		order.EventTypePlaced: func(state any, evt cqrs.StoredEvent) any {
			stats := state.(*Stats)
			stats.Placed++
			if placed, ok := evt.Event.Payload().(*order.Placed); ok {
				for _, item := range placed.Items {
					stats.RevenueCents += int64(item.Quantity) * item.UnitCents
				}
			}
			return stats
		},
		order.EventTypeItemAdded: func(state any, evt cqrs.StoredEvent) any {
			stats := state.(*Stats)
			if added, ok := evt.Event.Payload().(*order.ItemAdded); ok {
				stats.RevenueCents += int64(added.Item.Quantity) * added.Item.UnitCents
			}
			return stats
		},
		order.EventTypeShipped: func(state any, _ cqrs.StoredEvent) any {
			stats := state.(*Stats)
			stats.Shipped++
			return stats
		},
		order.EventTypeCancelled: func(state any, _ cqrs.StoredEvent) any {
			stats := state.(*Stats)
			stats.Cancelled++
			return stats
		},
	})
}
