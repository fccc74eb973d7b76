package order

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lllypuk/eventra/internal/cqrs"
	"github.com/lllypuk/eventra/internal/domain/event"
	"github.com/lllypuk/eventra/internal/domain/order"
	"github.com/lllypuk/eventra/internal/domain/uuid"
)

// Service handles order commands and queries. Command handlers load the
// aggregate, run the domain operation, save under optimistic concurrency
// and publish the new events on the event bus.
type Service struct {
	repo        *cqrs.Repository[*order.Aggregate]
	events      *cqrs.EventBus
	projections *cqrs.ProjectionManager
	logger      *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithServiceLogger sets the logger for the service.
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService creates the order service over an event store, event bus and
// projection manager.
func NewService(
	store cqrs.EventStore,
	events *cqrs.EventBus,
	projections *cqrs.ProjectionManager,
	opts ...ServiceOption,
) *Service {
	s := &Service{
		repo: cqrs.NewRepository(store, func(id string) *order.Aggregate {
			return order.NewAggregate(uuid.UUID(id))
		}),
		events:      events,
		projections: projections,
		logger:      slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Register binds all order handlers and the statistics projection to the
// module. This is the composition call site; there is no ambient handler
// discovery.
func (s *Service) Register(module *cqrs.Module) error {
	registrations := []struct {
		name string
		err  error
	}{
		{CommandPlaceOrder, module.Commands.Register(CommandPlaceOrder, s.handlePlace)},
		{CommandAddOrderItem, module.Commands.Register(CommandAddOrderItem, s.handleAddItem)},
		{CommandShipOrder, module.Commands.Register(CommandShipOrder, s.handleShip)},
		{CommandCancelOrder, module.Commands.Register(CommandCancelOrder, s.handleCancel)},
		{QueryGetOrder, module.Queries.Register(QueryGetOrder, s.handleGetOrder)},
		{QueryOrderStats, module.Queries.Register(QueryOrderStats, s.handleOrderStats)},
	}
	for _, r := range registrations {
		if r.err != nil {
			return fmt.Errorf("failed to register %q: %w", r.name, r.err)
		}
	}

	return RegisterStatsProjection(module.Projections)
}

func (s *Service) handlePlace(ctx context.Context, cmd cqrs.Command) (any, error) {
	place, ok := cmd.(PlaceOrder)
	if !ok {
		return nil, fmt.Errorf("unexpected command type %T", cmd)
	}

	orderID, err := uuid.ParseUUID(place.OrderID)
	if err != nil {
		return nil, fmt.Errorf("invalid order ID: %w", err)
	}
	customerID, err := uuid.ParseUUID(place.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("invalid customer ID: %w", err)
	}

	aggregate := order.NewAggregate(orderID)
	if err = aggregate.Place(customerID, place.Items, s.metadata(place.UserID)); err != nil {
		return nil, err
	}

	return s.commit(ctx, aggregate, 0)
}

func (s *Service) handleAddItem(ctx context.Context, cmd cqrs.Command) (any, error) {
	add, ok := cmd.(AddOrderItem)
	if !ok {
		return nil, fmt.Errorf("unexpected command type %T", cmd)
	}

	return s.mutate(ctx, add.OrderID, func(aggregate *order.Aggregate) error {
		return aggregate.AddItem(add.Item, s.metadata(add.UserID))
	})
}

func (s *Service) handleShip(ctx context.Context, cmd cqrs.Command) (any, error) {
	ship, ok := cmd.(ShipOrder)
	if !ok {
		return nil, fmt.Errorf("unexpected command type %T", cmd)
	}

	return s.mutate(ctx, ship.OrderID, func(aggregate *order.Aggregate) error {
		return aggregate.Ship(ship.Carrier, ship.TrackingID, s.metadata(ship.UserID))
	})
}

func (s *Service) handleCancel(ctx context.Context, cmd cqrs.Command) (any, error) {
	cancel, ok := cmd.(CancelOrder)
	if !ok {
		return nil, fmt.Errorf("unexpected command type %T", cmd)
	}

	return s.mutate(ctx, cancel.OrderID, func(aggregate *order.Aggregate) error {
		return aggregate.Cancel(cancel.Reason, s.metadata(cancel.UserID))
	})
}

func (s *Service) handleGetOrder(ctx context.Context, q cqrs.Query) (any, error) {
	get, ok := q.(GetOrder)
	if !ok {
		return nil, fmt.Errorf("unexpected query type %T", q)
	}

	aggregate, err := s.repo.Load(ctx, get.OrderID)
	if err != nil {
		return nil, err
	}

	state := aggregate.State()

	return View{
		OrderID:    aggregate.AggregateID(),
		CustomerID: state.CustomerID,
		Status:     state.Status,
		Items:      state.Items,
		TotalCents: state.TotalCents,
		Carrier:    state.Carrier,
		TrackingID: state.TrackingID,
		Version:    aggregate.Version(),
	}, nil
}

func (s *Service) handleOrderStats(ctx context.Context, q cqrs.Query) (any, error) {
	if _, ok := q.(OrderStats); !ok {
		return nil, fmt.Errorf("unexpected query type %T", q)
	}

	if err := s.projections.Update(ctx, StatsProjectionName); err != nil {
		return nil, err
	}

	stats, ok := s.projections.State(StatsProjectionName).(*Stats)
	if !ok {
		return nil, fmt.Errorf("order stats projection is not registered")
	}

	return *stats, nil
}

// mutate runs one domain operation on a loaded aggregate and commits the
// result. An operation raising no events is idempotent and commits
// nothing.
func (s *Service) mutate(ctx context.Context, orderID string, op func(*order.Aggregate) error) (any, error) {
	aggregate, err := s.repo.Load(ctx, orderID)
	if err != nil {
		return nil, err
	}

	versionBefore := aggregate.Version()

	if err = op(aggregate); err != nil {
		return nil, err
	}

	if len(aggregate.UncommittedEvents()) == 0 {
		return Result{OrderID: orderID, Version: versionBefore}, nil
	}

	return s.commit(ctx, aggregate, versionBefore)
}

// commit saves the aggregate and publishes its new events.
func (s *Service) commit(ctx context.Context, aggregate *order.Aggregate, expectedVersion int) (any, error) {
	newEvents := make([]event.DomainEvent, len(aggregate.UncommittedEvents()))
	copy(newEvents, aggregate.UncommittedEvents())

	if err := s.repo.Save(ctx, aggregate, expectedVersion); err != nil {
		return nil, err
	}

	if err := s.events.PublishAll(ctx, newEvents); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish order events",
			slog.String("order_id", aggregate.AggregateID()),
			slog.String("error", err.Error()),
		)
	}

	return Result{
		OrderID: aggregate.AggregateID(),
		Version: aggregate.Version(),
	}, nil
}

func (s *Service) metadata(userID string) event.Metadata {
	return event.NewMetadata(userID, uuid.NewUUID().String(), "")
}
