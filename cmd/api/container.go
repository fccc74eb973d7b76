package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/lllypuk/eventra/internal/application/inventory"
	orderapp "github.com/lllypuk/eventra/internal/application/order"
	"github.com/lllypuk/eventra/internal/config"
	"github.com/lllypuk/eventra/internal/cqrs"
	"github.com/lllypuk/eventra/internal/domain/order"
	wshandler "github.com/lllypuk/eventra/internal/handler/websocket"
	redisrelay "github.com/lllypuk/eventra/internal/infrastructure/eventbus"
	"github.com/lllypuk/eventra/internal/infrastructure/eventstore"
	"github.com/lllypuk/eventra/internal/infrastructure/metrics"
)

// Container setup constants.
const (
	containerInitTimeout = 30 * time.Second
	redisPingTimeout     = 5 * time.Second
	pingTimeout          = 2 * time.Second
)

// Container wires every application component together. It is the only
// place where concrete infrastructure meets the buses.
type Container struct {
	Config *config.Config
	Logger *slog.Logger

	MongoDB *mongo.Client
	Redis   *redis.Client

	Registry *cqrs.Registry
	Module   *cqrs.Module
	Metrics  *metrics.BusMetrics
	PromReg  *prometheus.Registry

	Orders    *orderapp.Service
	Inventory *inventory.Service
	Relay     *redisrelay.RedisRelay
	Stream    *wshandler.Stream
}

// ContainerOption configures the container.
type ContainerOption func(*Container)

// WithLogger sets the container logger.
func WithLogger(logger *slog.Logger) ContainerOption {
	return func(c *Container) {
		c.Logger = logger
	}
}

// streamedEventTypes are the event types pushed to the Redis relay and
// WebSocket clients.
func streamedEventTypes() []string {
	return []string{
		order.EventTypePlaced,
		order.EventTypeItemAdded,
		order.EventTypeShipped,
		order.EventTypeCancelled,
		inventory.EventTypeStockReserved,
		inventory.EventTypeStockRejected,
	}
}

// NewContainer builds the full dependency graph from configuration.
func NewContainer(cfg *config.Config, opts ...ContainerOption) (*Container, error) {
	c := &Container{
		Config: cfg,
		Logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	ctx, cancel := context.WithTimeout(context.Background(), containerInitTimeout)
	defer cancel()

	c.setupRegistry()

	if err := c.setupEventStoreAndModule(ctx); err != nil {
		return nil, err
	}

	c.setupMetrics()
	c.setupStream()

	if err := c.setupServices(); err != nil {
		return nil, err
	}

	if err := c.setupRelay(ctx); err != nil {
		return nil, err
	}

	return c, nil
}

// setupRegistry registers every known event payload type so stored and
// relayed events deserialize into their concrete types.
func (c *Container) setupRegistry() {
	c.Registry = cqrs.NewRegistry()
	order.RegisterPayloads(c.Registry)
	inventory.RegisterPayloads(c.Registry)
}

func (c *Container) setupEventStoreAndModule(ctx context.Context) error {
	var store cqrs.EventStore

	switch c.Config.EventStore.Driver {
	case config.StoreDriverMongoDB:
		mongoStore, err := c.setupMongoDB(ctx)
		if err != nil {
			return fmt.Errorf("mongodb: %w", err)
		}
		store = mongoStore
	case config.StoreDriverMemory:
		store = eventstore.NewMemoryEventStore(
			eventstore.WithMemoryLogger(c.Logger),
			eventstore.WithSnapshotThreshold(c.Config.EventStore.SnapshotThreshold),
			eventstore.WithMaxEventsPerAggregate(c.Config.EventStore.MaxEventsPerAggregate),
		)
	default:
		return fmt.Errorf("unknown event store driver %q", c.Config.EventStore.Driver)
	}

	c.Module = cqrs.NewModule(store,
		cqrs.WithModuleLogger(c.Logger),
		cqrs.WithModuleMaxHistorySize(c.Config.EventBus.MaxHistorySize),
	)

	c.Logger.Debug("event store initialized",
		slog.String("driver", c.Config.EventStore.Driver),
	)

	return nil
}

// setupMongoDB connects the MongoDB client and builds the Mongo-backed
// event store.
func (c *Container) setupMongoDB(ctx context.Context) (*eventstore.MongoEventStore, error) {
	clientOpts := options.Client().ApplyURI(c.Config.MongoDB.URI)

	client, connectErr := mongo.Connect(clientOpts)
	if connectErr != nil {
		return nil, fmt.Errorf("failed to connect: %w", connectErr)
	}

	pingCtx, cancel := context.WithTimeout(ctx, c.Config.MongoDB.Timeout)
	defer cancel()

	if pingErr := client.Ping(pingCtx, nil); pingErr != nil {
		return nil, fmt.Errorf("failed to ping: %w", pingErr)
	}

	c.MongoDB = client

	store := eventstore.NewMongoEventStore(
		client,
		c.Config.MongoDB.Database,
		c.Registry,
		eventstore.WithMongoLogger(c.Logger),
		eventstore.WithMongoSnapshotThreshold(c.Config.EventStore.SnapshotThreshold),
	)

	indexCtx, indexCancel := context.WithTimeout(ctx, c.Config.MongoDB.Timeout)
	defer indexCancel()

	if indexErr := store.EnsureIndexes(indexCtx); indexErr != nil {
		return nil, fmt.Errorf("failed to create indexes: %w", indexErr)
	}

	c.Logger.InfoContext(ctx, "connected to MongoDB",
		slog.String("database", c.Config.MongoDB.Database),
	)

	return store, nil
}

// setupMetrics wires command, query and event metrics into the buses.
func (c *Container) setupMetrics() {
	c.PromReg = prometheus.NewRegistry()
	c.PromReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	c.Metrics = metrics.NewBusMetrics(c.PromReg)
	c.Module.Commands.Use(c.Metrics.CommandMiddleware())
	c.Module.Queries.Use(c.Metrics.QueryMiddleware())
}

func (c *Container) setupStream() {
	c.Stream = wshandler.NewStream(wshandler.WithStreamLogger(c.Logger))
}

// setupServices registers application handlers, sagas, projections and
// bus observers.
func (c *Container) setupServices() error {
	c.Orders = orderapp.NewService(
		c.Module.Store,
		c.Module.Events,
		c.Module.Projections,
		orderapp.WithServiceLogger(c.Logger),
	)
	if err := c.Orders.Register(c.Module); err != nil {
		return fmt.Errorf("order service: %w", err)
	}

	c.Inventory = inventory.NewService(
		c.Module.Events,
		inventory.WithServiceLogger(c.Logger),
	)
	if err := c.Inventory.Register(c.Module.Commands); err != nil {
		return fmt.Errorf("inventory service: %w", err)
	}

	c.Module.Events.RegisterSaga(orderapp.NewFulfillmentSaga())

	for _, eventType := range streamedEventTypes() {
		if _, err := c.Module.Events.Subscribe(eventType, c.Metrics.EventObserver()); err != nil {
			return fmt.Errorf("metrics observer: %w", err)
		}
	}

	if err := c.Stream.Attach(c.Module.Events, streamedEventTypes()); err != nil {
		return fmt.Errorf("websocket stream: %w", err)
	}

	return nil
}

// setupRelay connects Redis and bridges the local bus to Pub/Sub when
// the relay is enabled.
func (c *Container) setupRelay(ctx context.Context) error {
	if !c.Config.EventBus.RelayEnabled {
		return nil
	}

	c.Redis = redis.NewClient(&redis.Options{
		Addr:     c.Config.Redis.Addr,
		Password: c.Config.Redis.Password,
		DB:       c.Config.Redis.DB,
		PoolSize: c.Config.Redis.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()

	if pingErr := c.Redis.Ping(pingCtx).Err(); pingErr != nil {
		return fmt.Errorf("redis: failed to ping: %w", pingErr)
	}

	c.Relay = redisrelay.NewRedisRelay(
		c.Redis,
		c.Module.Events,
		c.Registry,
		streamedEventTypes(),
		redisrelay.WithRelayLogger(c.Logger),
		redisrelay.WithChannelPrefix(c.Config.EventBus.ChannelPrefix),
	)

	if err := c.Relay.AttachOutbound(); err != nil {
		return fmt.Errorf("relay outbound: %w", err)
	}

	c.Logger.InfoContext(ctx, "connected to Redis",
		slog.String("addr", c.Config.Redis.Addr),
	)

	return nil
}

// StartRelay runs the inbound relay loop until the context is cancelled.
func (c *Container) StartRelay(ctx context.Context) {
	if c.Relay == nil {
		return
	}

	go func() {
		if err := c.Relay.Run(ctx); err != nil {
			c.Logger.ErrorContext(ctx, "redis relay stopped",
				slog.String("error", err.Error()),
			)
		}
	}()
}

// IsReady reports whether infrastructure dependencies answer pings.
func (c *Container) IsReady(ctx context.Context) bool {
	checkCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if c.MongoDB != nil {
		if err := c.MongoDB.Ping(checkCtx, nil); err != nil {
			return false
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Ping(checkCtx).Err(); err != nil {
			return false
		}
	}
	return true
}

// Close releases all container resources.
func (c *Container) Close() error {
	var errs []error

	if c.Stream != nil {
		c.Stream.Close()
	}

	if c.Relay != nil {
		if err := c.Relay.Shutdown(); err != nil {
			errs = append(errs, fmt.Errorf("relay: %w", err))
		}
	}

	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}

	if c.MongoDB != nil {
		ctx, cancel := context.WithTimeout(context.Background(), c.Config.MongoDB.Timeout)
		defer cancel()
		if err := c.MongoDB.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("mongodb: %w", err))
		}
	}

	return errors.Join(errs...)
}
