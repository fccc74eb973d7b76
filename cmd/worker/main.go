// Package main provides the projection worker entry point. The worker
// catches projections up against the shared event store on an interval
// and relays events published on other instances into the local bus.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/lllypuk/eventra/internal/application/inventory"
	orderapp "github.com/lllypuk/eventra/internal/application/order"
	"github.com/lllypuk/eventra/internal/config"
	"github.com/lllypuk/eventra/internal/cqrs"
	"github.com/lllypuk/eventra/internal/domain/order"
	redisrelay "github.com/lllypuk/eventra/internal/infrastructure/eventbus"
	"github.com/lllypuk/eventra/internal/infrastructure/eventstore"
)

// Timeout constants for the worker service.
const (
	redisPingTimeout = 5 * time.Second
	mongoPingTimeout = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		//nolint:sloglint // No context available before logger setup
		slog.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := setupLogger(cfg)

	logger.Info("starting eventra projection worker",
		slog.String("version", "0.1.0"),
		slog.String("environment", cfg.App.Environment),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go handleShutdown(cancel, logger)

	if runErr := run(ctx, cfg, logger); runErr != nil {
		logger.Error("worker failed", slog.String("error", runErr.Error()))
		cancel()
		os.Exit(1) //nolint:gocritic // cancel() called before exit
	}

	logger.Info("worker stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	registry := cqrs.NewRegistry()
	order.RegisterPayloads(registry)
	inventory.RegisterPayloads(registry)

	store, cleanup, err := buildStore(ctx, cfg, registry, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	module := cqrs.NewModule(store,
		cqrs.WithModuleLogger(logger),
		cqrs.WithModuleMaxHistorySize(cfg.EventBus.MaxHistorySize),
	)

	if regErr := orderapp.RegisterStatsProjection(module.Projections); regErr != nil {
		return fmt.Errorf("stats projection: %w", regErr)
	}

	if relayErr := startRelay(ctx, cfg, module, registry, logger); relayErr != nil {
		return relayErr
	}

	syncProjections(ctx, cfg, module, logger)
	return nil
}

// buildStore opens the configured event store and returns a cleanup
// function for its resources.
func buildStore(
	ctx context.Context,
	cfg *config.Config,
	registry *cqrs.Registry,
	logger *slog.Logger,
) (cqrs.EventStore, func(), error) {
	if cfg.EventStore.Driver != config.StoreDriverMongoDB {
		store := eventstore.NewMemoryEventStore(
			eventstore.WithMemoryLogger(logger),
			eventstore.WithSnapshotThreshold(cfg.EventStore.SnapshotThreshold),
		)
		return store, func() {}, nil
	}

	client, err := mongo.Connect(options.Client().ApplyURI(cfg.MongoDB.URI))
	if err != nil {
		return nil, nil, fmt.Errorf("mongodb connect: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, mongoPingTimeout)
	defer pingCancel()

	if pingErr := client.Ping(pingCtx, nil); pingErr != nil {
		return nil, nil, fmt.Errorf("mongodb ping: %w", pingErr)
	}

	logger.InfoContext(ctx, "connected to MongoDB", slog.String("database", cfg.MongoDB.Database))

	store := eventstore.NewMongoEventStore(
		client,
		cfg.MongoDB.Database,
		registry,
		eventstore.WithMongoLogger(logger),
	)

	cleanup := func() {
		if disconnectErr := client.Disconnect(context.Background()); disconnectErr != nil {
			logger.Error("failed to disconnect from MongoDB",
				slog.String("error", disconnectErr.Error()),
			)
		}
	}

	return store, cleanup, nil
}

// startRelay bridges remote events into the local bus when enabled.
func startRelay(
	ctx context.Context,
	cfg *config.Config,
	module *cqrs.Module,
	registry *cqrs.Registry,
	logger *slog.Logger,
) error {
	if !cfg.EventBus.RelayEnabled {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})

	pingCtx, pingCancel := context.WithTimeout(ctx, redisPingTimeout)
	defer pingCancel()

	if pingErr := client.Ping(pingCtx).Err(); pingErr != nil {
		return fmt.Errorf("redis ping: %w", pingErr)
	}

	logger.InfoContext(ctx, "connected to Redis", slog.String("addr", cfg.Redis.Addr))

	relay := redisrelay.NewRedisRelay(
		client,
		module.Events,
		registry,
		[]string{
			order.EventTypePlaced,
			order.EventTypeItemAdded,
			order.EventTypeShipped,
			order.EventTypeCancelled,
			inventory.EventTypeStockReserved,
			inventory.EventTypeStockRejected,
		},
		redisrelay.WithRelayLogger(logger),
		redisrelay.WithChannelPrefix(cfg.EventBus.ChannelPrefix),
	)

	go func() {
		if runErr := relay.Run(ctx); runErr != nil {
			logger.ErrorContext(ctx, "redis relay stopped", slog.String("error", runErr.Error()))
		}
	}()

	go func() {
		<-ctx.Done()
		_ = relay.Shutdown()
		_ = client.Close()
	}()

	return nil
}

// syncProjections drives projection catch-up until the context ends.
func syncProjections(ctx context.Context, cfg *config.Config, module *cqrs.Module, logger *slog.Logger) {
	ticker := time.NewTicker(cfg.Projections.SyncInterval)
	defer ticker.Stop()

	logger.InfoContext(ctx, "projection sync started",
		slog.Duration("interval", cfg.Projections.SyncInterval),
	)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := module.Projections.UpdateAll(ctx); err != nil {
				logger.ErrorContext(ctx, "projection update failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// handleShutdown cancels the root context on OS signals.
func handleShutdown(cancel context.CancelFunc, logger *slog.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)

	sig := <-quit
	logger.Info("received shutdown signal", slog.String("signal", sig.String()))
	cancel()
}

// setupLogger creates the structured logger based on configuration.
func setupLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Log.Level),
	}

	var handler slog.Handler
	switch cfg.Log.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
