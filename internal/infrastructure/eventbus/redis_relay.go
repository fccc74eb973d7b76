// Package eventbus bridges the in-process event bus to Redis Pub/Sub so
// multiple processes (API, worker) observe each other's domain events.
package eventbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"

	"github.com/lllypuk/eventra/internal/cqrs"
	"github.com/lllypuk/eventra/internal/domain/event"
)

var relayJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// Default relay configuration constants.
const (
	defaultMaxRetries     = 3
	defaultInitialBackoff = 100 * time.Millisecond
	defaultMaxBackoff     = 5 * time.Second
	defaultBackoffFactor  = 2.0
	defaultChannelPrefix  = "events:"
)

// inboundKey marks contexts of publishes the relay itself triggered, so
// forward does not put remote events back on the wire.
type inboundKey struct{}

func markInbound(ctx context.Context) context.Context {
	return context.WithValue(ctx, inboundKey{}, true)
}

func isInbound(ctx context.Context) bool {
	marked, _ := ctx.Value(inboundKey{}).(bool)
	return marked
}

// envelope wraps a domain event with identity and origin for transport.
type envelope struct {
	ID            string              `json:"id"`
	Origin        string              `json:"origin"`
	EventType     string              `json:"event_type"`
	AggregateID   string              `json:"aggregate_id"`
	AggregateType string              `json:"aggregate_type"`
	OccurredAt    time.Time           `json:"occurred_at"`
	Version       int                 `json:"version"`
	Metadata      event.Metadata      `json:"metadata"`
	Payload       jsoniter.RawMessage `json:"payload"`
}

// RetryConfig configures outbound publish retries.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     defaultMaxRetries,
		InitialBackoff: defaultInitialBackoff,
		MaxBackoff:     defaultMaxBackoff,
		BackoffFactor:  defaultBackoffFactor,
	}
}

// RedisRelay connects one process's cqrs.EventBus to Redis Pub/Sub.
// Outbound, it forwards locally published events of the configured types
// to Redis channels; inbound, Run feeds remote envelopes back into the
// local bus. Envelopes carry the relay's origin ID so a process never
// re-consumes its own events.
type RedisRelay struct {
	client   *redis.Client
	bus      *cqrs.EventBus
	registry *cqrs.Registry

	originID      string
	channelPrefix string
	eventTypes    []string
	retryConfig   RetryConfig

	pubsub   *redis.PubSub
	pubsubMu sync.Mutex

	running   bool
	runningMu sync.RWMutex
	shutdown  chan struct{}

	logger *slog.Logger
}

// RelayOption configures a RedisRelay.
type RelayOption func(*RedisRelay)

// WithRelayLogger sets the logger for the relay.
func WithRelayLogger(logger *slog.Logger) RelayOption {
	return func(r *RedisRelay) {
		r.logger = logger
	}
}

// WithRetryConfig sets the outbound retry configuration.
func WithRetryConfig(config RetryConfig) RelayOption {
	return func(r *RedisRelay) {
		r.retryConfig = config
	}
}

// WithChannelPrefix sets a prefix for Redis channel names.
func WithChannelPrefix(prefix string) RelayOption {
	return func(r *RedisRelay) {
		r.channelPrefix = prefix
	}
}

// NewRedisRelay creates a relay between the local bus and Redis for the
// given event types. The registry restores payload types on the way in.
func NewRedisRelay(
	client *redis.Client,
	bus *cqrs.EventBus,
	registry *cqrs.Registry,
	eventTypes []string,
	opts ...RelayOption,
) *RedisRelay {
	r := &RedisRelay{
		client:        client,
		bus:           bus,
		registry:      registry,
		originID:      uuid.New().String(),
		channelPrefix: defaultChannelPrefix,
		eventTypes:    eventTypes,
		retryConfig:   DefaultRetryConfig(),
		shutdown:      make(chan struct{}),
		logger:        slog.Default(),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// AttachOutbound subscribes the relay's forwarding handler on the local
// bus for every configured event type.
func (r *RedisRelay) AttachOutbound() error {
	for _, eventType := range r.eventTypes {
		if _, err := r.bus.Subscribe(eventType, r.forward); err != nil {
			return fmt.Errorf("failed to attach relay to %q: %w", eventType, err)
		}
	}
	return nil
}

// forward publishes one local event to Redis with retry and backoff.
// Events that arrived through the relay are not forwarded again; without
// that check two relayed processes would bounce every event between each
// other indefinitely.
func (r *RedisRelay) forward(ctx context.Context, evt event.DomainEvent) error {
	if isInbound(ctx) {
		return nil
	}

	payload, err := relayJSON.Marshal(evt.Payload())
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	env := envelope{
		ID:            uuid.New().String(),
		Origin:        r.originID,
		EventType:     evt.EventType(),
		AggregateID:   evt.AggregateID(),
		AggregateType: evt.AggregateType(),
		OccurredAt:    evt.OccurredAt(),
		Version:       evt.Version(),
		Metadata:      evt.Metadata(),
		Payload:       payload,
	}

	data, err := relayJSON.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	channel := r.channelName(evt.EventType())
	backoff := r.retryConfig.InitialBackoff

	var lastErr error
	for attempt := 0; attempt <= r.retryConfig.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff = time.Duration(float64(backoff) * r.retryConfig.BackoffFactor)
			if backoff > r.retryConfig.MaxBackoff {
				backoff = r.retryConfig.MaxBackoff
			}
		}

		if lastErr = r.client.Publish(ctx, channel, data).Err(); lastErr == nil {
			r.logger.DebugContext(ctx, "event relayed to redis",
				slog.String("event_id", env.ID),
				slog.String("event_type", env.EventType),
				slog.String("channel", channel),
			)
			return nil
		}
	}

	return fmt.Errorf("failed to publish event to redis after %d retries: %w",
		r.retryConfig.MaxRetries, lastErr)
}

// Run subscribes to the relay's Redis channels and republishes inbound
// envelopes on the local bus. Blocks until Shutdown or context
// cancellation.
func (r *RedisRelay) Run(ctx context.Context) error {
	r.runningMu.Lock()
	if r.running {
		r.runningMu.Unlock()
		return errors.New("relay is already running")
	}
	r.running = true
	r.runningMu.Unlock()

	channels := make([]string, 0, len(r.eventTypes))
	for _, eventType := range r.eventTypes {
		channels = append(channels, r.channelName(eventType))
	}

	if len(channels) == 0 {
		r.logger.WarnContext(ctx, "starting relay with no event types")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.shutdown:
			return nil
		}
	}

	pubsub := r.client.Subscribe(ctx, channels...)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("failed to subscribe to channels: %w", err)
	}

	r.pubsubMu.Lock()
	r.pubsub = pubsub
	r.pubsubMu.Unlock()

	r.logger.InfoContext(ctx, "redis relay started",
		slog.Int("channel_count", len(channels)),
	)

	msgCh := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.shutdown:
			return nil
		case msg, ok := <-msgCh:
			if !ok {
				r.logger.WarnContext(ctx, "relay message channel closed")
				return nil
			}
			r.handleMessage(ctx, msg)
		}
	}
}

// Shutdown stops the inbound loop and closes the subscription.
func (r *RedisRelay) Shutdown() error {
	r.runningMu.Lock()
	if !r.running {
		r.runningMu.Unlock()
		return nil
	}
	r.running = false
	r.runningMu.Unlock()

	close(r.shutdown)

	r.pubsubMu.Lock()
	pubsub := r.pubsub
	r.pubsub = nil
	r.pubsubMu.Unlock()

	if pubsub != nil {
		if err := pubsub.Close(); err != nil {
			return fmt.Errorf("failed to close pubsub: %w", err)
		}
	}

	return nil
}

// IsRunning reports whether the inbound loop is active.
func (r *RedisRelay) IsRunning() bool {
	r.runningMu.RLock()
	defer r.runningMu.RUnlock()
	return r.running
}

func (r *RedisRelay) handleMessage(ctx context.Context, msg *redis.Message) {
	var env envelope
	if err := relayJSON.Unmarshal([]byte(msg.Payload), &env); err != nil {
		r.logger.ErrorContext(ctx, "failed to unmarshal envelope",
			slog.String("channel", msg.Channel),
			slog.String("error", err.Error()),
		)
		return
	}

	if env.Origin == r.originID {
		return
	}

	payload, err := r.decodePayload(env.EventType, env.Payload)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to decode envelope payload",
			slog.String("event_type", env.EventType),
			slog.String("error", err.Error()),
		)
		return
	}

	evt := event.Hydrate(
		env.EventType,
		env.AggregateID,
		env.AggregateType,
		env.Version,
		env.OccurredAt,
		payload,
		env.Metadata,
	)

	if err := r.bus.Publish(markInbound(ctx), evt); err != nil {
		r.logger.ErrorContext(ctx, "failed to republish inbound event",
			slog.String("event_type", env.EventType),
			slog.String("error", err.Error()),
		)
	}
}

func (r *RedisRelay) decodePayload(eventType string, raw jsoniter.RawMessage) (any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	if payload, registered := r.registry.New(eventType); registered {
		if err := relayJSON.Unmarshal(raw, payload); err != nil {
			return nil, err
		}
		return payload, nil
	}

	var generic map[string]any
	if err := relayJSON.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return generic, nil
}

func (r *RedisRelay) channelName(eventType string) string {
	return r.channelPrefix + eventType
}
