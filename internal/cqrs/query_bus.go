package cqrs

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var queryJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// QueryBus routes queries to their registered handler, with the same
// registration and middleware contract as CommandBus plus a result cache
// keyed by query name and serialized payload.
type QueryBus struct {
	mu         sync.RWMutex
	handlers   map[string]QueryHandler
	middleware []QueryMiddleware
	cache      map[string]cacheEntry
	logger     *slog.Logger
	now        func() time.Time
}

type cacheEntry struct {
	result    any
	expiresAt time.Time
}

// QueryBusOption configures a QueryBus.
type QueryBusOption func(*QueryBus)

// WithQueryBusLogger sets the logger for the query bus.
func WithQueryBusLogger(logger *slog.Logger) QueryBusOption {
	return func(b *QueryBus) {
		b.logger = logger
	}
}

// WithQueryBusClock overrides the time source, used by cache expiry tests.
func WithQueryBusClock(now func() time.Time) QueryBusOption {
	return func(b *QueryBus) {
		b.now = now
	}
}

// NewQueryBus creates a new query bus.
func NewQueryBus(opts ...QueryBusOption) *QueryBus {
	b := &QueryBus{
		handlers: make(map[string]QueryHandler),
		cache:    make(map[string]cacheEntry),
		logger:   slog.Default(),
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Register binds a handler to a query name.
// Returns ErrHandlerAlreadyRegistered if the name is taken.
func (b *QueryBus) Register(queryName string, handler QueryHandler) error {
	if queryName == "" {
		return fmt.Errorf("query name cannot be empty")
	}
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.handlers[queryName]; exists {
		return fmt.Errorf("query %q: %w", queryName, ErrHandlerAlreadyRegistered)
	}

	b.handlers[queryName] = handler

	return nil
}

// Unregister removes the handler for a query name, if any.
func (b *QueryBus) Unregister(queryName string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.handlers, queryName)
}

// Use appends a middleware to the chain.
func (b *QueryBus) Use(mw QueryMiddleware) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.middleware = append(b.middleware, mw)
}

// Execute dispatches a query. A live cache entry for the same query wins
// over the handler; Execute itself never populates the cache.
func (b *QueryBus) Execute(ctx context.Context, q Query) (any, error) {
	key, err := b.cacheKey(q)
	if err != nil {
		return nil, err
	}

	if result, hit := b.cachedResult(key); hit {
		return result, nil
	}

	return b.dispatch(ctx, q)
}

// ExecuteWithCache dispatches a query and caches its result for ttl,
// measured from the first cached write (absolute, not sliding).
func (b *QueryBus) ExecuteWithCache(ctx context.Context, q Query, ttl time.Duration) (any, error) {
	key, err := b.cacheKey(q)
	if err != nil {
		return nil, err
	}

	if result, hit := b.cachedResult(key); hit {
		b.logger.DebugContext(ctx, "query cache hit",
			slog.String("query", q.QueryName()),
		)
		return result, nil
	}

	result, err := b.dispatch(ctx, q)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	b.cache[key] = cacheEntry{
		result:    result,
		expiresAt: b.now().Add(ttl),
	}
	b.mu.Unlock()

	return result, nil
}

// ClearCache removes every cache entry whose key belongs to the given
// query name, or the entire cache when the name is empty.
func (b *QueryBus) ClearCache(queryName string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if queryName == "" {
		b.cache = make(map[string]cacheEntry)
		return
	}

	prefix := queryName + ":"
	for key := range b.cache {
		if strings.HasPrefix(key, prefix) {
			delete(b.cache, key)
		}
	}
}

func (b *QueryBus) dispatch(ctx context.Context, q Query) (any, error) {
	b.mu.RLock()
	handler, exists := b.handlers[q.QueryName()]
	middleware := make([]QueryMiddleware, len(b.middleware))
	copy(middleware, b.middleware)
	b.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("query %q: %w", q.QueryName(), ErrHandlerNotFound)
	}

	invoke := func(ctx context.Context) (any, error) {
		return handler(ctx, q)
	}

	for i := len(middleware) - 1; i >= 0; i-- {
		mw := middleware[i]
		next := invoke
		invoke = func(ctx context.Context) (any, error) {
			return mw(ctx, q, next)
		}
	}

	return invoke(ctx)
}

func (b *QueryBus) cacheKey(q Query) (string, error) {
	payload, err := queryJSON.Marshal(q)
	if err != nil {
		return "", fmt.Errorf("failed to serialize query %q for caching: %w", q.QueryName(), err)
	}
	return q.QueryName() + ":" + string(payload), nil
}

func (b *QueryBus) cachedResult(key string) (any, bool) {
	b.mu.RLock()
	entry, exists := b.cache[key]
	b.mu.RUnlock()

	if !exists {
		return nil, false
	}

	if b.now().After(entry.expiresAt) {
		b.mu.Lock()
		// Recheck under the write lock; a concurrent refresh may have won.
		if current, still := b.cache[key]; still && b.now().After(current.expiresAt) {
			delete(b.cache, key)
		}
		b.mu.Unlock()
		return nil, false
	}

	return entry.result, true
}
