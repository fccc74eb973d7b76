// Package websocket streams published domain events to WebSocket clients.
package websocket

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/labstack/echo/v4"

	"github.com/lllypuk/eventra/internal/cqrs"
	"github.com/lllypuk/eventra/internal/domain/event"
)

var streamJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// Stream configuration constants.
const (
	defaultSendBufferSize = 64
	defaultWriteWait      = 10 * time.Second
)

// Frame is the JSON message sent to stream clients for each event.
type Frame struct {
	EventType     string         `json:"event_type"`
	AggregateID   string         `json:"aggregate_id"`
	AggregateType string         `json:"aggregate_type"`
	Version       int            `json:"version"`
	OccurredAt    time.Time      `json:"occurred_at"`
	Metadata      event.Metadata `json:"metadata"`
	Payload       any            `json:"payload,omitempty"`
}

// Stream fans published events of the configured types out to connected
// WebSocket clients. It subscribes itself on the event bus; slow clients
// are dropped rather than blocking the publisher.
type Stream struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}

	logger *slog.Logger
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// StreamOption configures a Stream.
type StreamOption func(*Stream)

// WithStreamLogger sets the logger for the stream.
func WithStreamLogger(logger *slog.Logger) StreamOption {
	return func(s *Stream) {
		s.logger = logger
	}
}

// NewStream creates an event stream handler.
func NewStream(opts ...StreamOption) *Stream {
	s := &Stream{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Attach subscribes the stream's broadcasting handler on the event bus
// for each event type.
func (s *Stream) Attach(bus *cqrs.EventBus, eventTypes []string) error {
	for _, eventType := range eventTypes {
		if _, err := bus.Subscribe(eventType, s.broadcast); err != nil {
			return err
		}
	}
	return nil
}

// Handle upgrades an HTTP request to a WebSocket connection and streams
// events until the client disconnects.
func (s *Stream) Handle(c echo.Context) error {
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	cl := &client{
		conn: conn,
		send: make(chan []byte, defaultSendBufferSize),
	}

	s.mu.Lock()
	s.clients[cl] = struct{}{}
	s.mu.Unlock()

	go s.writeLoop(cl)
	go s.readLoop(cl)

	return nil
}

// ClientCount returns the number of connected clients.
func (s *Stream) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Close disconnects all clients.
func (s *Stream) Close() {
	s.mu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for cl := range s.clients {
		clients = append(clients, cl)
	}
	s.mu.Unlock()

	for _, cl := range clients {
		s.drop(cl)
	}
}

// broadcast is the event bus handler pushing one event to every client.
func (s *Stream) broadcast(ctx context.Context, evt event.DomainEvent) error {
	frame := Frame{
		EventType:     evt.EventType(),
		AggregateID:   evt.AggregateID(),
		AggregateType: evt.AggregateType(),
		Version:       evt.Version(),
		OccurredAt:    evt.OccurredAt(),
		Metadata:      evt.Metadata(),
		Payload:       evt.Payload(),
	}

	data, err := streamJSON.Marshal(frame)
	if err != nil {
		return err
	}

	s.mu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for cl := range s.clients {
		clients = append(clients, cl)
	}
	s.mu.Unlock()

	for _, cl := range clients {
		select {
		case cl.send <- data:
		default:
			s.logger.WarnContext(ctx, "dropping slow websocket client",
				slog.String("remote", cl.conn.RemoteAddr().String()),
			)
			s.drop(cl)
		}
	}

	return nil
}

func (s *Stream) writeLoop(cl *client) {
	for data := range cl.send {
		_ = cl.conn.SetWriteDeadline(time.Now().Add(defaultWriteWait))
		if err := cl.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			s.drop(cl)
			return
		}
	}
}

// readLoop discards inbound messages and detects disconnects.
func (s *Stream) readLoop(cl *client) {
	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			s.drop(cl)
			return
		}
	}
}

func (s *Stream) drop(cl *client) {
	s.mu.Lock()
	_, present := s.clients[cl]
	if present {
		delete(s.clients, cl)
		close(cl.send)
	}
	s.mu.Unlock()

	if present {
		_ = cl.conn.Close()
	}
}
