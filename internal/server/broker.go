package server

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/cadre-oss/mosaic/internal/event"
	"github.com/cadre-oss/mosaic/internal/telemetry"
)

// SSEEvent is sent to connected clients.
type SSEEvent struct {
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Client is a connected SSE client.
type Client struct {
	ID     string
	Types  []event.EventType // empty = subscribe to all
	Events chan SSEEvent
}

func (c *Client) wants(t string) bool {
	return len(c.Types) == 0 || slices.Contains(c.Types, event.EventType(t))
}

// Broker fans store events out to SSE clients. It implements event.Hook so
// it plugs into the store's event bus.
type Broker struct {
	mu      sync.RWMutex
	clients map[string]*Client
	logger  *telemetry.Logger
}

// NewBroker creates a new SSE broker.
func NewBroker(logger *telemetry.Logger) *Broker {
	return &Broker{
		clients: make(map[string]*Client),
		logger:  logger,
	}
}

// Subscribe adds a new SSE client. The returned Client's Events channel
// receives events until the context is cancelled, then is closed.
func (b *Broker) Subscribe(ctx context.Context, clientID string, types []event.EventType) *Client {
	client := &Client{
		ID:     clientID,
		Types:  types,
		Events: make(chan SSEEvent, 64),
	}

	b.mu.Lock()
	b.clients[clientID] = client
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.clients, clientID)
		b.mu.Unlock()
		close(client.Events)
	}()

	return client
}

// Len returns the number of connected clients.
func (b *Broker) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Broadcast sends an event to all matching clients. Slow clients lose events
// rather than stall the store.
func (b *Broker) Broadcast(ev SSEEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, client := range b.clients {
		if !client.wants(ev.Type) {
			continue
		}
		select {
		case client.Events <- ev:
		default:
			b.logger.Warn("Dropping SSE event for slow client", "client", client.ID, "event", ev.Type)
		}
	}
}

// --- event.Hook interface ---

func (b *Broker) Name() string { return "sse-broker" }

func (b *Broker) Matches(_ event.EventType) bool { return true }

func (b *Broker) IsBlocking() bool { return false }

func (b *Broker) Handle(ev event.Event) error {
	b.Broadcast(SSEEvent{
		Type:      string(ev.Type),
		Timestamp: ev.Timestamp,
		Data:      ev.Data,
	})
	return nil
}
