// Package events carries best-effort change notifications from the
// procurement workflow to connected clients. Delivery is at-most-once per
// subscriber: a subscriber that cannot accept an event at publish time is
// dropped from the registry rather than retried.
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fleetdesk/fleetdesk/internal/observability"
)

// Type discriminates the messages written to a subscriber stream.
type Type string

const (
	// TypeConnected is sent once when a subscription is established.
	TypeConnected Type = "connected"
	// TypePing is the periodic keep-alive.
	TypePing Type = "ping"
	// TypePRChange signals that a purchase request or one of its orders changed.
	TypePRChange Type = "pr-change"
)

// Event is a single bus message.
type Event struct {
	ID       string    `json:"id"`
	Type     Type      `json:"type"`
	Entity   string    `json:"entity,omitempty"`
	EntityID string    `json:"entityId,omitempty"`
	Action   string    `json:"action,omitempty"`
	At       time.Time `json:"at"`
}

// NewPRChange builds a pr-change event for the given entity.
func NewPRChange(entity, entityID, action string) Event {
	return Event{
		ID:       uuid.NewString(),
		Type:     TypePRChange,
		Entity:   entity,
		EntityID: entityID,
		Action:   action,
		At:       time.Now().UTC(),
	}
}

// Subscription is a registered listener handle. Close releases it; the
// events channel is closed by the bus afterwards.
type Subscription struct {
	ID     string
	C      <-chan Event
	cancel func()
	once   sync.Once
}

// Close deregisters the subscription.
func (s *Subscription) Close() {
	if s == nil {
		return
	}
	s.once.Do(s.cancel)
}

// Bus fans published events out to all current subscribers.
type Bus interface {
	Publish(ctx context.Context, evt Event)
	Subscribe() (*Subscription, error)
}

const subscriberBuffer = 16

// Hub is the in-process Bus for single-instance deployments.
type Hub struct {
	mu      sync.Mutex
	clients map[string]chan Event
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewHub constructs an in-process hub.
func NewHub(logger *slog.Logger, metrics *observability.Metrics) *Hub {
	return &Hub{
		clients: make(map[string]chan Event),
		logger:  logger,
		metrics: metrics,
	}
}

// Subscribe registers a new listener.
func (h *Hub) Subscribe() (*Subscription, error) {
	ch := make(chan Event, subscriberBuffer)
	id := uuid.NewString()

	h.mu.Lock()
	h.clients[id] = ch
	h.mu.Unlock()
	h.metrics.SubscriberConnected()

	return &Subscription{
		ID: id,
		C:  ch,
		cancel: func() {
			h.drop(id)
		},
	}, nil
}

// Publish delivers the event to every subscriber that can accept it
// immediately. Subscribers with a full buffer are dropped.
func (h *Hub) Publish(ctx context.Context, evt Event) {
	h.mu.Lock()
	for id, ch := range h.clients {
		select {
		case ch <- evt:
		default:
			close(ch)
			delete(h.clients, id)
			h.metrics.SubscriberDisconnected()
			if h.logger != nil {
				h.logger.Warn("events: dropping slow subscriber", slog.String("subscriber", id))
			}
		}
	}
	h.mu.Unlock()
	h.metrics.EventPublished()
}

func (h *Hub) drop(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.clients[id]; ok {
		close(ch)
		delete(h.clients, id)
		h.metrics.SubscriberDisconnected()
	}
}

// Len reports the current subscriber count.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
