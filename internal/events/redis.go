package events

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/fleetdesk/fleetdesk/internal/observability"
)

// Channel is the Redis pub/sub channel shared by all instances.
const Channel = "fleetdesk:pr-events"

// RedisBus is the Bus for horizontally scaled deployments: publishes go
// through Redis pub/sub so every instance's subscribers see every event.
type RedisBus struct {
	client  *redis.Client
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewRedisBus constructs a Redis-backed bus.
func NewRedisBus(client *redis.Client, logger *slog.Logger, metrics *observability.Metrics) *RedisBus {
	return &RedisBus{client: client, logger: logger, metrics: metrics}
}

// Publish writes the event to the shared channel. Failures are logged and
// swallowed: delivery is best-effort by contract.
func (b *RedisBus) Publish(ctx context.Context, evt Event) {
	payload, err := json.Marshal(evt)
	if err != nil {
		if b.logger != nil {
			b.logger.Error("events: marshal", slog.Any("error", err))
		}
		return
	}
	if err := b.client.Publish(ctx, Channel, payload).Err(); err != nil {
		if b.logger != nil {
			b.logger.Warn("events: publish", slog.Any("error", err))
		}
		return
	}
	b.metrics.EventPublished()
}

// Subscribe opens a dedicated Redis subscription for one listener.
func (b *RedisBus) Subscribe() (*Subscription, error) {
	pubsub := b.client.Subscribe(context.Background(), Channel)
	if _, err := pubsub.Receive(context.Background()); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	out := make(chan Event, subscriberBuffer)
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			var evt Event
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				if b.logger != nil {
					b.logger.Warn("events: decode", slog.Any("error", err))
				}
				continue
			}
			select {
			case out <- evt:
			default:
				// Slow consumer: skip rather than block the pump.
			}
		}
	}()

	b.metrics.SubscriberConnected()
	return &Subscription{
		ID: uuid.NewString(),
		C:  out,
		cancel: func() {
			_ = pubsub.Close()
			b.metrics.SubscriberDisconnected()
		},
	}, nil
}
