package distributed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"roomrelay/internal/core/ports"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// envelope wraps a room event with the publishing instance so
// subscribers can drop their own echoes.
type envelope struct {
	InstanceID string          `json:"instanceId"`
	Event      ports.RoomEvent `json:"event"`
}

// EventBus publishes room lifecycle events on a Redis channel so
// external observers (webhook workers, analytics, other instances)
// see room and recording boundaries.
type EventBus struct {
	client     *redis.Client
	instanceID string
	channel    string
	logger     *zap.SugaredLogger
	pubsub     *redis.PubSub
}

func NewEventBus(client *redis.Client, instanceID string, logger *zap.SugaredLogger) *EventBus {
	return &EventBus{
		client:     client,
		instanceID: instanceID,
		channel:    "roomrelay:events",
		logger:     logger,
	}
}

// PublishRoomEvent implements ports.EventPublisher.
func (eb *EventBus) PublishRoomEvent(ctx context.Context, event ports.RoomEvent) error {
	if event.At.IsZero() {
		event.At = time.Now()
	}

	data, err := json.Marshal(envelope{InstanceID: eb.instanceID, Event: event})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := eb.client.Publish(ctx, eb.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	eb.logger.Debugw("published room event",
		"type", event.Type,
		"room_id", event.RoomID,
	)
	return nil
}

// Subscribe delivers events published by other instances until the
// context ends. Events from this instance are skipped.
func (eb *EventBus) Subscribe(ctx context.Context, handler func(ports.RoomEvent) error) error {
	if eb.pubsub != nil {
		return fmt.Errorf("already subscribed")
	}

	eb.pubsub = eb.client.Subscribe(ctx, eb.channel)
	defer eb.pubsub.Close()

	ch := eb.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				eb.logger.Warnw("failed to unmarshal event",
					"error", err,
					"payload", msg.Payload,
				)
				continue
			}
			if env.InstanceID == eb.instanceID {
				continue
			}
			if err := handler(env.Event); err != nil {
				eb.logger.Warnw("error handling event",
					"type", env.Event.Type,
					"error", err,
				)
			}
		}
	}
}

// NopPublisher discards events; used when Redis is disabled.
type NopPublisher struct{}

func (NopPublisher) PublishRoomEvent(context.Context, ports.RoomEvent) error { return nil }

var (
	_ ports.EventPublisher = (*EventBus)(nil)
	_ ports.EventPublisher = NopPublisher{}
)
