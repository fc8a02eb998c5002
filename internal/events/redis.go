package events

import (
	"context"
	"encoding/json"
	"log/slog"

	redis "github.com/redis/go-redis/v9"

	"github.com/Heinvv10/gaztime-sub001/internal/domain"
)

const channelPrefix = "orders:"

// RedisBroker publishes on orders:<pod> so every API replica sees every
// change.
type RedisBroker struct {
	client *redis.Client
	logger *slog.Logger
}

func NewRedisBroker(client *redis.Client, logger *slog.Logger) *RedisBroker {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisBroker{client: client, logger: logger.With("component", "events")}
}

func (b *RedisBroker) Publish(ctx context.Context, event domain.OrderEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, channelPrefix+event.PodID, payload).Err()
}

func (b *RedisBroker) Subscribe(ctx context.Context, podID string) (<-chan domain.OrderEvent, error) {
	var pubsub *redis.PubSub
	if podID == "" {
		pubsub = b.client.PSubscribe(ctx, channelPrefix+"*")
	} else {
		pubsub = b.client.Subscribe(ctx, channelPrefix+podID)
	}
	// Wait for the subscription confirmation so no event published after
	// Subscribe returns is lost.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	out := make(chan domain.OrderEvent, subscriberBuffer)
	go func() {
		defer close(out)
		defer pubsub.Close()

		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var event domain.OrderEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					b.logger.Warn("drop malformed order event", "channel", msg.Channel, "error", err)
					continue
				}
				select {
				case out <- event:
				default:
				}
			}
		}
	}()
	return out, nil
}
