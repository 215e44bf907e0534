package styles

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

const channelPrefix = "styles:customer:"

// Channel returns the pub/sub channel carrying a customer's style events.
func Channel(customerID string) string {
	return channelPrefix + customerID
}

type originKey struct{}

// WithOrigin tags writes made under ctx with the editing connection id so
// that connection can recognise its own events.
func WithOrigin(ctx context.Context, origin string) context.Context {
	return context.WithValue(ctx, originKey{}, origin)
}

// OriginFromContext returns the origin set by WithOrigin.
func OriginFromContext(ctx context.Context) string {
	origin, _ := ctx.Value(originKey{}).(string)
	return origin
}

// RedisEvents is the Redis pub/sub push channel.
type RedisEvents struct {
	client *redis.Client
	logger *slog.Logger
	buffer int
}

// NewRedisEvents builds the push channel on client.
func NewRedisEvents(client *redis.Client, logger *slog.Logger) *RedisEvents {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisEvents{client: client, logger: logger, buffer: 64}
}

// Publish implements Publisher.
func (e *RedisEvents) Publish(ctx context.Context, customerID string, ev Event) error {
	if e == nil || e.client == nil {
		return nil
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("styles: encode event: %w", err)
	}
	return e.client.Publish(ctx, Channel(customerID), payload).Err()
}

// Subscribe streams events for customerID until ctx is done. The returned
// channel is closed when the subscription ends.
func (e *RedisEvents) Subscribe(ctx context.Context, customerID string) (<-chan Event, error) {
	if e == nil || e.client == nil {
		return nil, fmt.Errorf("styles: push channel not configured")
	}
	pubsub := e.client.Subscribe(ctx, Channel(customerID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("styles: subscribe %s: %w", customerID, err)
	}

	out := make(chan Event, e.buffer)
	go func() {
		defer close(out)
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					e.logger.Warn("discarding malformed style event",
						slog.String("channel", msg.Channel),
						slog.Any("error", err))
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
