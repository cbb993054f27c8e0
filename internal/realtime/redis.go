package realtime

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/lusia-studio/cli/internal/logger"
)

// RedisChannel implements PushChannel over Redis Pub/Sub. Row-updated
// notifications are published on "<table>:<filter>" channels.
type RedisChannel struct {
	client *redis.Client
}

// RedisOptions contains connection settings for the Redis backend
type RedisOptions struct {
	Host     string
	Port     int
	Database int
	Username string
	Password string
}

// NewRedisChannel connects to Redis and verifies the connection
func NewRedisChannel(opts RedisOptions) (*RedisChannel, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", opts.Host, opts.Port),
		DB:       opts.Database,
		Username: opts.Username,
		Password: opts.Password,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisChannel{client: client}, nil
}

// Subscribe listens on the pub/sub channel for (table, filter)
func (r *RedisChannel) Subscribe(ctx context.Context, table, filter string) (<-chan RowEvent, error) {
	pubsub := r.client.Subscribe(ctx, fmt.Sprintf("%s:%s", table, filter))

	// force the subscription to be established before returning
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	events := make(chan RowEvent, 16)

	go func() {
		defer close(events)
		defer func() {
			_ = pubsub.Close()
		}()

		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				event, err := decodeRowEvent(table, []byte(msg.Payload))
				if err != nil {
					logger.Debug("dropping malformed row event", "error", err)
					continue
				}
				select {
				case <-ctx.Done():
					return
				case events <- event:
				}
			}
		}
	}()

	return events, nil
}

// Close closes the underlying Redis client
func (r *RedisChannel) Close() error {
	return r.client.Close()
}
