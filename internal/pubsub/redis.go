package pubsub

import (
	"context"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "fbg:"

// RedisBroadcaster relays payloads through Redis PUBLISH/SUBSCRIBE so that
// every server instance sharing the Redis sees every event.
type RedisBroadcaster struct {
	log *log.Logger
	rdb *redis.Client
}

func NewRedisBroadcaster(logger *log.Logger, rdb *redis.Client) *RedisBroadcaster {
	return &RedisBroadcaster{
		log: logger,
		rdb: rdb,
	}
}

func (b *RedisBroadcaster) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := b.rdb.Publish(ctx, keyPrefix+channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

func (b *RedisBroadcaster) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ps := b.rdb.Subscribe(ctx, keyPrefix+channel)

	// wait for the subscription to be confirmed so no publish is missed
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	out := make(chan []byte, subscriberBuffer)
	go func() {
		defer close(out)
		defer ps.Close()

		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				default:
					b.log.Printf("subscriber buffer full on %q, dropping event", channel)
				}
			}
		}
	}()

	return out, nil
}

func (b *RedisBroadcaster) Close() error {
	return b.rdb.Close()
}
