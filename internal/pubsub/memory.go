package pubsub

import (
	"context"
	"log"
	"sync"
)

type subscriber struct {
	channel string
	send    chan []byte
}

// MemoryBroadcaster fans payloads out to subscribers of the same process.
type MemoryBroadcaster struct {
	log      *log.Logger
	mu       sync.RWMutex
	channels map[string]map[*subscriber]struct{}
	closed   bool
}

func NewMemoryBroadcaster(logger *log.Logger) *MemoryBroadcaster {
	return &MemoryBroadcaster{
		log:      logger,
		channels: make(map[string]map[*subscriber]struct{}),
	}
}

func (b *MemoryBroadcaster) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrClosed
	}

	for sub := range b.channels[channel] {
		select {
		case sub.send <- payload:
		default:
			b.log.Printf("subscriber buffer full on %q, dropping event", channel)
		}
	}

	return nil
}

func (b *MemoryBroadcaster) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	sub := &subscriber{
		channel: channel,
		send:    make(chan []byte, subscriberBuffer),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	if b.channels[channel] == nil {
		b.channels[channel] = make(map[*subscriber]struct{})
	}
	b.channels[channel][sub] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.remove(sub)
	}()

	return sub.send, nil
}

func (b *MemoryBroadcaster) remove(sub *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.channels[sub.channel]
	if !ok {
		return
	}
	if _, ok := subs[sub]; !ok {
		return
	}

	delete(subs, sub)
	close(sub.send)
	if len(subs) == 0 {
		delete(b.channels, sub.channel)
	}
}

// Subscribers returns the number of live subscriptions on channel.
func (b *MemoryBroadcaster) Subscribers(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.channels[channel])
}

func (b *MemoryBroadcaster) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	for channel, subs := range b.channels {
		for sub := range subs {
			close(sub.send)
		}
		delete(b.channels, channel)
	}

	return nil
}
