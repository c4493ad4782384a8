package bus

import (
	"context"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Redis implements Bus on top of Redis pub/sub.
//
// A single PubSub connection carries every subscription; one dispatch
// goroutine fans messages out to the registered handlers, so handlers for a
// given channel run serially in delivery order.
type Redis struct {
	client *redis.Client
	pubsub *redis.PubSub
	logger *slog.Logger

	mu       sync.RWMutex
	handlers map[string]Handler
	closed   bool

	wg sync.WaitGroup
}

// NewRedis creates a Redis-backed bus and starts its dispatch loop.
func NewRedis(ctx context.Context, addr string, logger *slog.Logger) (*Redis, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	b := &Redis{
		client:   client,
		pubsub:   client.Subscribe(ctx),
		logger:   logger,
		handlers: make(map[string]Handler),
	}

	b.wg.Add(1)
	go b.dispatchLoop()

	return b, nil
}

// Publish sends a payload to all subscribers of channel.
func (b *Redis) Publish(ctx context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrClosed
	}
	b.mu.RUnlock()

	return b.client.Publish(ctx, channel, payload).Err()
}

// Subscribe registers a handler and joins the Redis channel.
func (b *Redis) Subscribe(channel string, h Handler) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	_, known := b.handlers[channel]
	b.handlers[channel] = h
	b.mu.Unlock()

	if known {
		// Handler replaced; the Redis subscription already exists.
		return nil
	}
	return b.pubsub.Subscribe(context.Background(), channel)
}

// Unsubscribe leaves the Redis channel and drops its handler.
func (b *Redis) Unsubscribe(channel string) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	if _, ok := b.handlers[channel]; !ok {
		b.mu.Unlock()
		return ErrNotSubscribed
	}
	delete(b.handlers, channel)
	b.mu.Unlock()

	return b.pubsub.Unsubscribe(context.Background(), channel)
}

// Close tears down the pub/sub connection and the Redis client.
func (b *Redis) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	err := b.pubsub.Close()
	b.wg.Wait()

	if cerr := b.client.Close(); err == nil {
		err = cerr
	}
	return err
}

// dispatchLoop routes received messages to their channel handlers.
func (b *Redis) dispatchLoop() {
	defer b.wg.Done()

	for msg := range b.pubsub.Channel() {
		b.mu.RLock()
		h := b.handlers[msg.Channel]
		b.mu.RUnlock()

		if h == nil {
			// Unsubscribe raced with an in-flight delivery.
			b.logger.Debug("dropping message for unsubscribed channel", "channel", msg.Channel)
			continue
		}
		h(msg.Channel, []byte(msg.Payload))
	}
}
